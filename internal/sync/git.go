package sync

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	gitAuthorName  = "studiodesk"
	gitAuthorEmail = "sync@studiodesk.local"
)

// GitDestination commits the studio export to a file in a local clone and
// pushes it to origin.
type GitDestination struct {
	repo   string // local clone
	file   string // path within the repo
	branch string

	now func() time.Time
}

var (
	_ Destination = (*GitDestination)(nil)
	_ Snapshot    = (*GitDestination)(nil)
)

// NewGitDestination returns a destination writing file on branch of the
// existing clone at repo.
func NewGitDestination(repo, file, branch string) *GitDestination {
	if branch == "" {
		branch = "main"
	}
	return &GitDestination{repo: repo, file: file, branch: branch, now: time.Now}
}

// Write commits data when it differs from the committed file and pushes.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote branch may not exist yet.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.file, err)
	}
	if _, err := d.git(ctx, "add", d.file); err != nil {
		return err
	}
	if _, err := d.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}

	msg := fmt.Sprintf("sync: studiodesk export %s", d.now().UTC().Format(time.RFC3339))
	if _, err := d.git(ctx, "-c", "user.name="+gitAuthorName, "-c", "user.email="+gitAuthorEmail, "commit", "-m", msg); err != nil {
		return err
	}
	if _, err := d.git(ctx, "push", "origin", d.branch); err != nil {
		return err
	}
	return nil
}

// Fetch pulls the branch and returns the committed export.
func (d *GitDestination) Fetch(ctx context.Context) ([]byte, error) {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return nil, err
	}
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)
	data, err := os.ReadFile(filepath.Join(d.repo, d.file))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.file, err)
	}
	return data, nil
}

func (d *GitDestination) String() string {
	return d.repo + ":" + d.branch + "/" + d.file
}

// git runs a git subcommand in the clone. Failures carry git's own output.
func (d *GitDestination) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		sub := subcommand(args)
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return out, fmt.Errorf("git %s: %w: %s", sub, err, msg)
		}
		return out, fmt.Errorf("git %s: %w", sub, err)
	}
	return out, nil
}

// subcommand skips leading "-c key=value" pairs.
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
