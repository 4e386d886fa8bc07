package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := RemotesConfig{
		Active: "studio",
		Remotes: map[string]Remote{
			"studio": {URL: "https://desk.example.com", GRPCAddr: "desk.example.com:9090", Token: "tok_abc", Workspace: "ws1"},
			"local":  {URL: "http://localhost:8080"},
		},
	}
	if err := saveRemotesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "studio" {
		t.Errorf("Active = %q, want %q", got.Active, "studio")
	}
	if r := got.Remotes["studio"]; r != in.Remotes["studio"] {
		t.Errorf("studio remote = %+v, want %+v", r, in.Remotes["studio"])
	}
	if r := got.Remotes["local"]; r.URL != "http://localhost:8080" || r.Token != "" {
		t.Errorf("local remote = %+v", r)
	}
}

func TestLoadRemotesConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || len(cfg.Remotes) != 0 || cfg.Remotes == nil {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestSaveRemotesConfig_Permissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := saveRemotesConfig(RemotesConfig{Remotes: map[string]Remote{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	path, _ := remoteConfigPath()
	check := func(p string, want os.FileMode) {
		t.Helper()
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
	check(path, 0o600)
	check(filepath.Dir(path), 0o700)
}

func TestRemoteLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mustRun := func(fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	remoteUseCmd.SetOut(&buf)
	remoteRemoveCmd.SetOut(&buf)
	remoteListCmd.SetOut(&buf)

	// The first remote added becomes active.
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "http://localhost:8080"}) })
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"studio", "https://desk.example.com"}) })
	cfg, _ := loadRemotesConfig()
	if cfg.Active != "local" || len(cfg.Remotes) != 2 {
		t.Fatalf("config = %+v", cfg)
	}

	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"studio"}) })
	buf.Reset()
	mustRun(func() error { return remoteListCmd.RunE(remoteListCmd, nil) })
	out := buf.String()
	if !strings.Contains(out, "* studio") || !strings.Contains(out, "  local") {
		t.Errorf("list output missing markers:\n%s", out)
	}
	if strings.Index(out, "local") > strings.Index(out, "studio") {
		t.Errorf("remotes not sorted by name:\n%s", out)
	}

	if err := remoteUseCmd.RunE(remoteUseCmd, []string{"missing"}); err == nil {
		t.Error("use of unknown remote should fail")
	}

	mustRun(func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"studio"}) })
	cfg, _ = loadRemotesConfig()
	if _, ok := cfg.Remotes["studio"]; ok || cfg.Active != "" {
		t.Errorf("after remove: %+v", cfg)
	}
}

func TestRemoteTokenMasked(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := remoteAddCmd.Flags().Set("token", "tok_verylongsecret"); err != nil {
		t.Fatalf("set token flag: %v", err)
	}
	t.Cleanup(func() { _ = remoteAddCmd.Flags().Set("token", "") })

	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	remoteListCmd.SetOut(&buf)
	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"studio", "https://desk.example.com"}); err != nil {
		t.Fatal(err)
	}
	cfg, _ := loadRemotesConfig()
	if cfg.Remotes["studio"].Token != "tok_verylongsecret" {
		t.Fatalf("token not stored: %+v", cfg.Remotes["studio"])
	}

	buf.Reset()
	if err := remoteListCmd.RunE(remoteListCmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "verylongsecret") || !strings.Contains(buf.String(), "tok_very...") {
		t.Errorf("token not masked:\n%s", buf.String())
	}
}
