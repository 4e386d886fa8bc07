package main

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/listing"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

var (
	// Unindented line ending with ":" (e.g. "Lists:", "Entities:").
	reHelpHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)

	// Two-space indent, a command or entity name, then two or more spaces.
	reHelpName = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)

	// Flag types such as "--filter strings" or "--page int".
	reHelpFlagType = regexp.MustCompile(`(--?\S+\s+)(string|strings|int|duration)\b`)

	// The default sort, marked with a trailing "*" in the entities table.
	reDefaultSort = regexp.MustCompile(`\S+\*`)
)

// studioHelpFunc prints Cobra's usage text followed, for commands that take
// an <entity> argument, by the filter and sort keys of every list.
func studioHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		var buf bytes.Buffer
		orig := cmd.OutOrStdout()
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)
		if takesEntity(cmd) {
			writeEntityHelp(&buf)
		}

		text := buf.String()
		if ui.ShouldUseColor() {
			text = colorizeHelp(text)
		}
		fmt.Fprint(orig, text)
	}
}

func takesEntity(cmd *cobra.Command) bool {
	return strings.Contains(cmd.Use, "<entity>")
}

// writeEntityHelp lists each entity with its filter keys and sort keys. The
// default sort is marked with "*".
func writeEntityHelp(w io.Writer) {
	fmt.Fprintln(w, "\nEntities:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range listing.Entities() {
		cfg, _ := listing.Entity(name)
		filters := make([]string, 0, len(cfg.Filters))
		for _, f := range cfg.Filters {
			filters = append(filters, f.Key)
		}
		sorts := make([]string, 0, len(cfg.SortOptions))
		for _, s := range cfg.SortOptions {
			key := s.Key
			if key == cfg.DefaultSort {
				key += "*"
			}
			sorts = append(sorts, key)
		}
		fmt.Fprintf(tw, "  %s\tfilters: %s\tsorts: %s\n", name, orEmpty(filters), strings.Join(sorts, ", "))
	}
	_ = tw.Flush()
}

func orEmpty(keys []string) string {
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, ", ")
}

func colorizeHelp(s string) string {
	s = reHelpHeader.ReplaceAllStringFunc(s, func(match string) string {
		return ui.RenderAccent(strings.TrimSpace(match))
	})
	s = reHelpName.ReplaceAllStringFunc(s, func(match string) string {
		parts := reHelpName.FindStringSubmatch(match)
		return parts[1] + ui.RenderActive(parts[2]) + parts[3]
	})
	s = reHelpFlagType.ReplaceAllString(s, "${1}"+ui.RenderMuted("${2}"))
	return reDefaultSort.ReplaceAllStringFunc(s, ui.RenderActive)
}
