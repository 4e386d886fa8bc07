package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/client"
	"github.com/alfredjeanlab/studiodesk/internal/listing"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

const browseHelp = `commands:
  n             load the next page below the current rows
  p <n>         go to page n
  /<term>       search
  x             clear search
  f [<key>]     toggle a filter (no key clears all filters)
  s <key>       sort by key
  d             flip sort direction
  z <n>         set page size
  r             refetch
  q             quit`

var browseCmd = &cobra.Command{
	Use:     "browse <entity>",
	Short:   "Interactively page, search and filter a list",
	GroupID: "lists",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ok := listing.Entity(args[0])
		if !ok {
			return fmt.Errorf("unknown list %q (one of %s)", args[0], strings.Join(listing.Entities(), ", "))
		}
		live, _ := cmd.Flags().GetBool("realtime")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		b := &browser{out: cmd.OutOrStdout(), prompt: ui.IsTerminal(os.Stdin)}

		opts := listing.Options{
			Scope:    currentScope(),
			Logger:   logger,
			Notify:   b.notify,
			PageSize: pageSize,
		}
		if live {
			sub := client.NewSSESubscriber(httpURL, authToken, workspaceID, logger).WithUser(userID)
			defer sub.Close()
			opts.Subscriber = sub
		}

		ctrl, err := listing.New(cfg, studioClient, opts)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		b.ctrl = ctrl

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return b.run(ctx, cmd.InOrStdin())
	},
}

// browser drives a list controller from line-oriented commands.
type browser struct {
	ctrl *listing.Controller
	mu   sync.Mutex // guards out
	out  io.Writer

	// prompt prints "> " after each render when reading from a terminal.
	prompt bool
}

func (b *browser) notify(n listing.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.out, ui.RenderError(n.String()))
}

func (b *browser) printf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, format, args...)
}

func (b *browser) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	// Realtime reloads arrive between commands.
	updates := make(chan struct{}, 1)
	unsubscribe := b.ctrl.Subscribe(func(st listing.State) {
		if st.Loading || st.Paginating {
			return
		}
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	b.ctrl.Wait()
	drain(updates)
	b.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			b.render()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := b.exec(line)
			if quit {
				return nil
			}
			if err != nil {
				b.printf("%s\n", ui.RenderError(err.Error()))
				continue
			}
			drain(updates)
			b.render()
		}
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

// exec applies one command and waits for any fetch it started.
func (b *browser) exec(line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		b.ctrl.SetSearch(strings.TrimPrefix(line, "/"))
		b.ctrl.ApplySearch()
		b.ctrl.Wait()
		return false, nil
	}

	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "q", "quit":
		return true, nil
	case "?", "h", "help":
		b.printf("%s\n", browseHelp)
		return false, nil
	case "n", "more":
		if !b.ctrl.LoadMore() {
			return false, fmt.Errorf("nothing more to load")
		}
	case "p", "page":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return false, fmt.Errorf("usage: p <page>")
		}
		if !b.ctrl.GoToPage(n - 1) {
			return false, fmt.Errorf("already on that page")
		}
	case "x":
		b.ctrl.ClearSearch()
	case "f", "filter":
		if arg == "" {
			b.ctrl.SetFilters()
			break
		}
		if !b.ctrl.Config().HasFilter(arg) {
			return false, fmt.Errorf("unknown filter %q", arg)
		}
		b.ctrl.ToggleFilter(arg)
	case "s", "sort":
		if !b.ctrl.SetSort(arg) {
			return false, fmt.Errorf("unknown sort %q", arg)
		}
	case "d":
		b.ctrl.ToggleDirection()
	case "z":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return false, fmt.Errorf("usage: z <page size>")
		}
		b.ctrl.SetPageSize(n)
	case "r":
		b.ctrl.Refetch()
	default:
		return false, fmt.Errorf("unknown command %q (? for help)", verb)
	}
	b.ctrl.Wait()
	return false, nil
}

func (b *browser) render() {
	st := b.ctrl.State()
	cfg := b.ctrl.Config()

	b.mu.Lock()
	defer b.mu.Unlock()

	parts := []string{ui.RenderAccent(cfg.Name)}
	if st.SearchActive {
		parts = append(parts, "search "+ui.RenderActive(strconv.Quote(st.AppliedSearch)))
	}
	if len(st.Filters) > 0 {
		parts = append(parts, "filters "+ui.RenderActive(strings.Join(st.Filters, ",")))
	}
	dir := "asc"
	if st.Desc {
		dir = "desc"
	}
	parts = append(parts, "sort "+ui.RenderActive(st.SortKey+" "+dir))
	fmt.Fprintln(b.out, strings.Join(parts, "  "))

	if err := printRowTable(b.out, cfg.Table, b.ctrl.Rows()); err != nil {
		fmt.Fprintln(b.out, ui.RenderError(err.Error()))
	}

	footer := fmt.Sprintf("page %d/%d, showing %d of %d", st.Page+1, max(st.Pages(), 1), st.Loaded, st.Total)
	if !st.AllLoaded {
		footer += ", n for more"
	}
	fmt.Fprintln(b.out, ui.RenderMuted(footer))
	if st.Err != "" {
		fmt.Fprintln(b.out, ui.RenderError(st.Err))
	}
	if b.prompt {
		fmt.Fprint(b.out, "> ")
	}
}

func init() {
	browseCmd.Flags().Bool("realtime", true, "reload when the server reports changes")
	browseCmd.Flags().Int("page-size", 0, "rows per page (0 uses the list default)")
}
