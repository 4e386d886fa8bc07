package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Destination is somewhere an export can be pushed (S3, git).
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Snapshot is a destination the last export can be read back from.
type Snapshot interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Restore reads the latest export from snap into dst and returns the number
// of rows imported.
func Restore(ctx context.Context, snap Snapshot, dst Sink) (int, error) {
	data, err := snap.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch snapshot: %w", err)
	}
	return ImportJSONL(bytes.NewReader(data), dst)
}

// Status describes the scheduler's most recent push.
type Status struct {
	At      time.Time
	Rows    int
	Bytes   int
	Skipped bool   // rows were unchanged since the last good push
	Err     string // joined destination errors
}

// Scheduler pushes periodic exports to one or more destinations. A push
// whose rows match the last successful one is skipped.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	status   Status
	lastRows []byte // export body after the header line

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start pushes once immediately and then on every interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if err := s.Push(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sync failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the scheduler and waits for an in-flight push.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Status returns the outcome of the last push.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Push exports the source once and writes it to every destination. A
// failing destination does not stop the others; their errors are joined.
func (s *Scheduler) Push(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.source, &buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()
	_, rows, _ := bytes.Cut(data, []byte("\n"))
	st := Status{At: time.Now(), Rows: bytes.Count(rows, []byte("\n")), Bytes: len(data)}

	s.mu.Lock()
	unchanged := s.lastRows != nil && bytes.Equal(rows, s.lastRows)
	s.mu.Unlock()
	if unchanged {
		st.Skipped = true
		s.setStatus(st, nil)
		s.logger.Debug("sync skipped, no changes", "rows", st.Rows)
		return nil
	}

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("sync destination write failed", "destination", describe(dest, i), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", describe(dest, i), err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		st.Err = err.Error()
	}
	s.setStatus(st, rows)

	s.logger.Info("sync completed", "destinations", len(s.destinations), "rows", st.Rows, "bytes", st.Bytes, "failed", len(errs))
	return err
}

// setStatus records st. rows becomes the skip baseline only when every
// destination took it.
func (s *Scheduler) setStatus(st Status, rows []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	if st.Err == "" && rows != nil {
		s.lastRows = bytes.Clone(rows)
	} else if st.Err != "" {
		s.lastRows = nil
	}
}

func describe(dest Destination, i int) string {
	if s, ok := dest.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("destination %d", i)
}
