package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/studiodesk/internal/events"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("listing: controller closed")

// LoadKind distinguishes the three fetch flavors.
type LoadKind int

const (
	// LoadFull replaces the buffer with page zero.
	LoadFull LoadKind = iota
	// LoadAppend adds the next page to the buffer.
	LoadAppend
	// LoadPage replaces the buffer with one specific page.
	LoadPage
)

func (k LoadKind) String() string {
	switch k {
	case LoadFull:
		return "full"
	case LoadAppend:
		return "append"
	case LoadPage:
		return "page"
	}
	return fmt.Sprintf("LoadKind(%d)", int(k))
}

// Notice is a user-facing, non-blocking failure report.
type Notice struct {
	List string
	Kind LoadKind
	Err  error
}

func (n Notice) String() string {
	return fmt.Sprintf("could not load %s: %v", n.List, n.Err)
}

// Options parameterize a controller instance.
type Options struct {
	Scope      model.Scope
	Subscriber events.Subscriber // nil disables realtime invalidation
	Logger     *slog.Logger
	Notify     func(Notice)
	Now        func() time.Time
	Debounce   time.Duration
	PageSize   int  // 0 uses the config default
	LiveSearch bool // SetSearch applies the term after the debounce delay
}

// State is a snapshot of the controller.
type State struct {
	Search        string   `json:"search"`
	AppliedSearch string   `json:"applied_search,omitempty"`
	SearchActive  bool     `json:"search_active"`
	Filters       []string `json:"filters"`
	SortKey       string   `json:"sort_key"`
	Desc          bool     `json:"desc"`
	Page          int      `json:"page"`
	PageSize      int      `json:"page_size"`
	Total         int      `json:"total"`
	Loaded        int      `json:"loaded"`
	AllLoaded     bool     `json:"all_loaded"`
	Loading       bool     `json:"loading"`
	Paginating    bool     `json:"paginating"`
	Err           string   `json:"error,omitempty"`
	// Version increases with every notified change. A snapshot with a lower
	// version than one already seen is stale.
	Version uint64 `json:"version"`
}

// Pages returns the number of pages covering Total.
func (s State) Pages() int {
	if s.PageSize <= 0 {
		return 0
	}
	return (s.Total + s.PageSize - 1) / s.PageSize
}

// Controller owns the filter, pagination and row state of one list.
// All methods are safe for concurrent use. Fetches run in the background;
// use Wait to block until the controller is idle.
type Controller struct {
	cfg     *FilterConfig
	backend query.Backend
	tr      *Translator
	sub     events.Subscriber
	logger  *slog.Logger
	notify  func(Notice)
	live    bool

	ctx    context.Context
	cancel context.CancelFunc
	search *Debouncer[string]

	mu   sync.Mutex
	idle *sync.Cond

	scope        model.Scope
	rawSearch    string
	applied      string
	searchActive bool
	filters      map[string]struct{}
	sortKey      string
	desc         bool
	page         int
	pageSize     int
	total        int
	rows         []model.Row
	allLoaded    bool
	loading      bool
	paginating   bool
	err          error

	seq      uint64 // sequence number of the latest dispatched fetch
	inflight int
	closed   bool

	rt        *invalidator
	listeners map[int]func(State)
	nextID    int
	version   uint64
	outbox    []State // snapshots waiting for delivery, oldest first
	notifying bool
}

// New validates cfg, subscribes to realtime changes when enabled and starts
// the initial load.
func New(cfg *FilterConfig, backend query.Backend, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Scope.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("list", cfg.Name)

	c := &Controller{
		cfg:       cfg,
		backend:   backend,
		tr:        NewTranslator(cfg, backend, logger, opts.Now),
		sub:       opts.Subscriber,
		logger:    logger,
		notify:    opts.Notify,
		live:      opts.LiveSearch,
		scope:     opts.Scope,
		filters:   make(map[string]struct{}),
		sortKey:   cfg.DefaultSort,
		desc:      cfg.DefaultDesc,
		pageSize:  clampPageSize(opts.PageSize, cfg),
		listeners: make(map[int]func(State)),
	}
	c.idle = sync.NewCond(&c.mu)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.search = NewDebouncer(opts.Debounce, c.debouncedSearch)

	c.subscribe(opts.Scope)
	c.reload("mount")
	return c, nil
}

func clampPageSize(n int, cfg *FilterConfig) int {
	if n <= 0 {
		return cfg.PageSize
	}
	if n > cfg.MaxPageSize {
		return cfg.MaxPageSize
	}
	return n
}

// Config returns the controller's filter configuration.
func (c *Controller) Config() *FilterConfig { return c.cfg }

// Rows returns a copy of the row buffer.
func (c *Controller) Rows() []model.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Row(nil), c.rows...)
}

// State returns a snapshot of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		Search:        c.rawSearch,
		AppliedSearch: c.applied,
		SearchActive:  c.searchActive,
		Filters:       c.filterKeysLocked(),
		SortKey:       c.sortKey,
		Desc:          c.desc,
		Page:          c.page,
		PageSize:      c.pageSize,
		Total:         c.total,
		Loaded:        len(c.rows),
		AllLoaded:     c.allLoaded,
		Loading:       c.loading,
		Paginating:    c.paginating,
		Version:       c.version,
	}
	if c.err != nil {
		s.Err = c.err.Error()
	}
	return s
}

func (c *Controller) filterKeysLocked() []string {
	keys := make([]string, 0, len(c.filters))
	for k := range c.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe registers fn to be called with a fresh snapshot after every
// state change. Snapshots reach listeners one at a time in version order.
// fn may call back into the controller but must not call Wait. The returned
// function removes the listener.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SetSearch records the raw search term. With LiveSearch the term is applied
// once typing pauses for the debounce delay; otherwise ApplySearch applies it.
func (c *Controller) SetSearch(term string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.rawSearch = term
	c.mu.Unlock()
	c.emit()
	if c.live {
		c.search.Set(term)
	}
}

// ApplySearch applies the current raw term immediately. It always reloads,
// even when the term is already applied.
func (c *Controller) ApplySearch() {
	c.search.Stop()
	c.mu.Lock()
	term := c.rawSearch
	c.mu.Unlock()
	c.applySearch(term, true)
}

// debouncedSearch applies a term once typing pauses. A term that is already
// applied does not reload.
func (c *Controller) debouncedSearch(term string) {
	c.applySearch(term, false)
}

func (c *Controller) applySearch(term string, force bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	active := strings.TrimSpace(term) != ""
	if !force && active == c.searchActive && term == c.applied {
		c.mu.Unlock()
		return
	}
	c.applied = term
	c.searchActive = active
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "search")
}

// ClearSearch drops the search term and any pending debounced input.
func (c *Controller) ClearSearch() {
	c.search.Stop()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.rawSearch = ""
	c.applied = ""
	c.searchActive = false
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "search cleared")
}

// SetFilters replaces the active filter set. Unknown keys are kept and
// ignored by the translator.
func (c *Controller) SetFilters(keys ...string) {
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	c.mu.Lock()
	if c.closed || sameSet(c.filters, next) {
		c.mu.Unlock()
		return
	}
	c.filters = next
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "filters")
}

// ToggleFilter adds key to the active set, or removes it if present.
func (c *Controller) ToggleFilter(key string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.filters[key]; ok {
		delete(c.filters, key)
	} else {
		c.filters[key] = struct{}{}
	}
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "filters")
}

// Filters returns the active filter keys, sorted.
func (c *Controller) Filters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filterKeysLocked()
}

// SetSort selects a sort option. The direction is left unchanged. It
// returns false for unknown keys.
func (c *Controller) SetSort(key string) bool {
	if !c.cfg.HasSort(key) {
		c.logger.Debug("ignoring unknown sort key", "key", key)
		return false
	}
	c.mu.Lock()
	if c.closed || c.sortKey == key {
		c.mu.Unlock()
		return true
	}
	c.sortKey = key
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "sort")
	return true
}

// ToggleDirection flips the sort direction.
func (c *Controller) ToggleDirection() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.desc = !c.desc
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "sort direction")
}

// Sort returns the active sort key and direction.
func (c *Controller) Sort() (key string, desc bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortKey, c.desc
}

// SetPageSize changes the page size, clamped to the configured maximum.
func (c *Controller) SetPageSize(n int) {
	n = clampPageSize(n, c.cfg)
	c.mu.Lock()
	if c.closed || n == c.pageSize {
		c.mu.Unlock()
		return
	}
	c.pageSize = n
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, "page size")
}

// Refetch reloads page zero with the current parameters.
func (c *Controller) Refetch() {
	c.reload("refetch")
}

// SetScope switches the caller scope. Realtime subscriptions are torn down
// before new ones are made for the new workspace.
func (c *Controller) SetScope(scope model.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.scope == scope {
		c.mu.Unlock()
		return nil
	}
	prevWS := c.scope.WorkspaceID
	c.scope = scope
	rt := c.rt
	c.mu.Unlock()

	if scope.WorkspaceID != prevWS {
		rt.stop()
		c.subscribe(scope)
	}
	c.reload("scope")
	return nil
}

// LoadMore appends the next page. It reports whether a fetch was started;
// requests while busy or after everything is loaded are dropped.
func (c *Controller) LoadMore() bool {
	c.mu.Lock()
	if c.closed || c.loading || c.paginating || c.allLoaded {
		c.mu.Unlock()
		return false
	}
	c.paginating = true
	c.err = nil
	f := c.dispatchLocked(LoadAppend, c.page+1)
	c.mu.Unlock()
	c.start(f, "load more")
	return true
}

// GoToPage replaces the buffer with page n, clamped to the existing pages.
// It reports whether a fetch was started: a request for the current page,
// with nothing to page through, or while busy is a no-op.
func (c *Controller) GoToPage(n int) bool {
	c.mu.Lock()
	if c.closed || c.loading || c.paginating || c.total == 0 {
		c.mu.Unlock()
		return false
	}
	last := (c.total+c.pageSize-1)/c.pageSize - 1
	if n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	if n == c.page {
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.err = nil
	f := c.dispatchLocked(LoadPage, n)
	c.mu.Unlock()
	c.start(f, "go to page")
	return true
}

// reload starts a full reload.
func (c *Controller) reload(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	f := c.reloadLocked()
	c.mu.Unlock()
	c.start(f, reason)
}

// reloadLocked resets pagination and dispatches a full reload, superseding
// any in-flight fetch: older responses are discarded on arrival. The caller
// holds c.mu and passes the result to start after unlocking.
func (c *Controller) reloadLocked() fetchReq {
	c.page = 0
	c.allLoaded = false
	c.loading = true
	c.paginating = false
	c.err = nil
	return c.dispatchLocked(LoadFull, 0)
}

func (c *Controller) start(f fetchReq, reason string) {
	c.logger.Debug("loading list", "kind", f.kind, "reason", reason, "seq", f.seq)
	c.emit()
	go c.fetch(f)
}

type fetchReq struct {
	seq    uint64
	kind   LoadKind
	page   int
	scope  model.Scope
	params Params
}

func (c *Controller) dispatchLocked(kind LoadKind, page int) fetchReq {
	c.seq++
	c.inflight++
	p := Params{
		Filters:  c.filterKeysLocked(),
		SortKey:  c.sortKey,
		Desc:     c.desc,
		Page:     page,
		PageSize: c.pageSize,
	}
	if c.searchActive {
		p.Search = c.applied
	}
	return fetchReq{seq: c.seq, kind: kind, page: page, scope: c.scope, params: p}
}

func (c *Controller) fetch(f fetchReq) {
	defer c.done()
	page, err := c.run(f)

	c.mu.Lock()
	if c.closed || f.seq != c.seq {
		c.mu.Unlock()
		if !c.closed {
			c.logger.Debug("discarding stale response", "seq", f.seq, "kind", f.kind)
		}
		return
	}

	c.loading = false
	c.paginating = false
	if err != nil {
		c.err = err
		if f.kind != LoadAppend {
			c.rows = nil
		}
		c.mu.Unlock()
		c.logger.Warn("list fetch failed", "kind", f.kind, "err", err)
		if c.notify != nil {
			c.notify(Notice{List: c.cfg.Name, Kind: f.kind, Err: err})
		}
		c.emit()
		return
	}

	switch f.kind {
	case LoadAppend:
		c.rows = append(c.rows, page.Rows...)
	case LoadFull, LoadPage:
		c.rows = page.Rows
	}
	c.page = f.page
	c.total = page.Total
	c.allLoaded = len(page.Rows) < f.params.PageSize
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) run(f fetchReq) (*query.Page, error) {
	q, err := c.tr.Build(c.ctx, f.scope, f.params)
	if err != nil {
		return nil, err
	}
	page, err := c.backend.Fetch(c.ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", c.cfg.Table, err)
	}
	if page == nil {
		page = &query.Page{}
	}
	return page, nil
}

// emit queues a snapshot for the listeners. The first goroutine to find the
// queue idle delivers it and everything queued meanwhile, so listeners never
// see an older snapshot after a newer one.
func (c *Controller) emit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.listeners) == 0 {
		return
	}
	c.version++
	c.outbox = append(c.outbox, c.stateLocked())
	if c.notifying {
		return
	}
	c.notifying = true
	for len(c.outbox) > 0 && !c.closed {
		s := c.outbox[0]
		c.outbox = c.outbox[1:]
		fns := make([]func(State), 0, len(c.listeners))
		for _, fn := range c.listeners {
			fns = append(fns, fn)
		}
		c.mu.Unlock()
		for _, fn := range fns {
			fn(s)
		}
		c.mu.Lock()
	}
	c.outbox = nil
	c.notifying = false
	c.idle.Broadcast()
}

// done marks a fetch finished once its effects, including notifications,
// have been applied.
func (c *Controller) done() {
	c.mu.Lock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

// Wait blocks until no fetch is in flight and every queued snapshot has
// been delivered.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 || c.notifying {
		c.idle.Wait()
	}
}

// Close tears down realtime subscriptions and pending search input. Responses
// arriving afterwards are ignored.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rt := c.rt
	c.rt = nil
	c.mu.Unlock()

	c.search.Stop()
	rt.stop()
	c.cancel()
	return nil
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
