package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alfredjeanlab/studiodesk/internal/events"
	"github.com/alfredjeanlab/studiodesk/internal/listing"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/presence"
	"github.com/alfredjeanlab/studiodesk/internal/query"
	"github.com/alfredjeanlab/studiodesk/internal/store"
)

var validate = validator.New()

// StudioServer serves list queries and row mutations over HTTP and gRPC.
type StudioServer struct {
	store     store.Store
	publisher events.Publisher
	sseHub    *sseHub
	presence  *presence.Tracker
	logger    *slog.Logger
	now       func() time.Time
}

// NewStudioServer returns a new StudioServer backed by the given store and publisher.
func NewStudioServer(s store.Store, p events.Publisher, logger *slog.Logger) *StudioServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudioServer{
		store:     s,
		publisher: p,
		sseHub:    newSSEHub(sseReplaySize),
		presence:  presence.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Presence returns the tracker of event stream viewers.
func (s *StudioServer) Presence() *presence.Tracker { return s.presence }

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// asInputError converts validation failures into inputError so transports
// report them as client errors.
func asInputError(err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return inputError(ve.Error())
	}
	var fe validator.ValidationErrors
	if errors.As(err, &fe) {
		return inputError(fe.Error())
	}
	return err
}

// ListRequest is the stateless form of one list fetch.
type ListRequest struct {
	Entity   string   `json:"entity" validate:"required"`
	Search   string   `json:"search,omitempty"`
	Filters  []string `json:"filters,omitempty" validate:"dive,required"`
	Sort     string   `json:"sort,omitempty"`
	Desc     *bool    `json:"desc,omitempty"`
	Page     int      `json:"page" validate:"gte=0"`
	PageSize int      `json:"page_size,omitempty" validate:"gte=0"`
}

// ListResponse is one page of a list plus the parameters that produced it.
type ListResponse struct {
	Entity   string      `json:"entity"`
	Rows     []model.Row `json:"rows"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
	Sort     string      `json:"sort"`
	Desc     bool        `json:"desc"`
}

// ListDescriptor describes a list's selectable filters and sorts.
type ListDescriptor struct {
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	Filters     []Option `json:"filters"`
	Sorts       []Option `json:"sorts"`
	DefaultSort string   `json:"default_sort"`
	DefaultDesc bool     `json:"default_desc"`
	PageSize    int      `json:"page_size"`
	MaxPageSize int      `json:"max_page_size"`
}

// Option is a key/label pair.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// runQuery executes a raw query description.
func (s *StudioServer) runQuery(ctx context.Context, q query.Query) (*query.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, inputError(err.Error())
	}
	page, err := s.store.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return page, nil
}

// runPluck returns the distinct values of column across rows matching q.
func (s *StudioServer) runPluck(ctx context.Context, q query.Query, column string) ([]string, error) {
	if column == "" {
		return nil, inputError("column is required")
	}
	if err := q.Validate(); err != nil {
		return nil, inputError(err.Error())
	}
	if !model.HasColumn(q.Table, column) {
		return nil, inputError(fmt.Sprintf("unknown column %q", column))
	}
	vals, err := s.store.Pluck(ctx, q, column)
	if err != nil {
		return nil, fmt.Errorf("pluck: %w", err)
	}
	if vals == nil {
		vals = []string{}
	}
	return vals, nil
}

// errUnknownList is returned when a list name is not registered.
var errUnknownList = errors.New("unknown list")

// runList translates req through the list's configuration and fetches one page.
func (s *StudioServer) runList(ctx context.Context, scope model.Scope, req ListRequest) (*ListResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, asInputError(err)
	}
	if err := scope.Validate(); err != nil {
		return nil, asInputError(err)
	}
	cfg, ok := listing.Entity(req.Entity)
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownList, req.Entity)
	}
	for _, key := range req.Filters {
		if !cfg.HasFilter(key) {
			return nil, inputError(fmt.Sprintf("unknown filter %q for %s", key, cfg.Name))
		}
	}

	sortKey, desc := cfg.DefaultSort, cfg.DefaultDesc
	if req.Sort != "" {
		if !cfg.HasSort(req.Sort) {
			return nil, inputError(fmt.Sprintf("unknown sort %q for %s", req.Sort, cfg.Name))
		}
		sortKey, desc = req.Sort, false
	}
	if req.Desc != nil {
		desc = *req.Desc
	}

	size := req.PageSize
	if size <= 0 {
		size = cfg.PageSize
	}
	if size > cfg.MaxPageSize {
		size = cfg.MaxPageSize
	}
	if req.Page > (math.MaxInt-size)/size {
		return nil, inputError(fmt.Sprintf("page %d is out of range for page size %d", req.Page, size))
	}

	tr := listing.NewTranslator(cfg, s.store, s.logger, s.now)
	q, err := tr.Build(ctx, scope, listing.Params{
		Search:   req.Search,
		Filters:  req.Filters,
		SortKey:  sortKey,
		Desc:     desc,
		Page:     req.Page,
		PageSize: size,
	})
	if errors.Is(err, listing.ErrPageOutOfRange) {
		return nil, inputError(err.Error())
	}
	if err != nil {
		return nil, err
	}
	page, err := s.store.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cfg.Name, err)
	}

	return &ListResponse{
		Entity:   cfg.Name,
		Rows:     page.Rows,
		Total:    page.Total,
		Page:     req.Page,
		PageSize: size,
		Pages:    (page.Total + size - 1) / size,
		Sort:     sortKey,
		Desc:     desc,
	}, nil
}

// describeLists returns the descriptors of every registered list.
func describeLists() []ListDescriptor {
	names := listing.Entities()
	out := make([]ListDescriptor, 0, len(names))
	for _, name := range names {
		cfg, _ := listing.Entity(name)
		d := ListDescriptor{
			Name:        cfg.Name,
			Table:       string(cfg.Table),
			DefaultSort: cfg.DefaultSort,
			DefaultDesc: cfg.DefaultDesc,
			PageSize:    cfg.PageSize,
			MaxPageSize: cfg.MaxPageSize,
		}
		for _, f := range cfg.Filters {
			d.Filters = append(d.Filters, Option{Key: f.Key, Label: f.Label})
		}
		for _, so := range cfg.SortOptions {
			d.Sorts = append(d.Sorts, Option{Key: so.Key, Label: so.Label})
		}
		out = append(out, d)
	}
	return out
}

func parseTable(name string) (model.Table, error) {
	t := model.Table(name)
	if !t.IsValid() {
		return "", inputError(fmt.Sprintf("unknown table %q", name))
	}
	return t, nil
}

func requireWorkspace(workspaceID string) error {
	if workspaceID == "" {
		return inputError("workspace id is required")
	}
	return nil
}

// insertRow stores a new row and announces the change.
func (s *StudioServer) insertRow(ctx context.Context, table model.Table, workspaceID string, row model.Row) (model.Row, error) {
	if err := requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, inputError("row is empty")
	}
	created, err := s.store.Insert(ctx, table, workspaceID, row)
	if err != nil {
		return nil, asInputError(err)
	}
	s.publishChange(ctx, model.ChangeInsert, table, workspaceID, created.ID())
	return created, nil
}

// updateRow patches a row and announces the change.
func (s *StudioServer) updateRow(ctx context.Context, table model.Table, workspaceID, id string, patch model.Row) (model.Row, error) {
	if err := requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, inputError("patch is empty")
	}
	updated, err := s.store.Update(ctx, table, workspaceID, id, patch)
	if err != nil {
		return nil, asInputError(err)
	}
	s.publishChange(ctx, model.ChangeUpdate, table, workspaceID, id)
	return updated, nil
}

// deleteRow removes a row and announces the change.
func (s *StudioServer) deleteRow(ctx context.Context, table model.Table, workspaceID, id string) error {
	if err := requireWorkspace(workspaceID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, table, workspaceID, id); err != nil {
		return err
	}
	s.publishChange(ctx, model.ChangeDelete, table, workspaceID, id)
	return nil
}

// publishChange publishes a row change on the bus and fans it out to SSE
// clients. Both are best-effort; failures are logged but do not fail the
// mutation.
func (s *StudioServer) publishChange(ctx context.Context, op model.ChangeOp, table model.Table, workspaceID, rowID string) {
	c := model.Change{
		Op:          op,
		Table:       table,
		WorkspaceID: workspaceID,
		RowID:       rowID,
		At:          s.now().UTC(),
	}
	if err := events.PublishChange(ctx, s.publisher, c); err != nil {
		s.logger.Warn("failed to publish change", "table", table, "row_id", rowID, "error", err)
	}
	s.broadcastEvent(events.ChangeTopic(workspaceID, table), c)
}
