package listing

import (
	"sort"

	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/query"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var clientName = &RelatedSearch{Relation: model.TableClients, ForeignKey: "client_id", Column: "name"}

func col(key, label, column string, value any) FilterOption {
	return FilterOption{Key: key, Label: label, Kind: KindColumn, Column: column, Value: value}
}

func custom(key, label string, fn PredicateFunc) FilterOption {
	return FilterOption{Key: key, Label: label, Kind: KindCustom, Build: fn}
}

func staffRole(key, label, role string) FilterOption {
	return FilterOption{Key: key, Label: label, Kind: KindStaffRole, Role: role}
}

func status(s Status, label string) FilterOption {
	return FilterOption{Key: string(s), Label: label, Kind: KindStatus, Status: s}
}

var newest = SortOption{Key: "newest", Label: "Newest", Column: "created_at"}

// Clients lists client records.
var Clients = &FilterConfig{
	Name:          "clients",
	Table:         model.TableClients,
	SearchColumns: []string{"name", "email", "phone"},
	SortOptions: []SortOption{
		newest,
		{Key: "name", Label: "Name", Column: "name"},
		{Key: "status", Label: "Status", Column: "status"},
	},
	Filters: []FilterOption{
		col("active", "Active", "status", "active"),
		col("inactive", "Inactive", "status", "inactive"),
		col("lead", "Lead", "status", "lead"),
		col("referral", "Referral", "source", "referral"),
		col("instagram", "Instagram", "source", "instagram"),
		col("website", "Website", "source", "website"),
	},
	DefaultSort: "newest",
	DefaultDesc: true,
	PageSize:    defaultPageSize,
	MaxPageSize: maxPageSize,
	Realtime:    true,
}

// Tasks lists tasks. Non-elevated members only see tasks assigned to them.
var Tasks = &FilterConfig{
	Name:          "tasks",
	Table:         model.TableTasks,
	SearchColumns: []string{"title", "description"},
	RelatedSearch: clientName,
	SortOptions: []SortOption{
		{Key: "due_date", Label: "Due date", Column: "due_date"},
		{Key: "priority", Label: "Priority", Column: "priority"},
		newest,
		{Key: "title", Label: "Title", Column: "title"},
	},
	Filters: []FilterOption{
		col("todo", "To do", "status", "todo"),
		col("in_progress", "In progress", "status", "in_progress"),
		col("done", "Done", "status", "done"),
		col("low", "Low priority", "priority", "low"),
		col("medium", "Medium priority", "priority", "medium"),
		col("high", "High priority", "priority", "high"),
		custom("overdue", "Overdue", func(e Env) query.Predicate {
			return query.And(query.Lt("due_date", e.Today), query.In("status", "todo", "in_progress"))
		}),
		custom("due_today", "Due today", func(e Env) query.Predicate {
			return query.Eq("due_date", e.Today)
		}),
		custom("mine", "Assigned to me", func(e Env) query.Predicate {
			return query.Eq("assigned_to", e.Scope.UserID)
		}),
	},
	DefaultSort: "due_date",
	PageSize:    defaultPageSize,
	MaxPageSize: maxPageSize,
	Realtime:    true,
	Visibility:  VisibilityAssigned,
}

// Events lists scheduled events. Staff-role filters go through event_staff,
// and payment and balance changes invalidate the list because they feed the
// financial summary columns.
var Events = &FilterConfig{
	Name:          "events",
	Table:         model.TableEvents,
	SearchColumns: []string{"title", "venue"},
	RelatedSearch: clientName,
	SortOptions: []SortOption{
		{Key: "event_date", Label: "Event date", Column: "event_date"},
		newest,
		{Key: "title", Label: "Title", Column: "title"},
		{Key: "total", Label: "Total", Column: "total_amount"},
	},
	Filters: []FilterOption{
		col("confirmed", "Confirmed", "status", "confirmed"),
		col("tentative", "Tentative", "status", "tentative"),
		col("completed", "Completed", "status", "completed"),
		col("cancelled", "Cancelled", "status", "cancelled"),
		col("wedding", "Wedding", "type", "wedding"),
		col("portrait", "Portrait", "type", "portrait"),
		col("corporate", "Corporate", "type", "corporate"),
		staffRole("photographer", "Has photographer", "photographer"),
		staffRole("videographer", "Has videographer", "videographer"),
		staffRole("editor", "Has editor", "editor"),
		custom("upcoming", "Upcoming", func(e Env) query.Predicate {
			return query.Gte("event_date", e.Today)
		}),
		custom("past", "Past", func(e Env) query.Predicate {
			return query.Lt("event_date", e.Today)
		}),
		custom("balance_due", "Balance due", func(Env) query.Predicate {
			return query.Gte("balance_due", 0.01)
		}),
	},
	DefaultSort: "event_date",
	PageSize:    defaultPageSize,
	MaxPageSize: maxPageSize,
	Realtime:    true,
	AuxTables:   []model.Table{model.TablePayments, model.TableBalanceClosings},
	Visibility:  VisibilityAssignedOrFreelancer,
	StaffJoin:   &StaffJoin{Table: model.TableEventStaff, ParentColumn: "event_id", RoleColumn: "role"},
}

// Quotations lists quotes. With no status selected only valid, unconverted
// quotes are shown.
var Quotations = &FilterConfig{
	Name:          "quotations",
	Table:         model.TableQuotations,
	SearchColumns: []string{"title", "notes"},
	RelatedSearch: clientName,
	SortOptions: []SortOption{
		newest,
		{Key: "valid_until", Label: "Valid until", Column: "valid_until"},
		{Key: "amount", Label: "Amount", Column: "amount"},
	},
	Filters: []FilterOption{
		status(StatusConverted, "Converted"),
		status(StatusExpired, "Expired"),
		status(StatusValid, "Valid"),
		status(StatusPending, "Pending"),
		col("wedding", "Wedding", "event_type", "wedding"),
		col("portrait", "Portrait", "event_type", "portrait"),
		col("corporate", "Corporate", "event_type", "corporate"),
	},
	DefaultSort: "newest",
	DefaultDesc: true,
	PageSize:    defaultPageSize,
	MaxPageSize: maxPageSize,
	Realtime:    true,
	Status:      &StatusRule{ConvertedColumn: "converted", ValidUntilColumn: "valid_until"},
}

// Freelancers lists the workspace's freelancer roster.
var Freelancers = &FilterConfig{
	Name:          "freelancers",
	Table:         model.TableFreelancers,
	SearchColumns: []string{"name", "email", "phone"},
	SortOptions: []SortOption{
		{Key: "name", Label: "Name", Column: "name"},
		{Key: "rate", Label: "Rate", Column: "rate"},
		newest,
	},
	Filters: []FilterOption{
		col("photographer", "Photographer", "role", "photographer"),
		col("videographer", "Videographer", "role", "videographer"),
		col("editor", "Editor", "role", "editor"),
		col("assistant", "Assistant", "role", "assistant"),
		col("active", "Active", "active", true),
		col("inactive", "Inactive", "active", false),
	},
	DefaultSort: "name",
	PageSize:    defaultPageSize,
	MaxPageSize: maxPageSize,
	Realtime:    true,
}

// AccountingEntries lists income and expense entries.
var AccountingEntries = &FilterConfig{
	Name:          "accounting_entries",
	Table:         model.TableAccountingEntries,
	SearchColumns: []string{"description", "category"},
	SortOptions: []SortOption{
		{Key: "entry_date", Label: "Date", Column: "entry_date"},
		{Key: "amount", Label: "Amount", Column: "amount"},
		newest,
	},
	Filters: []FilterOption{
		col("income", "Income", "entry_type", "income"),
		col("expense", "Expense", "entry_type", "expense"),
		col("cash", "Cash", "payment_method", "cash"),
		col("card", "Card", "payment_method", "card"),
		col("bank_transfer", "Bank transfer", "payment_method", "bank_transfer"),
		custom("this_month", "This month", func(e Env) query.Predicate {
			return query.Gte("entry_date", e.Today[:8]+"01")
		}),
	},
	DefaultSort: "entry_date",
	DefaultDesc: true,
	PageSize:    defaultPageSize,
	MaxPageSize: maxPageSize,
	Realtime:    true,
}

var entities = map[string]*FilterConfig{
	Clients.Name:           Clients,
	Tasks.Name:             Tasks,
	Events.Name:            Events,
	Quotations.Name:        Quotations,
	Freelancers.Name:       Freelancers,
	AccountingEntries.Name: AccountingEntries,
}

// Entity returns the list configuration registered under name.
func Entity(name string) (*FilterConfig, bool) {
	cfg, ok := entities[name]
	return cfg, ok
}

// Entities returns the registered list names, sorted.
func Entities() []string {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
