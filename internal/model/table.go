package model

// Table identifies one tenant-scoped table of the studio backend.
type Table string

const (
	TableClients           Table = "clients"
	TableEvents            Table = "events"
	TableEventStaff        Table = "event_staff"
	TableTasks             Table = "tasks"
	TableQuotations        Table = "quotations"
	TableFreelancers       Table = "freelancers"
	TableAccountingEntries Table = "accounting_entries"
	TablePayments          Table = "payments"
	TableBalanceClosings   Table = "balance_closings"
)

// String returns the string representation of the table.
func (t Table) String() string {
	return string(t)
}

// IsValid checks whether the table is a known value.
func (t Table) IsValid() bool {
	_, ok := tableColumns[t]
	return ok
}

// commonColumns are present on every table.
var commonColumns = []string{"id", "workspace_id", "created_at", "updated_at"}

// tableColumns is the allow-list of columns per table. Anything not listed
// here is rejected before it reaches a backend.
var tableColumns = map[Table][]string{
	TableClients: {
		"name", "email", "phone", "address", "status", "source", "notes",
	},
	TableEvents: {
		"title", "type", "client_id", "event_date", "venue", "status",
		"assigned_to", "freelancer_id", "total_amount", "balance_due",
	},
	TableEventStaff: {
		"event_id", "staff_id", "freelancer_id", "role",
	},
	TableTasks: {
		"title", "description", "status", "priority", "due_date",
		"assigned_to", "event_id", "client_id",
	},
	TableQuotations: {
		"title", "client_id", "event_type", "amount", "converted",
		"valid_until", "notes",
	},
	TableFreelancers: {
		"name", "email", "phone", "role", "rate", "active",
	},
	TableAccountingEntries: {
		"description", "entry_type", "category", "amount", "entry_date",
		"payment_method", "event_id", "client_id",
	},
	TablePayments: {
		"event_id", "amount", "paid_at", "method", "reference",
	},
	TableBalanceClosings: {
		"event_id", "closed_amount", "closed_at", "notes",
	},
}

// Tables returns every known table in a stable order.
func Tables() []Table {
	return []Table{
		TableClients, TableEvents, TableEventStaff, TableTasks, TableQuotations,
		TableFreelancers, TableAccountingEntries, TablePayments, TableBalanceClosings,
	}
}

// Columns returns the full column list for t, common columns first.
// It returns nil for unknown tables.
func Columns(t Table) []string {
	cols, ok := tableColumns[t]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(commonColumns)+len(cols))
	out = append(out, commonColumns...)
	return append(out, cols...)
}

// HasColumn reports whether col is an allowed column of t.
func HasColumn(t Table, col string) bool {
	if !t.IsValid() {
		return false
	}
	for _, c := range commonColumns {
		if c == col {
			return true
		}
	}
	for _, c := range tableColumns[t] {
		if c == col {
			return true
		}
	}
	return false
}
