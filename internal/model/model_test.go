package model

import (
	"errors"
	"testing"
)

func TestTable_IsValid(t *testing.T) {
	for _, tc := range []struct {
		table Table
		want  bool
	}{
		{TableClients, true},
		{TableEventStaff, true},
		{TableBalanceClosings, true},
		{Table(""), false},
		{Table("users"), false},
	} {
		if got := tc.table.IsValid(); got != tc.want {
			t.Errorf("Table(%q).IsValid() = %v, want %v", tc.table, got, tc.want)
		}
	}
}

func TestTables_AllValid(t *testing.T) {
	for _, tbl := range Tables() {
		if !tbl.IsValid() {
			t.Errorf("Tables() returned invalid table %q", tbl)
		}
		cols := Columns(tbl)
		if len(cols) < 5 || cols[0] != "id" || cols[1] != "workspace_id" {
			t.Errorf("Columns(%q) = %v, want common columns first", tbl, cols)
		}
	}
	if len(Tables()) != len(tableColumns) {
		t.Errorf("Tables() has %d entries, tableColumns has %d", len(Tables()), len(tableColumns))
	}
}

func TestHasColumn(t *testing.T) {
	for _, tc := range []struct {
		table Table
		col   string
		want  bool
	}{
		{TableClients, "id", true},
		{TableClients, "name", true},
		{TableClients, "valid_until", false},
		{TableQuotations, "valid_until", true},
		{Table("nope"), "name", false},
		{Table("nope"), "id", false},
	} {
		if got := HasColumn(tc.table, tc.col); got != tc.want {
			t.Errorf("HasColumn(%q, %q) = %v, want %v", tc.table, tc.col, got, tc.want)
		}
	}
}

func TestRole_Elevated(t *testing.T) {
	for _, tc := range []struct {
		role Role
		want bool
	}{
		{RoleOwner, true},
		{RoleAdmin, true},
		{RoleManager, true},
		{RoleStaff, false},
		{RoleFreelancer, false},
		{Role(""), false},
	} {
		if got := tc.role.Elevated(); got != tc.want {
			t.Errorf("Role(%q).Elevated() = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestRow_Accessors(t *testing.T) {
	r := Row{"id": "cl-1", "amount": 12.5, "notes": nil}
	if r.ID() != "cl-1" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.String("amount") != "12.5" {
		t.Errorf("String(amount) = %q", r.String("amount"))
	}
	if r.String("notes") != "" || r.String("missing") != "" {
		t.Error("nil and missing columns should format as empty")
	}

	c := r.Clone()
	c["id"] = "cl-2"
	if r.ID() != "cl-1" {
		t.Error("Clone shares storage with the original")
	}
}

func TestScope_Validate(t *testing.T) {
	if err := (Scope{WorkspaceID: "ws-1", Role: RoleStaff}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := (Scope{Role: Role("root")}).Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("got %d field errors, want 2: %v", len(ve.Errors), ve)
	}
}

func TestValidateRow(t *testing.T) {
	for _, tc := range []struct {
		name    string
		table   Table
		row     Row
		managed bool
		wantErr bool
	}{
		{"Valid", TableClients, Row{"name": "Ada", "email": "a@x"}, true, false},
		{"UnknownColumn", TableClients, Row{"name": "Ada", "shoe_size": 9}, true, true},
		{"ManagedColumn", TableClients, Row{"id": "x"}, true, true},
		{"ManagedAllowed", TableClients, Row{"id": "x", "workspace_id": "ws"}, false, false},
		{"UnknownTable", Table("users"), Row{}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRow(tc.table, tc.row, tc.managed)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateRow() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
