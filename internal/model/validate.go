package model

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks that the scope names a workspace and, when set, a known role.
func (s Scope) Validate() error {
	var ve ValidationError
	if strings.TrimSpace(s.WorkspaceID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "workspace_id", Message: "is required"})
	}
	if s.Role != "" && !s.Role.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "role", Message: fmt.Sprintf("invalid value %q", s.Role)})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateRow checks that every column of r belongs to table t. Server-managed
// columns (id, workspace_id, created_at, updated_at) are rejected when
// managed is true, since callers may not set them directly.
func ValidateRow(t Table, r Row, managed bool) error {
	if !t.IsValid() {
		return &ValidationError{Errors: []FieldError{{Field: "table", Message: fmt.Sprintf("unknown table %q", t)}}}
	}

	cols := make([]string, 0, len(r))
	for col := range r {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var ve ValidationError
	for _, col := range cols {
		if !HasColumn(t, col) {
			ve.Errors = append(ve.Errors, FieldError{Field: col, Message: "unknown column"})
			continue
		}
		if managed && isManagedColumn(col) {
			ve.Errors = append(ve.Errors, FieldError{Field: col, Message: "is managed by the server"})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func isManagedColumn(col string) bool {
	for _, c := range commonColumns {
		if c == col {
			return true
		}
	}
	return false
}
