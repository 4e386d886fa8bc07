package idgen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

func TestGenerate(t *testing.T) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(DefaultPrefix) + `[a-zA-Z0-9]{12}$`)
	for i := 0; i < 100; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("Generate() = %q, does not match %s", id, pattern)
		}
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestForTable(t *testing.T) {
	seen := make(map[string]model.Table)
	for _, table := range model.Tables() {
		p := Prefix(table)
		if p == DefaultPrefix {
			t.Errorf("table %s has no registered prefix", table)
		}
		if other, dup := seen[p]; dup {
			t.Errorf("prefix %q shared by %s and %s", p, table, other)
		}
		seen[p] = table

		id, err := ForTable(table)
		if err != nil {
			t.Fatalf("ForTable(%s) error: %v", table, err)
		}
		if !strings.HasPrefix(id, p) || len(id) != len(p)+Length {
			t.Errorf("ForTable(%s) = %q, want prefix %q and %d random chars", table, id, p, Length)
		}
	}
	if got := Prefix("unknown"); got != DefaultPrefix {
		t.Errorf("Prefix(unknown) = %q, want %q", got, DefaultPrefix)
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	prefix := "test-"
	id, err := GenerateWithPrefix(prefix)
	if err != nil {
		t.Fatalf("GenerateWithPrefix(%q) error: %v", prefix, err)
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `[a-zA-Z0-9]+$`)
	if !pattern.MatchString(id) || len(id) != len(prefix)+Length {
		t.Errorf("GenerateWithPrefix(%q) = %q", prefix, id)
	}
}
