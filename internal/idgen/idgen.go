// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/alfredjeanlab/studiodesk/internal/model"
)

// DefaultPrefix is used for tables without a registered prefix.
var DefaultPrefix = "sd-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

var prefixes = map[model.Table]string{
	model.TableClients:           "cl-",
	model.TableEvents:            "ev-",
	model.TableEventStaff:        "es-",
	model.TableTasks:             "tk-",
	model.TableQuotations:        "qt-",
	model.TableFreelancers:       "fl-",
	model.TableAccountingEntries: "ac-",
	model.TablePayments:          "pay-",
	model.TableBalanceClosings:   "bc-",
}

// Prefix returns the ID prefix for rows of t.
func Prefix(t model.Table) string {
	if p, ok := prefixes[t]; ok {
		return p
	}
	return DefaultPrefix
}

// Generate returns a new unique ID using the default prefix.
func Generate() (string, error) {
	return GenerateWithPrefix(DefaultPrefix)
}

// ForTable returns a new unique ID for a row of t.
func ForTable(t model.Table) (string, error) {
	return GenerateWithPrefix(Prefix(t))
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
