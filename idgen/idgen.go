// Package idgen generates the run identifiers used by tagqa.
//
// Every run id is a UUIDv7 behind a kind prefix, so ids sort by creation
// time within a kind and the kind is readable from the id alone.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Run kinds.
const (
	ExaminationPrefix = "exm_"
	MonitorPrefix     = "mon_"
)

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator yielding prefix1, prefix2, ...
// Not safe for concurrent use. Meant for tests and reproducible reports.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// ExaminationID returns a new examination run id.
func ExaminationID() string { return ExaminationPrefix + Default() }

// MonitorID returns a new monitor run id.
func MonitorID() string { return MonitorPrefix + Default() }

// Parse validates a run id, with or without a kind prefix, and returns the
// kind prefix ("" when absent) and the canonical UUID.
func Parse(id string) (kind, u string, err error) {
	for _, p := range []string{ExaminationPrefix, MonitorPrefix} {
		if rest, ok := strings.CutPrefix(id, p); ok {
			kind, id = p, rest
			break
		}
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", "", fmt.Errorf("idgen: invalid id: %w", err)
	}
	return kind, parsed.String(), nil
}
