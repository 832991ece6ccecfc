// Package idgen generates the identifiers attached to scan batches,
// control activations and admin requests.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings, sortable by
// creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// Batch names scheduler batches.
	Batch = Prefixed("bat_", UUIDv7())
	// Activation names control activations.
	Activation = Prefixed("act_", UUIDv7())
	// Request names MCP and HTTP calls.
	Request = Prefixed("req_", UUIDv7())
)

// Valid reports whether id, stripped of a known prefix, is a UUID.
func Valid(id string) bool {
	for _, p := range []string{"bat_", "act_", "req_"} {
		if len(id) > len(p) && id[:len(p)] == p {
			id = id[len(p):]
			break
		}
	}
	_, err := uuid.Parse(id)
	return err == nil
}
