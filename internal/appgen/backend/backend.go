// Package backend executes model-issued data commands against a tenant's storage.
//
// Two variants share the Client contract: a relational client backed by one
// SQLite file per tenant and a key-value client backed by a Redis namespace per
// tenant. Individual command failures never abort a batch; the failing slot
// holds an error marker instead.
package backend

import (
	"context"
	"fmt"
)

// Variant names a backend implementation.
type Variant string

const (
	Relational Variant = "sql"
	KeyValue   Variant = "redis"
)

// ParseVariant maps configuration values onto a Variant.
func ParseVariant(v string) (Variant, error) {
	switch v {
	case "sql", "sqlite", "relational":
		return Relational, nil
	case "redis", "kv", "key-value":
		return KeyValue, nil
	default:
		return "", fmt.Errorf("unknown backend variant %q", v)
	}
}

// ExecutedMarker is stored for successful statements that return no rows.
const ExecutedMarker = "Command executed"

// Results maps a command's result key to its outcome.
type Results map[string]any

// ErrorResult is the marker stored for a failed command.
func ErrorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// IsErrorResult reports whether v is an error marker.
func IsErrorResult(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	_, ok = m["error"]
	return ok
}

// Client is the per-tenant data access contract.
type Client interface {
	Variant() Variant
	// ExecuteCommands runs cmds in order. The returned error is reserved for
	// failures that prevent running the batch at all.
	ExecuteCommands(ctx context.Context, cmds []Command) (Results, error)
	IsInitialized(ctx context.Context) (bool, error)
	MarkInitialized(ctx context.Context) error
	// GetSchema describes the stored data model for prompts.
	GetSchema(ctx context.Context) (string, error)
	// Template returns the object exposed to page templates as `db`.
	Template(ctx context.Context) any
	Close() error
}

// Opener hands out a Client for a tenant.
type Opener interface {
	Variant() Variant
	Open(ctx context.Context, tenantID string) (Client, error)
}
