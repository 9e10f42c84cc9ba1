package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	errx "github.com/genapp-poc-v1/server/internal/core/error"
	"github.com/genapp-poc-v1/server/pkg/sqlite"
)

var readKeywords = []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES"}

// SQLClient is the relational variant: one SQLite database per tenant.
type SQLClient struct {
	db *sql.DB
}

// NewSQLClient wraps an open database handle. Close releases it.
func NewSQLClient(db *sql.DB) *SQLClient {
	return &SQLClient{db: db}
}

func (c *SQLClient) Variant() Variant { return Relational }

func (c *SQLClient) ExecuteCommands(ctx context.Context, cmds []Command) (Results, error) {
	if err := c.db.PingContext(ctx); err != nil {
		return nil, errx.WrapSQLite(fmt.Errorf("sqlite unavailable: %w", err))
	}

	results := make(Results, len(cmds))
	for i, cmd := range cmds {
		sc, ok := cmd.(SQLCommand)
		if !ok {
			results[resultKey(cmd, i)] = ErrorResult(fmt.Errorf("command of type %T is not a relational command", cmd))
			continue
		}
		key := resultKey(sc, i)
		if strings.TrimSpace(sc.Query) == "" {
			results[key] = ErrorResult(fmt.Errorf("empty query"))
			continue
		}

		if isReadQuery(sc.Query) {
			rows, err := c.Query(ctx, sc.Query)
			if err != nil {
				results[key] = ErrorResult(err)
				continue
			}
			results[key] = rows
			continue
		}

		if _, err := c.db.ExecContext(ctx, sc.Query); err != nil {
			results[key] = ErrorResult(err)
			continue
		}
		results[key] = ExecutedMarker
	}
	return results, nil
}

// Query runs a read statement and returns every row keyed by column name.
func (c *SQLClient) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *SQLClient) IsInitialized(ctx context.Context) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`,
	).Scan(&n)
	if err != nil {
		return false, errx.WrapSQLite(fmt.Errorf("failed to inspect schema: %w", err))
	}
	return n > 0, nil
}

// MarkInitialized is a no-op: the existence of a user table is the marker.
func (c *SQLClient) MarkInitialized(context.Context) error { return nil }

func (c *SQLClient) GetSchema(ctx context.Context) (string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT type, name, COALESCE(sql, '') FROM sqlite_master
		 WHERE type IN ('table', 'view', 'index') AND name NOT LIKE 'sqlite_%'
		 ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'view' THEN 1 ELSE 2 END, name`)
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var typ, name, ddl string
		if err := rows.Scan(&typ, &name, &ddl); err != nil {
			return "", fmt.Errorf("failed to scan schema row: %w", err)
		}
		lines = append(lines, fmt.Sprintf("Type: %s, Name: %s, SQL: %s", typ, name, ddl))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *SQLClient) Template(ctx context.Context) any {
	return &SQLTemplateView{ctx: ctx, client: c}
}

func (c *SQLClient) Close() error { return c.db.Close() }

// SQLTemplateView is exposed to page templates as `db`.
type SQLTemplateView struct {
	ctx    context.Context
	client *SQLClient
}

// Query lets templates run read statements, e.g. {% for t in db.Query("SELECT * FROM todos") %}.
func (v *SQLTemplateView) Query(query string) ([]map[string]any, error) {
	if !isReadQuery(query) {
		return nil, fmt.Errorf("templates may only run read queries")
	}
	return v.client.Query(v.ctx, query)
}

// SQLOpener opens the tenant's database file under the configured data directory.
type SQLOpener struct {
	Config sqlite.Config
}

func (o SQLOpener) Variant() Variant { return Relational }

func (o SQLOpener) Open(ctx context.Context, tenantID string) (Client, error) {
	db, err := o.Config.Open(ctx, tenantID)
	if err != nil {
		return nil, errx.WrapSQLite(fmt.Errorf("failed to open tenant database: %w", err))
	}
	return NewSQLClient(db), nil
}

func isReadQuery(q string) bool {
	q = strings.TrimSpace(q)
	for _, kw := range readKeywords {
		if len(q) >= len(kw) && strings.EqualFold(q[:len(kw)], kw) {
			if len(q) == len(kw) || !isIdentChar(q[len(kw)]) {
				return true
			}
		}
	}
	return false
}

func isIdentChar(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func resultKey(cmd Command, i int) string {
	if k := cmd.ResultKey(); k != "" {
		return k
	}
	return fmt.Sprintf("command_%d", i+1)
}
