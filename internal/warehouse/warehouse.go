// Package warehouse owns the per-tenant analytics schemas in Postgres.
// It loads raw connector records as opaque jsonb blobs and materialises the
// staging → intermediate → core layers with generated SQL. This layer talks
// raw SQL through pgx on purpose: the objects it manages are dynamic DDL,
// not application models, so GORM is bypassed here.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saulto/saulto/internal/config"
)

// Warehouse executes analytics-schema DDL/DML against the shared pool.
type Warehouse struct {
	pool      *pgxpool.Pool
	retention config.RetentionPolicy
	log       *slog.Logger
}

// New creates a Warehouse. The pool is shared with River and GORM.
func New(pool *pgxpool.Pool, retention config.RetentionPolicy, log *slog.Logger) *Warehouse {
	return &Warehouse{pool: pool, retention: retention, log: log}
}

// SchemaName derives the tenant's analytics schema from its schema key.
func SchemaName(schemaKey int64) string {
	return fmt.Sprintf("analytics_company_%d", schemaKey)
}

// quoteIdent quotes a SQL identifier. Schema and table names here are
// generated, but model names come from users and must not break out.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify renders schema.name with both parts quoted.
func qualify(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}

// EnsureSchema creates the tenant's analytics schema if it does not exist.
func (w *Warehouse) EnsureSchema(ctx context.Context, schemaKey int64) error {
	schema := SchemaName(schemaKey)
	if _, err := w.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// TableInfo describes one table or view in a tenant schema.
type TableInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "table" or "view"
	Rows int64  `json:"rows"` // estimate from pg_class, -1 if unknown
}

// ColumnInfo describes one column of a tenant-schema table.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// ListTables returns the tables and views of the tenant's analytics schema.
func (w *Warehouse) ListTables(ctx context.Context, schemaKey int64) ([]TableInfo, error) {
	schema := SchemaName(schemaKey)
	rows, err := w.pool.Query(ctx, `
		SELECT c.relname,
		       CASE c.relkind WHEN 'v' THEN 'view' ELSE 'table' END,
		       c.reltuples::bigint
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'v')
		ORDER BY c.relname`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schema, err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.Kind, &t.Rows); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// ListColumns returns the columns of one table in the tenant's schema.
func (w *Warehouse) ListColumns(ctx context.Context, schemaKey int64, table string) ([]ColumnInfo, error) {
	schema := SchemaName(schemaKey)
	rows, err := w.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// existingTables returns the set of base-table names in the tenant schema.
func (w *Warehouse) existingTables(ctx context.Context, schema string) (map[string]bool, error) {
	rows, err := w.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'`, schema)
	if err != nil {
		return nil, fmt.Errorf("list raw tables in %s: %w", schema, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		existing[name] = true
	}
	return existing, rows.Err()
}
