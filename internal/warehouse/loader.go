package warehouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/saulto/saulto/internal/config"
)

// InsertRaw bulk-inserts extracted records into raw_<source>_<entity> in the
// tenant's schema, creating the table on first use. Each record is stored as
// an opaque jsonb blob tagged with the originating connector.
//
// Retention follows the configured policy: "replace" truncates before
// loading so repeated syncs do not accumulate duplicates; "append" keeps
// prior rows.
func (w *Warehouse) InsertRaw(ctx context.Context, schemaKey int64, table string, records []json.RawMessage, source string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	schema := SchemaName(schemaKey)
	target := qualify(schema, table)

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		data jsonb NOT NULL,
		source_system text NOT NULL,
		loaded_at timestamptz NOT NULL DEFAULT now()
	)`, target)
	if _, err := w.pool.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("create raw table %s: %w", target, err)
	}

	if w.retention == config.RetentionReplace {
		if _, err := w.pool.Exec(ctx, "TRUNCATE TABLE "+target); err != nil {
			return 0, fmt.Errorf("truncate raw table %s: %w", target, err)
		}
	}

	batch := &pgx.Batch{}
	insertSQL := fmt.Sprintf("INSERT INTO %s (data, source_system) VALUES ($1, $2)", target)
	for _, rec := range records {
		batch.Queue(insertSQL, []byte(rec), source)
	}

	br := w.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range records {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", target, err)
		}
	}

	w.log.Info("raw records loaded",
		"schema", schema, "table", table, "records", len(records), "retention", string(w.retention))
	return len(records), nil
}
