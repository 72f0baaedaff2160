package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/saulto/saulto/internal/connector"
)

// TransformPlan builds the ordered statement list that rebuilds a source's
// staging/intermediate/core objects inside the given schema.
//
// The plan is deterministic: the same definition and raw-table set always
// yield the same statements. Drops run first in strict dependency order
// (views before tables, intermediate before staging); entities whose raw
// table is absent are dropped but not recreated, so stg/int/core objects
// exist only where raw data exists.
func TransformPlan(schema string, def connector.Definition, rawExists map[string]bool) []string {
	var plan []string

	// Phase 1: drop every derived object for this source.
	for _, ent := range def.Entities {
		plan = append(plan, "DROP VIEW IF EXISTS "+qualify(schema, def.CoreView(ent.Name)))
	}
	for _, ent := range def.Entities {
		plan = append(plan, "DROP TABLE IF EXISTS "+qualify(schema, def.IntermediateTable(ent.Name)))
	}
	for _, ent := range def.Entities {
		plan = append(plan, "DROP TABLE IF EXISTS "+qualify(schema, def.StagingTable(ent.Name)))
	}

	// Phase 2-4: rebuild stg, int, and core per entity with raw data.
	for _, ent := range def.Entities {
		if !rawExists[def.RawTable(ent.Name)] {
			continue
		}
		plan = append(plan,
			stagingSQL(schema, def, ent),
			intermediateSQL(schema, def, ent),
			coreSQL(schema, def, ent),
		)
	}
	return plan
}

// stagingSQL flattens the raw jsonb blobs into typed columns.
func stagingSQL(schema string, def connector.Definition, ent connector.Entity) string {
	exprs := make([]string, 0, len(ent.Columns)+1)
	for _, col := range ent.Columns {
		exprs = append(exprs, "    "+col.SelectExpr("data"))
	}
	exprs = append(exprs, "    loaded_at AS _loaded_at")

	return fmt.Sprintf("CREATE TABLE %s AS\nSELECT\n%s\nFROM %s",
		qualify(schema, def.StagingTable(ent.Name)),
		strings.Join(exprs, ",\n"),
		qualify(schema, def.RawTable(ent.Name)))
}

// intermediateSQL copies the staging table and appends computed columns.
func intermediateSQL(schema string, def connector.Definition, ent connector.Entity) string {
	exprs := []string{"    *"}
	for _, d := range ent.Derived {
		exprs = append(exprs, fmt.Sprintf("    (%s) AS %s", d.Expr, d.Name))
	}

	return fmt.Sprintf("CREATE TABLE %s AS\nSELECT\n%s\nFROM %s",
		qualify(schema, def.IntermediateTable(ent.Name)),
		strings.Join(exprs, ",\n"),
		qualify(schema, def.StagingTable(ent.Name)))
}

// coreSQL exposes the intermediate table as a passthrough view.
func coreSQL(schema string, def connector.Definition, ent connector.Entity) string {
	return fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s",
		qualify(schema, def.CoreView(ent.Name)),
		qualify(schema, def.IntermediateTable(ent.Name)))
}

// Transform rebuilds all staging/intermediate/core objects for a source in
// the tenant's schema. The whole plan runs inside one transaction so a
// failed rebuild never leaves half-dropped objects visible to readers.
func (w *Warehouse) Transform(ctx context.Context, schemaKey int64, def connector.Definition) error {
	schema := SchemaName(schemaKey)
	existing, err := w.existingTables(ctx, schema)
	if err != nil {
		return err
	}

	plan := TransformPlan(schema, def, existing)

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transform tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range plan {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("transform %s in %s: %w", def.Name, schema, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transform tx: %w", err)
	}

	w.log.Info("transform complete", "schema", schema, "source", def.Name, "statements", len(plan))
	return nil
}

// DeployModel materialises a user-managed SQL model into the tenant schema.
// Core-layer models become views; staging and intermediate models are
// materialised as tables. The previous object is dropped in the same
// transaction as the rebuild.
func (w *Warehouse) DeployModel(ctx context.Context, schemaKey int64, name, layer, query string) error {
	schema := SchemaName(schemaKey)
	target := qualify(schema, name)

	var stmts []string
	switch layer {
	case "core":
		stmts = []string{
			"DROP VIEW IF EXISTS " + target,
			fmt.Sprintf("CREATE VIEW %s AS %s", target, query),
		}
	default:
		stmts = []string{
			"DROP TABLE IF EXISTS " + target,
			fmt.Sprintf("CREATE TABLE %s AS %s", target, query),
		}
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deploy tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("deploy model %s: %w", name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit deploy tx: %w", err)
	}
	return nil
}
