package warehouse_test

import (
	"strings"
	"testing"

	"github.com/saulto/saulto/internal/connector"
	"github.com/saulto/saulto/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition() connector.Definition {
	return connector.Definition{
		Name: "harvest",
		Entities: []connector.Entity{
			{
				Name: "clients",
				Columns: []connector.Column{
					{Name: "id", Path: "id", Type: "bigint"},
					{Name: "name", Path: "name", Type: "text"},
				},
			},
			{
				Name: "invoices",
				Columns: []connector.Column{
					{Name: "id", Path: "id", Type: "bigint"},
					{Name: "client_id", Path: "client.id", Type: "bigint"},
					{Name: "amount", Path: "amount", Type: "numeric"},
				},
				Derived: []connector.Derived{
					{Name: "is_paid", Expr: "amount = 0"},
				},
			},
		},
	}
}

func TestTransformPlan_Deterministic(t *testing.T) {
	def := testDefinition()
	raw := map[string]bool{"raw_harvest_clients": true, "raw_harvest_invoices": true}

	first := warehouse.TransformPlan("analytics_company_7", def, raw)
	second := warehouse.TransformPlan("analytics_company_7", def, raw)
	assert.Equal(t, first, second)
}

func TestTransformPlan_DropsBeforeCreates(t *testing.T) {
	def := testDefinition()
	raw := map[string]bool{"raw_harvest_clients": true, "raw_harvest_invoices": true}

	plan := warehouse.TransformPlan("analytics_company_7", def, raw)
	require.Len(t, plan, 12) // 6 drops + 3 statements per entity

	// Drops come first: all views, then int tables, then stg tables.
	for i, stmt := range plan[:2] {
		assert.True(t, strings.HasPrefix(stmt, "DROP VIEW IF EXISTS"), "stmt %d: %s", i, stmt)
		assert.Contains(t, stmt, "core_harvest_")
	}
	for i, stmt := range plan[2:4] {
		assert.True(t, strings.HasPrefix(stmt, "DROP TABLE IF EXISTS"), "stmt %d: %s", i, stmt)
		assert.Contains(t, stmt, "int_harvest_")
	}
	for i, stmt := range plan[4:6] {
		assert.True(t, strings.HasPrefix(stmt, "DROP TABLE IF EXISTS"), "stmt %d: %s", i, stmt)
		assert.Contains(t, stmt, "stg_harvest_")
	}
	for _, stmt := range plan[6:] {
		assert.True(t, strings.HasPrefix(stmt, "CREATE"), "create phase: %s", stmt)
	}
}

func TestTransformPlan_SkipsEntitiesWithoutRawTable(t *testing.T) {
	def := testDefinition()
	raw := map[string]bool{"raw_harvest_clients": true} // no invoices

	plan := warehouse.TransformPlan("analytics_company_7", def, raw)

	// Invoices objects are still dropped but never recreated.
	joined := strings.Join(plan, "\n")
	assert.Contains(t, joined, `DROP TABLE IF EXISTS "analytics_company_7"."stg_harvest_invoices"`)
	for _, stmt := range plan {
		if strings.HasPrefix(stmt, "CREATE") {
			assert.NotContains(t, stmt, "invoices")
		}
	}
	assert.Contains(t, joined, `CREATE TABLE "analytics_company_7"."stg_harvest_clients"`)
	assert.Contains(t, joined, `CREATE VIEW "analytics_company_7"."core_harvest_clients"`)
}

func TestTransformPlan_EmptyRawSetOnlyDrops(t *testing.T) {
	def := testDefinition()

	plan := warehouse.TransformPlan("analytics_company_7", def, map[string]bool{})
	require.Len(t, plan, 6)
	for _, stmt := range plan {
		assert.True(t, strings.HasPrefix(stmt, "DROP"), stmt)
	}
}

func TestTransformPlan_StagingProjections(t *testing.T) {
	def := testDefinition()
	raw := map[string]bool{"raw_harvest_invoices": true}

	plan := warehouse.TransformPlan("analytics_company_7", def, raw)

	var stg string
	for _, stmt := range plan {
		if strings.Contains(stmt, `CREATE TABLE "analytics_company_7"."stg_harvest_invoices"`) {
			stg = stmt
		}
	}
	require.NotEmpty(t, stg)
	assert.Contains(t, stg, "(data ->> 'id')::bigint AS id")
	assert.Contains(t, stg, "(data #>> '{client,id}')::bigint AS client_id")
	assert.Contains(t, stg, "loaded_at AS _loaded_at")
	assert.Contains(t, stg, `FROM "analytics_company_7"."raw_harvest_invoices"`)
}

func TestTransformPlan_IntermediateDerivedColumns(t *testing.T) {
	def := testDefinition()
	raw := map[string]bool{"raw_harvest_invoices": true}

	plan := warehouse.TransformPlan("analytics_company_7", def, raw)

	var intStmt string
	for _, stmt := range plan {
		if strings.Contains(stmt, `CREATE TABLE "analytics_company_7"."int_harvest_invoices"`) {
			intStmt = stmt
		}
	}
	require.NotEmpty(t, intStmt)
	assert.Contains(t, intStmt, "(amount = 0) AS is_paid")
	assert.Contains(t, intStmt, `FROM "analytics_company_7"."stg_harvest_invoices"`)
}

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "analytics_company_42", warehouse.SchemaName(42))
}
