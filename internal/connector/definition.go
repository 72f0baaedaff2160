// Package connector defines SaaS source connectors as data: one Definition
// per provider (OAuth endpoints, entity list, field projections) interpreted
// by a single generic extract/load/transform pipeline. Adding a source means
// adding a Definition to the registry, not writing a new pipeline.
package connector

import (
	"fmt"
	"strings"
)

// PageStyle selects how a provider paginates its list endpoints.
type PageStyle string

const (
	// PageStyleNumbered uses page/per_page params with total_pages and
	// next_page fields in the response envelope (Harvest).
	PageStyleNumbered PageStyle = "numbered"
	// PageStyleCursor uses an opaque `after` cursor echoed back under
	// paging.next.after (HubSpot).
	PageStyleCursor PageStyle = "cursor"
)

// Column maps one staging column to a JSON path inside the raw record blob.
type Column struct {
	Name string // staging column name
	Path string // dot-separated path into the record JSON, e.g. "client.id"
	Type string // Postgres cast type: bigint, text, numeric, boolean, date, timestamptz
}

// SelectExpr renders the jsonb projection for this column, reading from the
// given jsonb column of the raw table.
func (c Column) SelectExpr(dataCol string) string {
	var access string
	if strings.Contains(c.Path, ".") {
		parts := strings.Split(c.Path, ".")
		access = fmt.Sprintf("%s #>> '{%s}'", dataCol, strings.Join(parts, ","))
	} else {
		access = fmt.Sprintf("%s ->> '%s'", dataCol, c.Path)
	}
	if c.Type == "" || c.Type == "text" {
		return fmt.Sprintf("(%s) AS %s", access, c.Name)
	}
	return fmt.Sprintf("(%s)::%s AS %s", access, c.Type, c.Name)
}

// Derived is a computed intermediate-layer column expressed over the
// staging columns of the same entity.
type Derived struct {
	Name string
	Expr string // SQL expression, e.g. "round(hours * billable_rate, 2)"
}

// Entity is one syncable object type of a source (clients, invoices, ...).
type Entity struct {
	Name    string   // entity name; also the raw/stg/int/core table suffix
	Path    string   // REST path relative to Definition.BaseURL
	RootKey string   // JSON key holding the page's record array; empty = probe
	Columns []Column // staging projections
	Derived []Derived
}

// Definition is a complete, declarative description of one source.
type Definition struct {
	Name          string
	BaseURL       string
	AuthURL       string
	TokenURL      string
	IdentityURL   string // endpoint probed to resolve the tenant account id
	Scopes        []string
	AccountHeader string // per-request tenant header, e.g. "Harvest-Account-ID"
	PageStyle     PageStyle
	PerPage       int
	Entities      []Entity
}

// Entity returns the named entity, or false if the source does not sync it.
func (d Definition) Entity(name string) (Entity, bool) {
	for _, e := range d.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// RawTable returns the tenant-schema raw table name for an entity.
func (d Definition) RawTable(entity string) string {
	return fmt.Sprintf("raw_%s_%s", d.Name, entity)
}

// StagingTable returns the staging table name for an entity.
func (d Definition) StagingTable(entity string) string {
	return fmt.Sprintf("stg_%s_%s", d.Name, entity)
}

// IntermediateTable returns the intermediate table name for an entity.
func (d Definition) IntermediateTable(entity string) string {
	return fmt.Sprintf("int_%s_%s", d.Name, entity)
}

// CoreView returns the core view name for an entity.
func (d Definition) CoreView(entity string) string {
	return fmt.Sprintf("core_%s_%s", d.Name, entity)
}

// registry holds all known source definitions keyed by name.
var registry = map[string]Definition{
	"harvest": harvestDefinition,
	"hubspot": hubspotDefinition,
}

// Lookup returns the Definition for a source name.
func Lookup(source string) (Definition, error) {
	def, ok := registry[source]
	if !ok {
		return Definition{}, fmt.Errorf("unknown connector source %q", source)
	}
	return def, nil
}

// Sources lists all registered source names in registration order.
func Sources() []string {
	return []string{"harvest", "hubspot"}
}
