// Package assistant answers metric questions in the dashboard chat. The
// heuristic agent routes on keywords and grounds its answers in the tables
// actually present in the tenant's analytics schema.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/saulto/saulto/internal/warehouse"
)

// Agent produces one assistant reply for a user chat message.
type Agent interface {
	Reply(ctx context.Context, schemaKey int64, message string) (string, error)
}

// TableLister is the warehouse surface the agent needs.
type TableLister interface {
	ListTables(ctx context.Context, schemaKey int64) ([]warehouse.TableInfo, error)
}

// topic maps question keywords to the core object that answers them.
type topic struct {
	keywords []string
	table    string
	answer   string
}

var topics = []topic{
	{
		keywords: []string{"revenue", "invoice", "billing", "outstanding"},
		table:    "core_harvest_invoices",
		answer:   "Revenue questions are answered from %s. It carries invoice amounts, due dates, and a derived overdue status per invoice.",
	},
	{
		keywords: []string{"hours", "time", "utilization", "billable"},
		table:    "core_harvest_time_entries",
		answer:   "Tracked time lives in %s, including billable flags, rates, and a derived billable_amount per entry.",
	},
	{
		keywords: []string{"deal", "pipeline", "sales", "won"},
		table:    "core_hubspot_deals",
		answer:   "Sales pipeline data lives in %s, with deal amounts, stages, and derived is_won/is_closed flags.",
	},
	{
		keywords: []string{"client", "customer", "account"},
		table:    "core_harvest_clients",
		answer:   "Client records are in %s. Join it to invoices or time entries on client_id.",
	},
	{
		keywords: []string{"contact", "lead"},
		table:    "core_hubspot_contacts",
		answer:   "Contact records are in %s, keyed by the HubSpot object id with lifecycle stage included.",
	},
	{
		keywords: []string{"expense", "cost", "spend"},
		table:    "core_harvest_expenses",
		answer:   "Expenses are in %s, with amounts, categories, and billable flags.",
	},
}

// HeuristicAgent is a deterministic keyword router. It never fabricates a
// table: a topic is only suggested when its core view exists in the schema.
type HeuristicAgent struct {
	lister TableLister
}

// NewHeuristicAgent creates an agent. lister may be nil when no warehouse
// is attached; replies then fall back to generic guidance.
func NewHeuristicAgent(lister TableLister) *HeuristicAgent {
	return &HeuristicAgent{lister: lister}
}

// Reply answers one chat message.
func (a *HeuristicAgent) Reply(ctx context.Context, schemaKey int64, message string) (string, error) {
	available := map[string]bool{}
	var names []string
	if a.lister != nil {
		tables, err := a.lister.ListTables(ctx, schemaKey)
		if err != nil {
			return "", fmt.Errorf("list warehouse tables: %w", err)
		}
		for _, t := range tables {
			available[t.Name] = true
			if strings.HasPrefix(t.Name, "core_") {
				names = append(names, t.Name)
			}
		}
	}

	lower := strings.ToLower(message)

	if strings.Contains(lower, "table") || strings.Contains(lower, "what data") || strings.Contains(lower, "schema") {
		if len(names) == 0 {
			return "No analytics tables exist yet. Connect a data source and run a sync to populate your warehouse.", nil
		}
		return fmt.Sprintf("Your warehouse currently exposes these core tables: %s.", strings.Join(names, ", ")), nil
	}

	for _, tp := range topics {
		for _, kw := range tp.keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			if available[tp.table] {
				return fmt.Sprintf(tp.answer, tp.table), nil
			}
			return fmt.Sprintf("I'd answer that from %s, but it hasn't been synced yet. Connect the source and run a sync first.", tp.table), nil
		}
	}

	return "I can help with questions about revenue, tracked time, clients, deals, contacts, and expenses, or list the tables available in your warehouse. What would you like to know?", nil
}
