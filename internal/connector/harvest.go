package connector

// harvestDefinition describes the Harvest time-tracking API (v2).
// Raw records are flattened into typed staging columns, then enriched with
// computed billing/status columns at the intermediate layer. The core layer
// is a passthrough view per entity.
var harvestDefinition = Definition{
	Name:          "harvest",
	BaseURL:       "https://api.harvestapp.com/v2",
	AuthURL:       "https://id.getharvest.com/oauth2/authorize",
	TokenURL:      "https://id.getharvest.com/api/v2/oauth2/token",
	IdentityURL:   "https://id.getharvest.com/api/v2/accounts",
	AccountHeader: "Harvest-Account-ID",
	PageStyle:     PageStyleNumbered,
	PerPage:       100,
	Entities: []Entity{
		{
			Name:    "clients",
			Path:    "/clients",
			RootKey: "clients",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "name", Path: "name", Type: "text"},
				{Name: "is_active", Path: "is_active", Type: "boolean"},
				{Name: "currency", Path: "currency", Type: "text"},
				{Name: "created_at", Path: "created_at", Type: "timestamptz"},
				{Name: "updated_at", Path: "updated_at", Type: "timestamptz"},
			},
		},
		{
			Name:    "projects",
			Path:    "/projects",
			RootKey: "projects",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "client_id", Path: "client.id", Type: "bigint"},
				{Name: "client_name", Path: "client.name", Type: "text"},
				{Name: "name", Path: "name", Type: "text"},
				{Name: "code", Path: "code", Type: "text"},
				{Name: "is_active", Path: "is_active", Type: "boolean"},
				{Name: "is_billable", Path: "is_billable", Type: "boolean"},
				{Name: "budget", Path: "budget", Type: "numeric"},
				{Name: "budget_by", Path: "budget_by", Type: "text"},
				{Name: "fee", Path: "fee", Type: "numeric"},
				{Name: "hourly_rate", Path: "hourly_rate", Type: "numeric"},
				{Name: "starts_on", Path: "starts_on", Type: "date"},
				{Name: "ends_on", Path: "ends_on", Type: "date"},
				{Name: "created_at", Path: "created_at", Type: "timestamptz"},
				{Name: "updated_at", Path: "updated_at", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "has_budget", Expr: "budget IS NOT NULL AND budget > 0"},
				{Name: "schedule_days", Expr: "ends_on - starts_on"},
				{Name: "budget_fee_ratio", Expr: "CASE WHEN fee > 0 THEN round(budget / fee, 4) END"},
			},
		},
		{
			Name:    "time_entries",
			Path:    "/time_entries",
			RootKey: "time_entries",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "spent_date", Path: "spent_date", Type: "date"},
				{Name: "hours", Path: "hours", Type: "numeric"},
				{Name: "billable", Path: "billable", Type: "boolean"},
				{Name: "billable_rate", Path: "billable_rate", Type: "numeric"},
				{Name: "cost_rate", Path: "cost_rate", Type: "numeric"},
				{Name: "user_id", Path: "user.id", Type: "bigint"},
				{Name: "user_name", Path: "user.name", Type: "text"},
				{Name: "client_id", Path: "client.id", Type: "bigint"},
				{Name: "project_id", Path: "project.id", Type: "bigint"},
				{Name: "project_name", Path: "project.name", Type: "text"},
				{Name: "task_id", Path: "task.id", Type: "bigint"},
				{Name: "notes", Path: "notes", Type: "text"},
				{Name: "created_at", Path: "created_at", Type: "timestamptz"},
				{Name: "updated_at", Path: "updated_at", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "billable_amount", Expr: "CASE WHEN billable THEN round(hours * billable_rate, 2) ELSE 0 END"},
				{Name: "cost_amount", Expr: "round(hours * cost_rate, 2)"},
				{Name: "margin_amount", Expr: "CASE WHEN billable THEN round(hours * billable_rate - hours * cost_rate, 2) END"},
			},
		},
		{
			Name:    "invoices",
			Path:    "/invoices",
			RootKey: "invoices",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "client_id", Path: "client.id", Type: "bigint"},
				{Name: "client_name", Path: "client.name", Type: "text"},
				{Name: "number", Path: "number", Type: "text"},
				{Name: "state", Path: "state", Type: "text"},
				{Name: "amount", Path: "amount", Type: "numeric"},
				{Name: "due_amount", Path: "due_amount", Type: "numeric"},
				{Name: "tax_amount", Path: "tax_amount", Type: "numeric"},
				{Name: "currency", Path: "currency", Type: "text"},
				{Name: "issue_date", Path: "issue_date", Type: "date"},
				{Name: "due_date", Path: "due_date", Type: "date"},
				{Name: "sent_at", Path: "sent_at", Type: "timestamptz"},
				{Name: "paid_at", Path: "paid_at", Type: "timestamptz"},
				{Name: "created_at", Path: "created_at", Type: "timestamptz"},
				{Name: "updated_at", Path: "updated_at", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "derived_status", Expr: "CASE WHEN state = 'paid' THEN 'paid' WHEN state = 'open' AND due_date < CURRENT_DATE THEN 'overdue' ELSE state END"},
				{Name: "payment_terms_days", Expr: "due_date - issue_date"},
				{Name: "outstanding_ratio", Expr: "CASE WHEN amount > 0 THEN round(due_amount / amount, 4) END"},
			},
		},
		{
			Name:    "users",
			Path:    "/users",
			RootKey: "users",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "first_name", Path: "first_name", Type: "text"},
				{Name: "last_name", Path: "last_name", Type: "text"},
				{Name: "email", Path: "email", Type: "text"},
				{Name: "is_active", Path: "is_active", Type: "boolean"},
				{Name: "weekly_capacity", Path: "weekly_capacity", Type: "bigint"},
				{Name: "default_hourly_rate", Path: "default_hourly_rate", Type: "numeric"},
				{Name: "cost_rate", Path: "cost_rate", Type: "numeric"},
				{Name: "created_at", Path: "created_at", Type: "timestamptz"},
				{Name: "updated_at", Path: "updated_at", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "full_name", Expr: "trim(first_name || ' ' || last_name)"},
				{Name: "weekly_capacity_hours", Expr: "round(weekly_capacity / 3600.0, 2)"},
			},
		},
		{
			Name:    "expenses",
			Path:    "/expenses",
			RootKey: "expenses",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "spent_date", Path: "spent_date", Type: "date"},
				{Name: "total_cost", Path: "total_cost", Type: "numeric"},
				{Name: "units", Path: "units", Type: "numeric"},
				{Name: "billable", Path: "billable", Type: "boolean"},
				{Name: "user_id", Path: "user.id", Type: "bigint"},
				{Name: "project_id", Path: "project.id", Type: "bigint"},
				{Name: "client_id", Path: "client.id", Type: "bigint"},
				{Name: "created_at", Path: "created_at", Type: "timestamptz"},
				{Name: "updated_at", Path: "updated_at", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "unit_cost", Expr: "CASE WHEN units > 0 THEN round(total_cost / units, 2) END"},
			},
		},
	},
}
