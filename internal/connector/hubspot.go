package connector

// hubspotDefinition describes the HubSpot CRM API (v3 objects). HubSpot
// pages with an opaque `after` cursor and nests record fields under a
// `properties` object, which the staging projections unnest.
var hubspotDefinition = Definition{
	Name:        "hubspot",
	BaseURL:     "https://api.hubapi.com",
	AuthURL:     "https://app.hubspot.com/oauth/authorize",
	TokenURL:    "https://api.hubapi.com/oauth/v1/token",
	IdentityURL: "https://api.hubapi.com/account-info/v3/details",
	Scopes:      []string{"crm.objects.companies.read", "crm.objects.contacts.read", "crm.objects.deals.read"},
	PageStyle:   PageStyleCursor,
	PerPage:     100,
	Entities: []Entity{
		{
			Name:    "companies",
			Path:    "/crm/v3/objects/companies",
			RootKey: "results",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "name", Path: "properties.name", Type: "text"},
				{Name: "domain", Path: "properties.domain", Type: "text"},
				{Name: "industry", Path: "properties.industry", Type: "text"},
				{Name: "city", Path: "properties.city", Type: "text"},
				{Name: "created_at", Path: "createdAt", Type: "timestamptz"},
				{Name: "updated_at", Path: "updatedAt", Type: "timestamptz"},
			},
		},
		{
			Name:    "contacts",
			Path:    "/crm/v3/objects/contacts",
			RootKey: "results",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "email", Path: "properties.email", Type: "text"},
				{Name: "first_name", Path: "properties.firstname", Type: "text"},
				{Name: "last_name", Path: "properties.lastname", Type: "text"},
				{Name: "lifecycle_stage", Path: "properties.lifecyclestage", Type: "text"},
				{Name: "created_at", Path: "createdAt", Type: "timestamptz"},
				{Name: "updated_at", Path: "updatedAt", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "full_name", Expr: "trim(coalesce(first_name, '') || ' ' || coalesce(last_name, ''))"},
			},
		},
		{
			Name:    "deals",
			Path:    "/crm/v3/objects/deals",
			RootKey: "results",
			Columns: []Column{
				{Name: "id", Path: "id", Type: "bigint"},
				{Name: "name", Path: "properties.dealname", Type: "text"},
				{Name: "stage", Path: "properties.dealstage", Type: "text"},
				{Name: "pipeline", Path: "properties.pipeline", Type: "text"},
				{Name: "amount", Path: "properties.amount", Type: "numeric"},
				{Name: "close_date", Path: "properties.closedate", Type: "timestamptz"},
				{Name: "created_at", Path: "createdAt", Type: "timestamptz"},
				{Name: "updated_at", Path: "updatedAt", Type: "timestamptz"},
			},
			Derived: []Derived{
				{Name: "is_won", Expr: "stage = 'closedwon'"},
				{Name: "is_closed", Expr: "stage IN ('closedwon', 'closedlost')"},
				{Name: "age_days", Expr: "CASE WHEN close_date IS NOT NULL THEN extract(day FROM close_date - created_at)::int END"},
			},
		},
	},
}
