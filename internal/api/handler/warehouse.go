package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/saulto/saulto/internal/api/jsonapi"
	"gorm.io/gorm"
)

// WarehouseHandler exposes the tenant's analytics-schema catalog.
type WarehouseHandler struct {
	db *gorm.DB
	wh WarehouseReader
}

// NewWarehouseHandler creates a WarehouseHandler. wh is nil when no
// warehouse Postgres is attached (sqlite driver); the routes then report
// the warehouse as unavailable.
func NewWarehouseHandler(db *gorm.DB, wh WarehouseReader) *WarehouseHandler {
	return &WarehouseHandler{db: db, wh: wh}
}

func (h *WarehouseHandler) unavailable(w http.ResponseWriter) bool {
	if h.wh != nil {
		return false
	}
	jsonapi.RenderError(w, http.StatusServiceUnavailable, "warehouse_unavailable",
		"Service Unavailable", "analytics warehouse requires the postgres driver")
	return true
}

// ListTables handles GET /api/v1/warehouse/tables.
func (h *WarehouseHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}

	tables, err := h.wh.ListTables(r.Context(), company.SchemaKey)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "warehouse_error",
			"Internal Server Error", "failed to list warehouse tables")
		return
	}

	data := make([]any, 0, len(tables))
	for _, t := range tables {
		data = append(data, jsonapi.ResourceObject{
			Type:       "warehouse_tables",
			ID:         t.Name,
			Attributes: t,
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

// ListColumns handles GET /api/v1/warehouse/tables/{table}/columns.
func (h *WarehouseHandler) ListColumns(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}

	table := chi.URLParam(r, "table")
	cols, err := h.wh.ListColumns(r.Context(), company.SchemaKey, table)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "warehouse_error",
			"Internal Server Error", "failed to list table columns")
		return
	}
	if len(cols) == 0 {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found",
			"table does not exist in your analytics schema")
		return
	}

	data := make([]any, 0, len(cols))
	for _, c := range cols {
		data = append(data, jsonapi.ResourceObject{
			Type:       "warehouse_columns",
			ID:         table + "." + c.Name,
			Attributes: c,
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}
