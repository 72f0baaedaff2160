package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/saulto/saulto/internal/api/jsonapi"
	"github.com/saulto/saulto/internal/model"
	"gorm.io/gorm"
)

// SQLModelHandler handles the user-managed SQL model registry.
type SQLModelHandler struct {
	db       *gorm.DB
	deployer ModelDeployer
}

// NewSQLModelHandler creates a SQLModelHandler. deployer is nil when no
// warehouse Postgres is attached; models can then be drafted but not
// deployed.
func NewSQLModelHandler(db *gorm.DB, deployer ModelDeployer) *SQLModelHandler {
	return &SQLModelHandler{db: db, deployer: deployer}
}

type sqlModelAttrs struct {
	Name       string     `json:"name"`
	Layer      string     `json:"layer"`
	SQL        string     `json:"sql"`
	Status     string     `json:"status"`
	DeployedAt *time.Time `json:"deployed_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func sqlModelResource(m model.SQLModel) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "sql_models",
		ID:   m.ID,
		Attributes: sqlModelAttrs{
			Name:       m.Name,
			Layer:      m.Layer,
			SQL:        m.SQL,
			Status:     m.Status,
			DeployedAt: m.DeployedAt,
			CreatedAt:  m.CreatedAt,
		},
	}
}

// List handles GET /api/v1/models.
func (h *SQLModelHandler) List(w http.ResponseWriter, r *http.Request) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}

	var models []model.SQLModel
	if err := h.db.WithContext(r.Context()).
		Where("company_id = ?", company.ID).
		Order("name").Find(&models).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to list models")
		return
	}

	data := make([]any, 0, len(models))
	for _, m := range models {
		data = append(data, sqlModelResource(m))
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

type createModelRequest struct {
	Name  string `json:"name"`
	Layer string `json:"layer"`
	SQL   string `json:"sql"`
}

func validLayer(layer string) bool {
	return layer == model.LayerStaging || layer == model.LayerIntermediate || layer == model.LayerCore
}

// Create handles POST /api/v1/models. Models start as drafts.
func (h *SQLModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}

	var req createModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	if req.Name == "" || req.SQL == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "name and sql are required")
		return
	}
	if !validLayer(req.Layer) {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "invalid_layer", "Unprocessable Entity", "layer must be stg, int, or core")
		return
	}

	m := model.SQLModel{
		CompanyID: company.ID,
		Name:      req.Name,
		Layer:     req.Layer,
		SQL:       req.SQL,
		Status:    model.SQLModelStatusDraft,
	}
	if err := h.db.WithContext(r.Context()).Create(&m).Error; err != nil {
		jsonapi.RenderError(w, http.StatusConflict, "duplicate_name", "Conflict", "a model with that name already exists")
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, sqlModelResource(m))
}

// Deploy handles POST /api/v1/models/{id}/deploy. The model's SQL is
// materialised into the tenant's analytics schema.
func (h *SQLModelHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}
	if h.deployer == nil {
		jsonapi.RenderError(w, http.StatusServiceUnavailable, "warehouse_unavailable",
			"Service Unavailable", "deploying models requires the postgres driver")
		return
	}

	var m model.SQLModel
	if err := h.db.WithContext(r.Context()).
		Where("id = ? AND company_id = ?", chi.URLParam(r, "id"), company.ID).
		First(&m).Error; err != nil {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "model does not exist")
		return
	}

	if err := h.deployer.DeployModel(r.Context(), company.SchemaKey, m.Name, m.Layer, m.SQL); err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "deploy_failed", "Unprocessable Entity",
			"model SQL failed to execute: "+err.Error())
		return
	}

	now := time.Now().UTC()
	if err := h.db.WithContext(r.Context()).Model(&m).Updates(map[string]any{
		"status":      model.SQLModelStatusDeployed,
		"deployed_at": now,
	}).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to update model status")
		return
	}
	m.Status = model.SQLModelStatusDeployed
	m.DeployedAt = &now
	jsonapi.RenderOne(w, http.StatusOK, sqlModelResource(m))
}
