package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/saulto/saulto/internal/api/jsonapi"
	"github.com/saulto/saulto/internal/model"
	"gorm.io/gorm"
)

// ConnectionHandler handles /api/v1/connections routes.
type ConnectionHandler struct {
	db    *gorm.DB
	queue SyncQueue
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(db *gorm.DB, queue SyncQueue) *ConnectionHandler {
	return &ConnectionHandler{db: db, queue: queue}
}

// connectionAttrs is the public view of a connection. Tokens never leave
// the server.
type connectionAttrs struct {
	Source       string     `json:"source"`
	AccountID    string     `json:"account_id"`
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func connectionResource(c model.Connection) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "connections",
		ID:   c.ID,
		Attributes: connectionAttrs{
			Source:       c.Source,
			AccountID:    c.AccountID,
			Status:       c.Status,
			LastSyncedAt: c.LastSyncedAt,
			LastError:    c.LastError,
			CreatedAt:    c.CreatedAt,
		},
	}
}

// List handles GET /api/v1/connections.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}

	var conns []model.Connection
	if err := h.db.WithContext(r.Context()).
		Where("company_id = ?", company.ID).
		Order("source").Find(&conns).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to list connections")
		return
	}

	data := make([]any, 0, len(conns))
	for _, c := range conns {
		data = append(data, connectionResource(c))
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

// load fetches one connection scoped to the caller's company.
func (h *ConnectionHandler) load(w http.ResponseWriter, r *http.Request) (*model.Connection, bool) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return nil, false
	}
	var conn model.Connection
	if err := h.db.WithContext(r.Context()).
		Where("id = ? AND company_id = ?", chi.URLParam(r, "id"), company.ID).
		First(&conn).Error; err != nil {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "connection does not exist")
		return nil, false
	}
	return &conn, true
}

// Get handles GET /api/v1/connections/{id}.
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, connectionResource(*conn))
}

// Delete handles DELETE /api/v1/connections/{id}. Raw and derived tables
// are left in the warehouse; only the credential record is removed.
func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.db.WithContext(r.Context()).Delete(conn).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to delete connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerSync handles POST /api/v1/connections/{id}/sync.
func (h *ConnectionHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.queue.EnqueueSync(r.Context(), conn.ID); err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "queue_error", "Internal Server Error", "failed to queue sync")
		return
	}
	jsonapi.RenderOne(w, http.StatusAccepted, jsonapi.ResourceObject{
		Type: "sync_requests",
		ID:   conn.ID,
		Attributes: map[string]string{
			"source": conn.Source,
			"status": "queued",
		},
	})
}

// runAttrs is the public view of one sync run.
type runAttrs struct {
	Source        string    `json:"source"`
	Success       bool      `json:"success"`
	RecordsSynced int       `json:"records_synced"`
	TablesCreated []string  `json:"tables_created"`
	TransformErr  string    `json:"transform_error,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ListRuns handles GET /api/v1/connections/{id}/runs.
func (h *ConnectionHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.load(w, r)
	if !ok {
		return
	}

	var runs []model.SyncRun
	if err := h.db.WithContext(r.Context()).
		Where("connection_id = ?", conn.ID).
		Order("started_at DESC").Limit(50).Find(&runs).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to list sync runs")
		return
	}

	data := make([]any, 0, len(runs))
	for _, run := range runs {
		data = append(data, jsonapi.ResourceObject{
			Type: "sync_runs",
			ID:   run.ID,
			Attributes: runAttrs{
				Source:        run.Source,
				Success:       run.Success,
				RecordsSynced: run.RecordsSynced,
				TablesCreated: run.TablesCreated,
				TransformErr:  run.TransformErr,
				Error:         run.Error,
				StartedAt:     run.StartedAt,
				FinishedAt:    run.FinishedAt,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}
