package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/saulto/saulto/internal/api/jsonapi"
	"github.com/saulto/saulto/internal/api/middleware"
	"github.com/saulto/saulto/internal/assistant"
	"github.com/saulto/saulto/internal/model"
	"gorm.io/gorm"
)

// ChatHandler handles the dashboard assistant conversation.
type ChatHandler struct {
	db    *gorm.DB
	agent assistant.Agent
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(db *gorm.DB, agent assistant.Agent) *ChatHandler {
	return &ChatHandler{db: db, agent: agent}
}

type messageAttrs struct {
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func messageResource(m model.ChatMessage) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "chat_messages",
		ID:   m.ID,
		Attributes: messageAttrs{
			SessionID: m.SessionID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		},
	}
}

// List handles GET /api/v1/chat/messages. An optional session query param
// narrows the history to one conversation.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}

	q := h.db.WithContext(r.Context()).Where("company_id = ?", company.ID)
	if session := r.URL.Query().Get("session"); session != "" {
		q = q.Where("session_id = ?", session)
	}

	var msgs []model.ChatMessage
	if err := q.Order("created_at").Limit(200).Find(&msgs).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to list messages")
		return
	}

	data := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data = append(data, messageResource(m))
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

type postMessageRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

// Post handles POST /api/v1/chat/messages. The user message and the
// assistant's reply are both persisted; the reply is returned.
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "content is required")
		return
	}

	ctx := r.Context()
	userMsg := model.ChatMessage{
		CompanyID: company.ID,
		UserID:    claims.UserID,
		SessionID: req.SessionID,
		Role:      "user",
		Content:   req.Content,
	}
	if err := h.db.WithContext(ctx).Create(&userMsg).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to store message")
		return
	}

	replyText, err := h.agent.Reply(ctx, company.SchemaKey, req.Content)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "assistant_error", "Internal Server Error", "assistant failed to answer")
		return
	}

	reply := model.ChatMessage{
		CompanyID: company.ID,
		SessionID: req.SessionID,
		Role:      "assistant",
		Content:   replyText,
	}
	if err := h.db.WithContext(ctx).Create(&reply).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "db_error", "Internal Server Error", "failed to store reply")
		return
	}

	jsonapi.RenderOne(w, http.StatusCreated, messageResource(reply))
}
