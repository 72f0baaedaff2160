// Package jsonapi provides lightweight JSON:API 1.1 envelope types and
// rendering helpers. No external library is used — only encoding/json.
package jsonapi

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/vnd.api+json"

// Document is a JSON:API single-resource document.
type Document struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta,omitempty"`
}

// ListDocument is a JSON:API collection document.
type ListDocument struct {
	Data []any `json:"data"`
	Meta Meta  `json:"meta,omitempty"`
}

// ResourceObject is the canonical JSON:API resource object.
type ResourceObject struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes,omitempty"`
	Meta       Meta   `json:"meta,omitempty"`
}

// Meta is a free-form map of non-standard meta-information.
type Meta map[string]any

// ErrorDocument is a JSON:API error response document.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// ErrorObject represents a single JSON:API error.
type ErrorObject struct {
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Render writes a JSON:API document to w with the given HTTP status code.
func Render(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// RenderOne writes a single-resource document.
func RenderOne(w http.ResponseWriter, status int, data any) {
	Render(w, status, Document{Data: data})
}

// RenderList writes a collection document with a total count in meta.
func RenderList(w http.ResponseWriter, status int, data []any) {
	if data == nil {
		data = []any{}
	}
	Render(w, status, ListDocument{Data: data, Meta: Meta{"total": len(data)}})
}

// RenderError writes a single JSON:API error.
func RenderError(w http.ResponseWriter, status int, code, title, detail string) {
	Render(w, status, ErrorDocument{Errors: []ErrorObject{
		{
			Status: http.StatusText(status),
			Code:   code,
			Title:  title,
			Detail: detail,
		},
	}})
}
