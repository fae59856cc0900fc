package http

import (
	"github.com/andresmedinaorbidi/clarity/internal/skills"
	"github.com/andresmedinaorbidi/clarity/internal/store"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// SessionListResponse is the response body for GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []store.Summary `json:"sessions"`
}

// SkillListResponse is the response body for GET /api/v1/skills.
type SkillListResponse struct {
	Skills []skills.Skill `json:"skills"`
}

// ChatRequest is the request body for POST /api/v1/sessions/:id/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// FieldsRequest is the request body for PATCH /api/v1/sessions/:id/fields.
// Keys may be canonical field names or aliases.
type FieldsRequest struct {
	Fields map[string]any `json:"fields"`
}
