package session

import "time"

// CreateRequest defines payload for creating a new chat session.
type CreateRequest struct {
	UserID string `json:"user_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

// TranscriptResponse is the read-only view of a session's turns.
type TranscriptResponse struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Turns     []Turn `json:"turns"`
}
