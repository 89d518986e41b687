package chatwire

import "time"

// Session is one end-user conversation as the admin console sees it. Past
// sessions stay visible with IsActive false; nothing deletes them from the list.
type Session struct {
	SessionID   string    `json:"sessionId"`
	User        string    `json:"user"`
	IsActive    bool      `json:"isActive"`
	LastMessage string    `json:"lastMessage,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// InitSessionRequest is the init_session handshake payload. SessionID is empty
// for a creation handshake and carries the stored identifier for a resume.
type InitSessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// InitSessionAck is the handshake reply carrying the server's canonical
// identifier, which may differ from the one the client proposed.
type InitSessionAck struct {
	SessionID string `json:"sessionId"`
}

// RoomRequest scopes admin-join-session, admin-leave-session and get-messages.
type RoomRequest struct {
	SessionID string `json:"sessionId"`
}

// AIModeChange is both the toggle-ai-mode intent and the authoritative
// ai-mode-changed broadcast.
type AIModeChange struct {
	SessionID string `json:"sessionId"`
	Enabled   bool   `json:"enabled"`
}
