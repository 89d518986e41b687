package chatwire

// Event names are the wire contract shared by clients and server. The strings are
// significant; renaming one breaks interop with deployed peers.
const (
	// Client -> server.
	EventInitSession       = "init_session"
	EventUserMessage       = "user_message"
	EventAdminMessage      = "admin_message"
	EventAdminConnect      = "admin-connect"
	EventGetAllSessions    = "get-all-sessions"
	EventAdminJoinSession  = "admin-join-session"
	EventAdminLeaveSession = "admin-leave-session"
	EventGetMessages       = "get-messages"
	EventToggleAIMode      = "toggle-ai-mode"

	// Server -> client.
	EventMessage         = "message"
	EventMessagesHistory = "messages-history"
	EventAllSessionsList = "all-sessions-list"
	EventSessionsList    = "sessions-list"
	EventAIModeChanged   = "ai-mode-changed"

	// Local channel lifecycle notifications, never sent over the wire.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"

	// Ack replies correlate through Envelope.AckID rather than a named event.
	EventAck = "ack"
)
