package dto

// AskRequest runs one conversational turn. SessionID is optional; a
// new session is created when it is absent.
type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type AskResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	State     string `json:"state"`
	ToolCalls int    `json:"tool_calls"`
}

type MessageResponse struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	MessageOrder int    `json:"message_order"`
	CreatedAt    string `json:"created_at"`
}

// ClearRequest guards the destructive wipe behind an explicit flag.
type ClearRequest struct {
	Confirm bool `json:"confirm"`
}
