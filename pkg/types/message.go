package types

import "encoding/json"

// Message represents either a User or Assistant message in a conversation.
type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionID"`
	Role      string       `json:"role"` // "user" | "assistant"
	Time      MessageTime  `json:"time"`

	// User-specific fields
	Agent  string          `json:"agent,omitempty"`
	Model  *ModelRef       `json:"model,omitempty"`
	System *string         `json:"system,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`

	// Assistant-specific fields
	ParentID   string        `json:"parentID,omitempty"`
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// IsSummary marks an assistant message produced by compaction rather
	// than the model responding to the prior turn.
	IsSummary bool `json:"-"`

	// Path records the working/root directory the message was generated in.
	Path *MessagePath `json:"path,omitempty"`

	// Summary carries the user-facing session summary attached to a user
	// message (title/body/diffs), when one was computed for it.
	Summary *UserMessageSummary `json:"-"`
}

// MarshalJSON renders Summary/IsSummary the way the SDK expects: an object
// for a user message's summary, a bare boolean for an assistant compaction
// marker, and omitted entirely otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	aux := struct {
		alias
		Summary any `json:"summary,omitempty"`
	}{alias: alias(m)}

	switch {
	case m.Summary != nil:
		aux.Summary = m.Summary
	case m.IsSummary:
		aux.Summary = true
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts either shape back: an object decodes into Summary,
// a boolean decodes into IsSummary.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		alias
		Summary json.RawMessage `json:"summary,omitempty"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.alias)
	if len(aux.Summary) == 0 {
		return nil
	}
	var asBool bool
	if err := json.Unmarshal(aux.Summary, &asBool); err == nil {
		m.IsSummary = asBool
		return nil
	}
	var asSummary UserMessageSummary
	if err := json.Unmarshal(aux.Summary, &asSummary); err != nil {
		return err
	}
	m.Summary = &asSummary
	return nil
}

// MessagePath records the directories a message was generated against.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// UserMessageSummary is the title/body/diffs summary attached to a user
// message once the turn it started has completed.
type UserMessageSummary struct {
	Title string     `json:"title"`
	Body  string     `json:"body"`
	Diffs []FileDiff `json:"diffs,omitempty"`
}

// TodoInfo is a single structured task tracked via the todo tools.
type TodoInfo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`   // "pending" | "in_progress" | "completed"
	Priority string `json:"priority"` // "high" | "medium" | "low"
}

// NewUnknownError builds a MessageError for a failure that wasn't
// classified to a more specific type before reaching the wire boundary.
func NewUnknownError(message string) *MessageError {
	return &MessageError{Type: "unknown", Message: message}
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
type MessageError struct {
	Type    string `json:"type"` // "api" | "auth" | "output_length"
	Message string `json:"message"`
}
