// Package model provides domain types shared across packages.
package model

import (
	"maps"
	"time"
)

// Role is the position an agent occupies in the tree.
type Role string

const (
	RoleMain       Role = "main"
	RolePermanent  Role = "permanent"
	RoleWorker     Role = "worker"
	RoleReflection Role = "reflection"
	// RoleUser marks messages that came from outside the tree.
	RoleUser Role = "user"
)

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusIdle           Status = "IDLE"
	StatusWorking        Status = "WORKING"
	StatusWaiting        Status = "WAITING"
	StatusWaitingOnChild Status = "WAITING_ON_CHILD"
	StatusError          Status = "ERROR"
	StatusTimeout        Status = "TIMEOUT"
)

// ResponseType tags what produced a message or work item.
type ResponseType string

const (
	ResponseText              ResponseType = "text"
	ResponseFunction          ResponseType = "function"
	ResponseMultipleFunctions ResponseType = "multiple_functions"
	ResponseAgent             ResponseType = "agent"
	ResponseCommand           ResponseType = "command"
)

// Command is an opaque instruction a function hands back to the host
// application alongside its text result.
type Command struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Usage carries token accounting for a single backend call.
type Usage struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	CachedTokens int    `json:"cached_tokens,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

// ReplyKey identifies a child reply for deduplication. Two deliveries of the
// same reply (direct event and pong) share the same key.
type ReplyKey struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether k identifies the same reply as other.
func (k ReplyKey) Matches(other ReplyKey) bool {
	return k.Text == other.Text && k.Sender == other.Sender && k.CreatedAt.Equal(other.CreatedAt)
}

// WorkItem is one unit of input for an agent.
type WorkItem struct {
	Text         string
	Sender       string
	SenderRole   Role
	CreatedAt    time.Time
	Type         ResponseType
	FunctionName string
	// Origin is set when the item was produced from a child's reply.
	Origin *ReplyKey
}

// Message is one entry in a (parent, child) history.
type Message struct {
	ID                  string       `json:"id"`
	Text                string       `json:"text"`
	Sender              string       `json:"sender"`
	SenderRole          Role         `json:"sender_role"`
	CreatedAt           time.Time    `json:"created_at"`
	Type                ResponseType `json:"type,omitempty"`
	FunctionName        string       `json:"function_name,omitempty"`
	Name                string       `json:"name,omitempty"`
	Explanation         string       `json:"explanation,omitempty"`
	SpecialInstructions string       `json:"special_instructions,omitempty"`
	Commands            []Command    `json:"commands,omitempty"`
	Contexted           bool         `json:"contexted,omitempty"`
	Usage               *Usage       `json:"usage,omitempty"`
	Origin              *ReplyKey    `json:"origin,omitempty"`
}

// Key returns the deduplication key of the message.
func (m Message) Key() ReplyKey {
	return ReplyKey{Text: m.Text, Sender: m.Sender, CreatedAt: m.CreatedAt}
}

// FromWorkItem builds the history message recorded when an item is taken.
func FromWorkItem(item WorkItem) Message {
	return Message{
		Text:         item.Text,
		Sender:       item.Sender,
		SenderRole:   item.SenderRole,
		CreatedAt:    item.CreatedAt,
		Type:         item.Type,
		FunctionName: item.FunctionName,
		Origin:       item.Origin,
	}
}

// Context is the free-form record passed to functions and mixins.
type Context map[string]any

// Well-known context keys maintained by the agent.
const (
	CtxInputText = "inputText"
	CtxSender    = "sender"
	CtxAgentName = "agentName"
	CtxMessages  = "messages"
)

// Clone returns a shallow copy of c. A nil receiver yields an empty map.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	maps.Copy(out, c)
	return out
}

// Merge returns a copy of c with updates applied on top.
func (c Context) Merge(updates map[string]any) Context {
	out := c.Clone()
	maps.Copy(out, updates)
	return out
}

// String returns the value at key when it is a string.
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}
