// Package chat implements the conversational core: request normalization,
// the tool-calling agent loop, the persistence interceptor, and the turn
// orchestrator that composes them.
//
// The package defines the interfaces it consumes (ModelClient, Registry,
// HistoryStore, Retriever) rather than depending on their implementations,
// following the consumer-side interface convention (io.Reader,
// http.RoundTripper).
package chat

import (
	"context"
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested tool invocation. Arguments is the raw JSON
// string as produced by the model; it is parsed only at execution time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single conversational event. Content is a pointer because an
// assistant message that carries tool calls is created with no content; the
// final streamed text is backfilled onto it afterwards. Every other message
// carries non-nil content.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Text returns the message content, or "" when content is nil.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// NewMessage builds a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: &content}
}

// Thread is a durable conversation. UpdatedAt is bumped exactly once per
// completed turn, after final persistence.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is one element of the agent loop's output stream: either an
// incremental text delta (Content) or a structural message (Message).
// Exactly one of the two is set.
type Item struct {
	Content string
	Message *Message
}

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Tool executes a model-requested call. Implementations live in
// internal/tools.
type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry resolves tool names to executors.
type Registry interface {
	Lookup(name string) (Tool, bool)
	Definitions() []ToolDefinition
}

// FinishToolCalls is the finish reason signalling that the model requested
// tool execution.
const FinishToolCalls = "tool_calls"

// ToolCallFragment is one streamed piece of an in-flight tool call. The
// first fragment for an Index establishes ID and Name; later fragments for
// the same Index append to the arguments string.
type ToolCallFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is one increment of a model stream.
type Chunk struct {
	TextDelta    string
	ToolCalls    []ToolCallFragment
	FinishReason string
}

// ModelStream iterates a streaming model response. The shape mirrors the
// SDK stream it wraps: Next advances, Current returns the latest chunk,
// Err reports a terminal stream failure.
type ModelStream interface {
	Next() bool
	Current() Chunk
	Err() error
	Close() error
}

// ModelClient starts a streaming completion over the given messages with
// the given tools bound. Implementations live in internal/provider.
type ModelClient interface {
	Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (ModelStream, error)
}

// HistoryStore is the durable conversation store consumed by the
// orchestrator and the persistence interceptor.
type HistoryStore interface {
	CreateThread(ctx context.Context, title string) (Thread, error)
	FindThread(ctx context.Context, id string) (*Thread, error)
	TouchThread(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, threadID string, msg Message) (Message, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
}

// Fragment is a retrieved knowledge fragment used to ground a reply.
type Fragment struct {
	DocID      string
	Title      string
	ChunkIndex int
	Text       string
}

// Retriever supplies knowledge fragments for a query. Implementations must
// degrade silently: a blank query or an unavailable backing store yields an
// empty result, never an error that would fail the turn.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, docIDs []string) []Fragment
}
