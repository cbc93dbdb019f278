package chat

import "strings"

// DefaultSystemPrompt is used when the request carries no custom prompt.
const DefaultSystemPrompt = "You are a helpful assistant. Answer concisely and accurately, and use the provided tools when they help."

// Request is the inbound conversation payload as decoded from the client.
type Request struct {
	Messages     []Message `json:"messages"`
	SystemPrompt string    `json:"systemPrompt"`
	UseKnowledge bool      `json:"useKnowledge"`
	DocIDs       []string  `json:"docIds"`
	ThreadID     string    `json:"threadId"`
}

// Normalized is the canonical form of a Request: an ordered message list
// with the system message first, plus augmentation flags.
type Normalized struct {
	Messages     []Message
	UseKnowledge bool
	DocIDs       []string
	ThreadID     string
}

// Normalize validates and canonicalizes a request. It keeps only user and
// assistant messages whose content is non-empty after trimming, prepends
// the system message, and cleans up the docID allow-list. It fails with
// ErrClientInput when the message list is missing, empty, or left empty by
// filtering.
func Normalize(req Request, defaultPrompt string) (Normalized, error) {
	if len(req.Messages) == 0 {
		return Normalized{}, clientInputError("messages array is required")
	}

	sanitized := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			continue
		}
		content := strings.TrimSpace(msg.Text())
		if content == "" {
			continue
		}
		sanitized = append(sanitized, NewMessage(msg.Role, content))
	}
	if len(sanitized) == 0 {
		return Normalized{}, clientInputError("no valid messages in array")
	}

	prompt := strings.TrimSpace(req.SystemPrompt)
	if prompt == "" {
		prompt = defaultPrompt
	}

	messages := make([]Message, 0, len(sanitized)+1)
	messages = append(messages, NewMessage(RoleSystem, prompt))
	messages = append(messages, sanitized...)

	return Normalized{
		Messages:     messages,
		UseKnowledge: req.UseKnowledge,
		DocIDs:       normalizeDocIDs(req.DocIDs),
		ThreadID:     strings.TrimSpace(req.ThreadID),
	}, nil
}

// normalizeDocIDs trims, drops empties, and de-duplicates. Order is not
// significant downstream.
func normalizeDocIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
