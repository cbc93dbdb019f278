package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultTopK is the number of knowledge fragments injected per turn.
	DefaultTopK = 4

	// threadTitleLimit caps the derived thread title, in runes.
	threadTitleLimit = 50

	// placeholderTitle is used when no user message is available to derive
	// a title from.
	placeholderTitle = "New conversation"

	// knowledgePreamble opens the synthetic system message built from
	// retrieved fragments.
	knowledgePreamble = "Answer the user's question based on the following document fragments. Quote the material where it helps."
)

// ServiceConfig carries the orchestrator's dependencies.
type ServiceConfig struct {
	Model        ModelClient
	Registry     Registry
	History      HistoryStore
	Retriever    Retriever // nil disables knowledge augmentation entirely
	SystemPrompt string    // "" uses DefaultSystemPrompt
	TopK         int       // <= 0 uses DefaultTopK
	MaxTurns     int       // <= 0 uses DefaultMaxTurns
	Limiter      *rate.Limiter
	Logger       *slog.Logger
}

// Service is the top-level conversation orchestrator: it composes the
// normalizer, the retriever, the agent loop and the persistence
// interceptor, returning a live stream plus the resolved thread id.
type Service struct {
	agent        *Agent
	history      HistoryStore
	retriever    Retriever
	systemPrompt string
	topK         int
	logger       *slog.Logger
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.History == nil {
		return nil, errors.New("history store is required")
	}
	agent, err := NewAgent(AgentConfig{
		Model:    cfg.Model,
		Registry: cfg.Registry,
		MaxTurns: cfg.MaxTurns,
		Limiter:  cfg.Limiter,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		agent:        agent,
		history:      cfg.History,
		retriever:    cfg.Retriever,
		systemPrompt: prompt,
		topK:         topK,
		logger:       logger,
	}, nil
}

// Turn is a started conversation turn: the resolved thread id plus a
// consumable content stream. Stream may be consumed at most once.
type Turn struct {
	ThreadID string
	run      func(ctx context.Context, emit func(delta string) error) error
}

// Stream drives the turn, invoking emit for each content delta in order.
// Structural messages are persisted internally and never surface through
// emit. If emit returns an error the turn stops early, but the
// accumulated assistant text is still flushed to the store.
func (t *Turn) Stream(ctx context.Context, emit func(delta string) error) error {
	return t.run(ctx, emit)
}

// HandleTurn normalizes the request, resolves the thread, persists the
// user message, optionally injects retrieved knowledge, and returns the
// live turn. Normalization failures surface as ErrClientInput before any
// store write.
func (s *Service) HandleTurn(ctx context.Context, req Request) (*Turn, error) {
	norm, err := Normalize(req, s.systemPrompt)
	if err != nil {
		return nil, err
	}

	systemMessage := norm.Messages[0]
	history := norm.Messages[1:]
	lastUser := lastUserMessage(history)

	threadID, err := s.resolveThread(ctx, norm.ThreadID, lastUser)
	if err != nil {
		return nil, err
	}

	if lastUser != nil {
		if _, err := s.history.CreateMessage(ctx, threadID, *lastUser); err != nil {
			// Best-effort, same policy as the interceptor's writes.
			s.logger.Error("persisting user message", "thread_id", threadID, "error", err)
		}
	}

	final := make([]Message, 0, len(norm.Messages)+1)
	final = append(final, systemMessage)
	if knowledge := s.knowledgeMessage(ctx, norm, lastUser); knowledge != nil {
		final = append(final, *knowledge)
	}
	final = append(final, history...)

	run := func(ctx context.Context, emit func(delta string) error) error {
		p := newInterceptor(s.history, threadID, s.logger)
		defer p.finalize(ctx)
		return s.agent.Run(ctx, final, p.intercept(ctx, emit))
	}

	return &Turn{ThreadID: threadID, run: run}, nil
}

// resolveThread reuses the requested thread when it exists, otherwise
// creates one lazily with a title derived from the user message.
func (s *Service) resolveThread(ctx context.Context, requested string, lastUser *Message) (string, error) {
	if requested != "" {
		thread, err := s.history.FindThread(ctx, requested)
		if err != nil {
			return "", fmt.Errorf("finding thread %s: %w", requested, err)
		}
		if thread != nil {
			return thread.ID, nil
		}
	}

	title := placeholderTitle
	if lastUser != nil {
		title = deriveTitle(lastUser.Text())
	}
	thread, err := s.history.CreateThread(ctx, title)
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	return thread.ID, nil
}

// knowledgeMessage retrieves fragments for the user's query and folds them
// into one synthetic system message. Retrieval degrades silently: no
// retriever, no query, or no hits all yield nil.
func (s *Service) knowledgeMessage(ctx context.Context, norm Normalized, lastUser *Message) *Message {
	if !norm.UseKnowledge || s.retriever == nil || lastUser == nil {
		return nil
	}

	fragments := s.retriever.Search(ctx, lastUser.Text(), s.topK, norm.DocIDs)
	if len(fragments) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(knowledgePreamble)
	for i, frag := range fragments {
		label := frag.Title
		if label == "" {
			label = frag.DocID
		}
		b.WriteString(fmt.Sprintf("\n\n[#%d %s #%d] %s", i+1, label, frag.ChunkIndex, frag.Text))
	}
	msg := NewMessage(RoleSystem, b.String())
	return &msg
}

// lastUserMessage returns the most recent user-role message, or nil.
func lastUserMessage(messages []Message) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			msg := messages[i]
			return &msg
		}
	}
	return nil
}

// deriveTitle takes the first runes of the user message as the thread
// title.
func deriveTitle(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) == 0 {
		return placeholderTitle
	}
	if len(runes) > threadTitleLimit {
		runes = runes[:threadTitleLimit]
	}
	return string(runes)
}
