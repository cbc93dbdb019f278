package chat

import (
	"context"
	"log/slog"
	"strings"
)

// interceptor wraps the agent loop's output stream. Structural messages
// are written to the history store immediately, in arrival order; content
// deltas are buffered and passed through to the consumer unchanged.
//
// Store failures during interception are logged and skipped: durability is
// best-effort relative to live delivery, so a failed write never drops
// already-computed content on the caller.
type interceptor struct {
	store    HistoryStore
	threadID string
	logger   *slog.Logger

	buf           strings.Builder
	toolCallMsgID string
	finalized     bool
}

func newInterceptor(store HistoryStore, threadID string, logger *slog.Logger) *interceptor {
	return &interceptor{store: store, threadID: threadID, logger: logger}
}

// intercept adapts a consumer delta callback into the YieldFunc consumed
// by the agent loop.
func (p *interceptor) intercept(ctx context.Context, emit func(delta string) error) YieldFunc {
	return func(item Item) error {
		if item.Message != nil {
			p.persist(ctx, *item.Message)
			return nil
		}
		p.buf.WriteString(item.Content)
		return emit(item.Content)
	}
}

// persist writes one structural message, remembering the store id of an
// assistant tool-call message so finalize can backfill its content.
func (p *interceptor) persist(ctx context.Context, msg Message) {
	created, err := p.store.CreateMessage(ctx, p.threadID, msg)
	if err != nil {
		p.logger.Error("persisting structural message", "thread_id", p.threadID, "role", msg.Role, "error", err)
		return
	}
	if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 && msg.Content == nil {
		p.toolCallMsgID = created.ID
	}
}

// finalize flushes the accumulated assistant text exactly once: onto the
// remembered tool-call message when one exists, otherwise as a new
// assistant message. It then bumps the thread's updatedAt. An empty buffer
// writes nothing.
//
// finalize runs on every exit path, including early consumer disconnect,
// so it detaches from request cancellation for its own writes.
func (p *interceptor) finalize(ctx context.Context) {
	if p.finalized {
		return
	}
	p.finalized = true

	if p.buf.Len() == 0 {
		return
	}
	text := p.buf.String()

	// The request context may already be canceled when the consumer went
	// away mid-stream; the flush must still land.
	ctx = context.WithoutCancel(ctx)

	if p.toolCallMsgID != "" {
		if err := p.store.UpdateMessageContent(ctx, p.toolCallMsgID, text); err != nil {
			p.logger.Error("backfilling assistant content", "message_id", p.toolCallMsgID, "error", err)
		}
	} else {
		if _, err := p.store.CreateMessage(ctx, p.threadID, NewMessage(RoleAssistant, text)); err != nil {
			p.logger.Error("persisting final assistant message", "thread_id", p.threadID, "error", err)
		}
	}

	if err := p.store.TouchThread(ctx, p.threadID); err != nil {
		p.logger.Error("bumping thread updatedAt", "thread_id", p.threadID, "error", err)
	}
}
