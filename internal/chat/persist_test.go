package chat

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kaiwa-go/kaiwa/internal/log"
)

func TestInterceptorPlainReply(t *testing.T) {
	store := newMemStore()
	p := newInterceptor(store, "t-1", log.NewNop())

	var emitted []string
	yield := p.intercept(context.Background(), func(delta string) error {
		emitted = append(emitted, delta)
		return nil
	})

	for _, delta := range []string{"hel", "lo"} {
		if err := yield(Item{Content: delta}); err != nil {
			t.Fatalf("yield: %v", err)
		}
	}
	p.finalize(context.Background())

	if !reflect.DeepEqual(emitted, []string{"hel", "lo"}) {
		t.Errorf("emitted = %v", emitted)
	}
	want := []string{"createMessage:assistant", "touchThread"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	final := store.ops[0].msg
	if final.Text() != "hello" {
		t.Errorf("final content = %q, want hello", final.Text())
	}
}

func TestInterceptorBackfillsToolCallMessage(t *testing.T) {
	store := newMemStore()
	p := newInterceptor(store, "t-1", log.NewNop())
	yield := p.intercept(context.Background(), func(string) error { return nil })

	toolCall := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "x", Arguments: "{}"}}}
	toolResult := NewMessage(RoleTool, "result")
	toolResult.ToolCallID = "c1"

	if err := yield(Item{Message: &toolCall}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	if err := yield(Item{Message: &toolResult}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	if err := yield(Item{Content: "final text"}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	p.finalize(context.Background())

	want := []string{"createMessage:assistant", "createMessage:tool", "updateMessage", "touchThread"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	// The backfill targets the remembered tool-call message id.
	if store.ops[2].id != store.ops[0].id {
		t.Errorf("backfilled id %s, want %s", store.ops[2].id, store.ops[0].id)
	}
	if store.ops[2].msg.Text() != "final text" {
		t.Errorf("backfilled content = %q", store.ops[2].msg.Text())
	}
}

func TestInterceptorAssistantWithContentNotRemembered(t *testing.T) {
	// An assistant message that already carries content is not a backfill
	// target even when tool calls are present.
	store := newMemStore()
	p := newInterceptor(store, "t-1", log.NewNop())
	yield := p.intercept(context.Background(), func(string) error { return nil })

	content := "already written"
	withContent := Message{Role: RoleAssistant, Content: &content, ToolCalls: []ToolCall{{ID: "c1"}}}
	if err := yield(Item{Message: &withContent}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	if err := yield(Item{Content: "tail"}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	p.finalize(context.Background())

	want := []string{"createMessage:assistant", "createMessage:assistant", "touchThread"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestInterceptorEmptyBufferSkipsFlush(t *testing.T) {
	store := newMemStore()
	p := newInterceptor(store, "t-1", log.NewNop())
	yield := p.intercept(context.Background(), func(string) error { return nil })

	msg := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1"}}}
	if err := yield(Item{Message: &msg}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	p.finalize(context.Background())

	// No content arrived: no update, no new assistant message, no touch.
	want := []string{"createMessage:assistant"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestInterceptorFinalizeExactlyOnce(t *testing.T) {
	store := newMemStore()
	p := newInterceptor(store, "t-1", log.NewNop())
	yield := p.intercept(context.Background(), func(string) error { return nil })

	if err := yield(Item{Content: "text"}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	p.finalize(context.Background())
	p.finalize(context.Background())

	want := []string{"createMessage:assistant", "touchThread"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestInterceptorFinalizeSurvivesCancelledContext(t *testing.T) {
	store := newMemStore()
	p := newInterceptor(store, "t-1", log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	yield := p.intercept(ctx, func(string) error { return nil })
	if err := yield(Item{Content: "partial reply"}); err != nil {
		t.Fatalf("yield: %v", err)
	}

	// Consumer disconnects mid-stream.
	cancel()
	p.finalize(ctx)

	want := []string{"createMessage:assistant", "touchThread"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if store.ops[0].msg.Text() != "partial reply" {
		t.Errorf("flushed content = %q", store.ops[0].msg.Text())
	}
}

func TestInterceptorStoreFailureDoesNotAbortStream(t *testing.T) {
	store := newMemStore()
	store.createMsgErr = errors.New("db down")
	p := newInterceptor(store, "t-1", log.NewNop())

	var emitted []string
	yield := p.intercept(context.Background(), func(delta string) error {
		emitted = append(emitted, delta)
		return nil
	})

	msg := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1"}}}
	if err := yield(Item{Message: &msg}); err != nil {
		t.Fatalf("structural persist failure must not surface: %v", err)
	}
	if err := yield(Item{Content: "still streaming"}); err != nil {
		t.Fatalf("yield: %v", err)
	}
	if !reflect.DeepEqual(emitted, []string{"still streaming"}) {
		t.Errorf("emitted = %v", emitted)
	}
}
