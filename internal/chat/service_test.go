package chat

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kaiwa-go/kaiwa/internal/log"
)

type fakeRetriever struct {
	fragments []Fragment
	gotQuery  string
	gotTopK   int
	gotDocIDs []string
}

func (r *fakeRetriever) Search(_ context.Context, query string, topK int, docIDs []string) []Fragment {
	r.gotQuery = query
	r.gotTopK = topK
	r.gotDocIDs = docIDs
	return r.fragments
}

func newTestService(t *testing.T, model ModelClient, store HistoryStore, retriever Retriever) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Model:     model,
		Registry:  newFakeRegistry(),
		History:   store,
		Retriever: retriever,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

// runTurn drives a turn to completion and returns the concatenated reply.
func runTurn(t *testing.T, svc *Service, req Request) (string, string) {
	t.Helper()
	turn, err := svc.HandleTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	var reply strings.Builder
	if err := turn.Stream(context.Background(), func(delta string) error {
		reply.WriteString(delta)
		return nil
	}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return turn.ThreadID, reply.String()
}

func TestHandleTurnEmptyMessagesFailsBeforeWrites(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, &fakeModel{}, store, nil)

	_, err := svc.HandleTurn(context.Background(), Request{})
	if !errors.Is(err, ErrClientInput) {
		t.Fatalf("err = %v, want ErrClientInput", err)
	}
	if len(store.opNames()) != 0 {
		t.Errorf("store ops = %v, want none", store.opNames())
	}
}

func TestHandleTurnNewThread(t *testing.T) {
	store := newMemStore()
	model := &fakeModel{streams: []*fakeStream{textStream("hi there")}}
	svc := newTestService(t, model, store, nil)

	threadID, reply := runTurn(t, svc, Request{
		Messages: []Message{NewMessage(RoleUser, "what is the weather like today in Tokyo")},
	})

	if reply != "hi there" {
		t.Errorf("reply = %q", reply)
	}
	thread, err := store.FindThread(context.Background(), threadID)
	if err != nil || thread == nil {
		t.Fatalf("thread not created: %v", err)
	}
	if thread.Title != "what is the weather like today in Tokyo" {
		t.Errorf("title = %q", thread.Title)
	}

	want := []string{"createThread", "createMessage:user", "createMessage:assistant", "touchThread"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestHandleTurnTitleTruncation(t *testing.T) {
	store := newMemStore()
	model := &fakeModel{streams: []*fakeStream{textStream("ok")}}
	svc := newTestService(t, model, store, nil)

	long := strings.Repeat("あ", 80)
	threadID, _ := runTurn(t, svc, Request{Messages: []Message{NewMessage(RoleUser, long)}})

	thread, _ := store.FindThread(context.Background(), threadID)
	if got := len([]rune(thread.Title)); got != threadTitleLimit {
		t.Errorf("title length = %d runes, want %d", got, threadTitleLimit)
	}
}

func TestHandleTurnReusesExistingThread(t *testing.T) {
	store := newMemStore()
	existing, _ := store.CreateThread(context.Background(), "earlier")
	model := &fakeModel{streams: []*fakeStream{textStream("ok")}}
	svc := newTestService(t, model, store, nil)

	threadID, _ := runTurn(t, svc, Request{
		Messages: []Message{NewMessage(RoleUser, "hi")},
		ThreadID: existing.ID,
	})
	if threadID != existing.ID {
		t.Errorf("thread id = %s, want %s", threadID, existing.ID)
	}
	for _, op := range store.opNames()[1:] {
		if op == "createThread" {
			t.Error("created a new thread despite an existing one")
		}
	}
}

func TestHandleTurnUnknownThreadCreatesNew(t *testing.T) {
	store := newMemStore()
	model := &fakeModel{streams: []*fakeStream{textStream("ok")}}
	svc := newTestService(t, model, store, nil)

	threadID, _ := runTurn(t, svc, Request{
		Messages: []Message{NewMessage(RoleUser, "hi")},
		ThreadID: "missing",
	})
	if threadID == "missing" {
		t.Error("expected a fresh thread id for an unknown thread")
	}
}

func TestHandleTurnKnowledgeMessage(t *testing.T) {
	store := newMemStore()
	model := &fakeModel{streams: []*fakeStream{textStream("grounded answer")}}
	retriever := &fakeRetriever{fragments: []Fragment{
		{DocID: "guide", Title: "User Guide", ChunkIndex: 2, Text: "install with make"},
		{DocID: "faq", ChunkIndex: 0, Text: "see the guide"},
	}}
	svc := newTestService(t, model, store, retriever)

	runTurn(t, svc, Request{
		Messages:     []Message{NewMessage(RoleUser, "how do I install?")},
		UseKnowledge: true,
		DocIDs:       []string{"guide", "faq"},
	})

	if retriever.gotQuery != "how do I install?" {
		t.Errorf("retriever query = %q", retriever.gotQuery)
	}
	if retriever.gotTopK != DefaultTopK {
		t.Errorf("topK = %d, want %d", retriever.gotTopK, DefaultTopK)
	}
	if !reflect.DeepEqual(retriever.gotDocIDs, []string{"guide", "faq"}) {
		t.Errorf("docIDs = %v", retriever.gotDocIDs)
	}

	sent := model.got[0]
	if len(sent) != 3 {
		t.Fatalf("model received %d messages, want system+knowledge+user", len(sent))
	}
	knowledge := sent[1]
	if knowledge.Role != RoleSystem {
		t.Errorf("knowledge message role = %s", knowledge.Role)
	}
	text := knowledge.Text()
	if !strings.Contains(text, "[#1 User Guide #2] install with make") {
		t.Errorf("knowledge message missing titled fragment: %q", text)
	}
	// DocID stands in when the fragment has no title.
	if !strings.Contains(text, "[#2 faq #0] see the guide") {
		t.Errorf("knowledge message missing untitled fragment: %q", text)
	}
}

func TestHandleTurnKnowledgeDisabled(t *testing.T) {
	tests := []struct {
		name      string
		retriever Retriever
		use       bool
	}{
		{"flag off", &fakeRetriever{fragments: []Fragment{{Text: "x"}}}, false},
		{"nil retriever", nil, true},
		{"no fragments", &fakeRetriever{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			model := &fakeModel{streams: []*fakeStream{textStream("plain")}}
			svc := newTestService(t, model, store, tt.retriever)

			_, reply := runTurn(t, svc, Request{
				Messages:     []Message{NewMessage(RoleUser, "hi")},
				UseKnowledge: tt.use,
			})
			if reply != "plain" {
				t.Errorf("reply = %q", reply)
			}
			if len(model.got[0]) != 2 {
				t.Errorf("model received %d messages, want system+user only", len(model.got[0]))
			}
		})
	}
}

func TestHandleTurnToolCallPersistence(t *testing.T) {
	tool := &fakeTool{def: ToolDefinition{Name: "lookup"}, result: "42"}
	callTurn := &fakeStream{chunks: []Chunk{
		{ToolCalls: []ToolCallFragment{{Index: 0, ID: "c1", Name: "lookup", Arguments: "{}"}}},
		{FinishReason: FinishToolCalls},
	}}
	store := newMemStore()
	model := &fakeModel{streams: []*fakeStream{callTurn, textStream("done")}}

	svc, err := NewService(ServiceConfig{
		Model:    model,
		Registry: newFakeRegistry(tool),
		History:  store,
		Logger:   log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, reply := runTurn(t, svc, Request{Messages: []Message{NewMessage(RoleUser, "q")}})
	if reply != "done" {
		t.Errorf("reply = %q", reply)
	}

	want := []string{
		"createThread",
		"createMessage:user",
		"createMessage:assistant", // tool-call shell, nil content
		"createMessage:tool",
		"updateMessage", // final text backfilled onto the shell
		"touchThread",
	}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestHandleTurnUnknownToolStillPersistsCall(t *testing.T) {
	callTurn := &fakeStream{chunks: []Chunk{
		{ToolCalls: []ToolCallFragment{{Index: 0, ID: "c1", Name: "does_not_exist", Arguments: "{}"}}},
		{FinishReason: FinishToolCalls},
	}}
	store := newMemStore()
	model := &fakeModel{streams: []*fakeStream{callTurn}}
	svc := newTestService(t, model, store, nil)

	turn, err := svc.HandleTurn(context.Background(), Request{Messages: []Message{NewMessage(RoleUser, "q")}})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	streamErr := turn.Stream(context.Background(), func(string) error { return nil })
	var unknown *UnknownToolError
	if !errors.As(streamErr, &unknown) {
		t.Fatalf("stream err = %v, want UnknownToolError", streamErr)
	}

	// The tool-call message made it to the store before the abort; no
	// final content existed, so no backfill and no touch.
	want := []string{"createThread", "createMessage:user", "createMessage:assistant"}
	if got := store.opNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"trimmed", "  hi  ", "hi"},
		{"empty", "   ", placeholderTitle},
		{"capped", strings.Repeat("x", 60), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.in); got != tt.want {
				t.Errorf("deriveTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
