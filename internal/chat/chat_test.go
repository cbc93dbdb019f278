package chat

// Shared test doubles for the chat package. The fake model plays back
// scripted streams, one per invocation; the memory store records every
// write in call order.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type fakeStream struct {
	chunks []Chunk
	pos    int
	err    error
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *fakeStream) Current() Chunk { return s.chunks[s.pos-1] }
func (s *fakeStream) Err() error     { return s.err }
func (s *fakeStream) Close() error   { s.closed = true; return nil }

type fakeModel struct {
	streams []*fakeStream
	calls   int
	err     error
	got     [][]Message
}

func (m *fakeModel) Stream(_ context.Context, messages []Message, _ []ToolDefinition) (ModelStream, error) {
	m.got = append(m.got, messages)
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.streams) {
		return nil, errors.New("fake model: no more scripted streams")
	}
	s := m.streams[m.calls]
	m.calls++
	return s, nil
}

// textStream scripts a plain reply split into word deltas.
func textStream(text string) *fakeStream {
	var chunks []Chunk
	for _, word := range strings.SplitAfter(text, " ") {
		if word != "" {
			chunks = append(chunks, Chunk{TextDelta: word})
		}
	}
	chunks = append(chunks, Chunk{FinishReason: "stop"})
	return &fakeStream{chunks: chunks}
}

type fakeTool struct {
	def    ToolDefinition
	result string
	err    error
	gotRaw []json.RawMessage
}

func (t *fakeTool) Definition() ToolDefinition { return t.def }

func (t *fakeTool) Call(_ context.Context, args json.RawMessage) (string, error) {
	t.gotRaw = append(t.gotRaw, args)
	return t.result, t.err
}

type fakeRegistry struct {
	tools map[string]Tool
}

func newFakeRegistry(tools ...Tool) *fakeRegistry {
	r := &fakeRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.tools[t.Definition().Name] = t
	}
	return r
}

func (r *fakeRegistry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *fakeRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// storeOp is one recorded store mutation, e.g. "createMessage:assistant".
type storeOp struct {
	op  string
	id  string
	msg Message
}

type memStore struct {
	mu      sync.Mutex
	nextID  int
	threads map[string]*Thread
	ops     []storeOp

	createMsgErr error
	updateErr    error
}

func newMemStore() *memStore {
	return &memStore{threads: make(map[string]*Thread)}
}

func (s *memStore) newID() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

func (s *memStore) CreateThread(_ context.Context, title string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Thread{ID: s.newID(), Title: title}
	s.threads[t.ID] = &t
	s.ops = append(s.ops, storeOp{op: "createThread", id: t.ID})
	return t, nil
}

func (s *memStore) FindThread(_ context.Context, id string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (s *memStore) TouchThread(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, storeOp{op: "touchThread", id: id})
	return nil
}

func (s *memStore) CreateMessage(_ context.Context, threadID string, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createMsgErr != nil {
		return Message{}, s.createMsgErr
	}
	msg.ID = s.newID()
	s.ops = append(s.ops, storeOp{op: "createMessage:" + string(msg.Role), id: msg.ID, msg: msg})
	return msg, nil
}

func (s *memStore) UpdateMessageContent(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.ops = append(s.ops, storeOp{op: "updateMessage", id: id, msg: NewMessage(RoleAssistant, content)})
	return nil
}

// opNames returns the recorded operation names in call order.
func (s *memStore) opNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.ops))
	for i, op := range s.ops {
		names[i] = op.op
	}
	return names
}

// collect appends every yielded item to the given slice.
func collect(items *[]Item) YieldFunc {
	return func(item Item) error {
		*items = append(*items, item)
		return nil
	}
}
