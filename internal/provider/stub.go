package provider

import (
	"context"
	"strings"
	"time"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// StubReply is streamed when no model credential is configured. The
// disconnected mode is a first-class path: a missing key degrades to this
// canned reply instead of failing the turn.
const StubReply = "(stub reply) No model API key is configured. Set one to get real answers."

// stubChunkDelay paces the fake stream so consumers still exercise their
// incremental rendering path.
const stubChunkDelay = 20 * time.Millisecond

// StubClient is a chat.ModelClient that streams a fixed notice.
type StubClient struct {
	reply string
	delay time.Duration
}

// NewStubClient builds the disconnected-mode client.
func NewStubClient() *StubClient {
	return &StubClient{reply: StubReply, delay: stubChunkDelay}
}

// Stream implements chat.ModelClient. Tools are accepted and ignored: the
// stub never requests tool execution.
func (c *StubClient) Stream(ctx context.Context, _ []chat.Message, _ []chat.ToolDefinition) (chat.ModelStream, error) {
	return &stubStream{ctx: ctx, words: splitDeltas(c.reply), delay: c.delay}, nil
}

// splitDeltas cuts the reply into word-sized deltas, keeping separators so
// concatenation is lossless.
func splitDeltas(reply string) []string {
	var deltas []string
	rest := reply
	for rest != "" {
		i := strings.IndexByte(rest, ' ')
		if i < 0 {
			deltas = append(deltas, rest)
			break
		}
		deltas = append(deltas, rest[:i+1])
		rest = rest[i+1:]
	}
	return deltas
}

type stubStream struct {
	ctx   context.Context
	words []string
	pos   int
	delay time.Duration
	cur   chat.Chunk
	err   error
}

func (s *stubStream) Next() bool {
	if s.err != nil || s.pos > len(s.words) {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.pos == len(s.words) {
		// Terminal chunk carrying only the finish reason.
		s.cur = chat.Chunk{FinishReason: "stop"}
		s.pos++
		return true
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		}
	}
	s.cur = chat.Chunk{TextDelta: s.words[s.pos]}
	s.pos++
	return true
}

func (s *stubStream) Current() chat.Chunk { return s.cur }
func (s *stubStream) Err() error          { return s.err }
func (s *stubStream) Close() error        { return nil }
