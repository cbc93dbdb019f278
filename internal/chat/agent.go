package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"golang.org/x/time/rate"
)

// DefaultMaxTurns bounds the agentic loop: one turn is one model
// invocation plus optional tool execution.
const DefaultMaxTurns = 5

// maxTurnsMessage is the terminal content item emitted when the loop hits
// its turn limit instead of converging on a final answer.
const maxTurnsMessage = "I reached the maximum number of tool-calling rounds for this request, so I stopped here. Please try narrowing down the question."

// YieldFunc receives each stream item in order. Returning an error aborts
// the loop; already-yielded items are not retracted.
type YieldFunc func(item Item) error

// AgentConfig carries the agent loop's dependencies.
type AgentConfig struct {
	Model    ModelClient
	Registry Registry
	MaxTurns int           // <= 0 uses DefaultMaxTurns
	Limiter  *rate.Limiter // nil disables proactive rate limiting
	Logger   *slog.Logger
}

// Agent drives repeated model invocations, accumulates streamed tool-call
// fragments, executes tools, and decides whether to continue or stop.
//
// Agent is stateless across runs and safe for concurrent use for
// different conversations; a single run is strictly sequential.
type Agent struct {
	model    ModelClient
	registry Registry
	maxTurns int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewAgent validates the configuration and builds an Agent.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Model == nil {
		return nil, errors.New("model client is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		model:    cfg.Model,
		registry: cfg.Registry,
		maxTurns: maxTurns,
		limiter:  cfg.Limiter,
		logger:   logger,
	}, nil
}

// Run executes the agent loop over the given messages, yielding content
// deltas and structural messages in production order. The input slice is
// not mutated; the loop extends its own copy with tool-call and tool
// result messages between turns.
//
// The turn limit is a hard bound: on exceeding it the loop yields exactly
// one terminal content item and returns nil.
func (a *Agent) Run(ctx context.Context, messages []Message, yield YieldFunc) error {
	msgs := slices.Clone(messages)

	for turn := 0; turn < a.maxTurns; turn++ {
		calls, done, err := a.runTurn(ctx, msgs, yield)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		assistant := Message{Role: RoleAssistant, ToolCalls: calls}
		if err := yield(Item{Message: &assistant}); err != nil {
			return err
		}
		msgs = append(msgs, assistant)

		for _, call := range calls {
			result, err := a.execute(ctx, call)
			if err != nil {
				return err
			}
			toolMsg := NewMessage(RoleTool, result)
			toolMsg.ToolCallID = call.ID
			if err := yield(Item{Message: &toolMsg}); err != nil {
				return err
			}
			msgs = append(msgs, toolMsg)
		}
	}

	a.logger.Warn("agent loop hit turn limit", "max_turns", a.maxTurns)
	return yield(Item{Content: maxTurnsMessage})
}

// runTurn performs one model invocation. It streams text deltas straight
// through to yield, accumulates tool-call fragments, and reports the
// completed calls. done is true when the model finished without
// requesting tools.
func (a *Agent) runTurn(ctx context.Context, msgs []Message, yield YieldFunc) (calls []ToolCall, done bool, err error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, false, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	stream, err := a.model.Stream(ctx, msgs, a.registry.Definitions())
	if err != nil {
		return nil, false, asUpstreamError(err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			a.logger.Debug("closing model stream", "error", cerr)
		}
	}()

	acc := newToolCallAccumulator()
	finish := ""
	for stream.Next() {
		chunk := stream.Current()
		if chunk.TextDelta != "" {
			if err := yield(Item{Content: chunk.TextDelta}); err != nil {
				return nil, false, err
			}
		}
		for _, frag := range chunk.ToolCalls {
			acc.add(frag)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	if err := stream.Err(); err != nil {
		return nil, false, asUpstreamError(err)
	}

	calls = acc.completed()
	if finish != FinishToolCalls || len(calls) == 0 {
		return nil, true, nil
	}
	return calls, false, nil
}

// execute resolves and invokes one tool call with its parsed arguments.
func (a *Agent) execute(ctx context.Context, call ToolCall) (string, error) {
	tool, ok := a.registry.Lookup(call.Name)
	if !ok {
		return "", &UnknownToolError{Name: call.Name}
	}

	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	a.logger.Debug("executing tool", "tool", call.Name, "call_id", call.ID)

	result, err := tool.Call(ctx, json.RawMessage(args))
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", call.Name, err)
	}
	return result, nil
}

// asUpstreamError wraps a model failure in UpstreamModelError unless it
// already is one (or a context cancellation, which passes through).
func asUpstreamError(err error) error {
	var upstream *UpstreamModelError
	if errors.As(err, &upstream) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamModelError{Err: err}
}

// toolCallAccumulator assembles streamed tool-call fragments keyed by the
// stream-local index. The first fragment for an index creates an in-flight
// call; later fragments append to its arguments string in arrival order.
type toolCallAccumulator struct {
	byIndex map[int]*ToolCall
	order   []int
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*ToolCall)}
}

func (acc *toolCallAccumulator) add(frag ToolCallFragment) {
	call, ok := acc.byIndex[frag.Index]
	if !ok {
		call = &ToolCall{}
		acc.byIndex[frag.Index] = call
		acc.order = append(acc.order, frag.Index)
	}
	if call.ID == "" {
		call.ID = frag.ID
	}
	if call.Name == "" {
		call.Name = frag.Name
	}
	call.Arguments += frag.Arguments
}

// completed returns the accumulated calls in index order.
func (acc *toolCallAccumulator) completed() []ToolCall {
	if len(acc.order) == 0 {
		return nil
	}
	sort.Ints(acc.order)
	calls := make([]ToolCall, 0, len(acc.order))
	for _, idx := range acc.order {
		calls = append(calls, *acc.byIndex[idx])
	}
	return calls
}
