// Package provider implements chat.ModelClient against concrete model
// endpoints: the OpenAI chat-completions streaming API, and a stub client
// for the disconnected degraded mode.
package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = "gpt-4o-mini"

// OpenAIClient streams chat completions from the OpenAI API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds a client for the given API key. baseURL and model
// are optional.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultChatModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{client: openai.NewClient(opts...), model: model}, nil
}

// Stream implements chat.ModelClient.
func (c *OpenAIClient) Stream(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition) (chat.ModelStream, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModel(c.model),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, wrapAPIError(err)
	}
	return &openAIStream{stream: stream}, nil
}

// openAIStream adapts the SDK chunk stream to chat.ModelStream.
type openAIStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current chat.Chunk
}

func (s *openAIStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	s.current = fromOpenAIChunk(s.stream.Current())
	return true
}

func (s *openAIStream) Current() chat.Chunk { return s.current }

func (s *openAIStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return wrapAPIError(err)
	}
	return nil
}

func (s *openAIStream) Close() error { return s.stream.Close() }

// wrapAPIError maps SDK failures onto chat.UpstreamModelError, carrying
// the upstream status when the SDK exposes one.
func wrapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &chat.UpstreamModelError{Status: apiErr.StatusCode, Err: err}
	}
	return &chat.UpstreamModelError{Err: err}
}
