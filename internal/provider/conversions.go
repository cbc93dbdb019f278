package provider

import (
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// conversions.go holds the pure mapping functions between the internal
// message shape and the OpenAI wire shape. All provider-format knowledge
// stays here, at the edge.

// toOpenAIMessages converts internal messages to request params.
func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case chat.RoleUser:
			out = append(out, openai.UserMessage(msg.Text()))
		case chat.RoleTool:
			out = append(out, openai.ToolMessage(msg.Text(), msg.ToolCallID))
		case chat.RoleAssistant:
			out = append(out, assistantParam(msg))
		}
	}
	return out
}

// assistantParam handles the assistant shape with or without tool calls.
func assistantParam(msg chat.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Text())
	}

	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			},
		})
	}

	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != nil {
		assistant.Content.OfString = openai.String(*msg.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// toOpenAITools converts tool definitions to request params.
func toOpenAITools(tools []chat.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, def := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:       def.Name,
			Parameters: shared.FunctionParameters(def.Parameters),
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

// fromOpenAIChunk converts one streamed SDK chunk to the internal shape.
func fromOpenAIChunk(chunk openai.ChatCompletionChunk) chat.Chunk {
	if len(chunk.Choices) == 0 {
		return chat.Chunk{}
	}
	choice := chunk.Choices[0]

	out := chat.Chunk{
		TextDelta:    choice.Delta.Content,
		FinishReason: choice.FinishReason,
	}
	for _, call := range choice.Delta.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, chat.ToolCallFragment{
			Index:     int(call.Index),
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}
