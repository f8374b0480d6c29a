package adapters

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
)

// OpenAICompleter is a chat-style Completer: a message list in, one
// assistant message out.
type OpenAICompleter struct {
	logger commons.Logger
	client openai.Client
	model  string
}

// NewOpenAICompleter builds a Completer backed by the OpenAI chat
// completions API.
func NewOpenAICompleter(logger commons.Logger, apiKey, model string) *OpenAICompleter {
	return &OpenAICompleter{
		logger: logger,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, messages []conversation.Message, opts CompleteOptions) (string, string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	}
	if opts.N > 0 {
		params.N = openai.Int(int64(opts.N))
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("adapters: openai completer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("adapters: openai completer: no choices returned")
	}

	// The first choice is used even when n > 1.
	choice := resp.Choices[0]
	if choice.FinishReason != "stop" {
		c.logger.Warnw("openai completer: non-stop finish reason", "finish_reason", choice.FinishReason)
	}
	return choice.Message.Content, choice.FinishReason, nil
}

func toOpenAIMessages(messages []conversation.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case conversation.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
