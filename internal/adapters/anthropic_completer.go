package adapters

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
)

// AnthropicCompleter is another chat-style Completer: Anthropic's
// messages API separates system-role content into
// its own top-level field rather than interleaving it in the message
// list, so it is translated here rather than reusing toOpenAIMessages.
type AnthropicCompleter struct {
	logger commons.Logger
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicCompleter builds a Completer backed by the Anthropic
// messages API.
func NewAnthropicCompleter(logger commons.Logger, apiKey string, model anthropic.Model) *AnthropicCompleter {
	return &AnthropicCompleter{
		logger: logger,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, messages []conversation.Message, opts CompleteOptions) (string, string, error) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case conversation.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 64
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  turns,
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("adapters: anthropic completer: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", "", fmt.Errorf("adapters: anthropic completer: no content blocks returned")
	}

	finishReason := string(resp.StopReason)
	if finishReason != "end_turn" && finishReason != "stop" {
		c.logger.Warnw("anthropic completer: non-stop finish reason", "finish_reason", finishReason)
	}
	return resp.Content[0].Text, finishReason, nil
}
