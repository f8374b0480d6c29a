package adapters

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
)

// CompletionStyleCompleter demonstrates the flat-prompt LLM shape spec
// §4.3 requires alongside the chat shape: the message history is flattened
// into one INSTRUCTIONS/CONVERSATION prompt (assembleCompletionPrompt) and
// the raw completion is post-cleaned (cleanCompletionOutput) to the first
// well-formed "assistant: ..." reply.
type CompletionStyleCompleter struct {
	logger commons.Logger
	client openai.Client
	model  string
}

// NewCompletionStyleCompleter wraps a legacy completion-style model (e.g.
// an instruct-tuned model with no chat template) behind the Completer
// interface.
func NewCompletionStyleCompleter(logger commons.Logger, apiKey, model string) *CompletionStyleCompleter {
	return &CompletionStyleCompleter{
		logger: logger,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *CompletionStyleCompleter) Complete(ctx context.Context, messages []conversation.Message, opts CompleteOptions) (string, string, error) {
	prompt := assembleCompletionPrompt(messages)

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 64
	}
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(c.model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens: openai.Int(maxTokens),
	}
	if opts.N > 0 {
		params.N = openai.Int(int64(opts.N))
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}

	resp, err := c.client.Completions.New(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("adapters: completion-style completer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("adapters: completion-style completer: no choices returned")
	}

	choice := resp.Choices[0]
	if choice.FinishReason != "stop" {
		c.logger.Warnw("completion-style completer: non-stop finish reason", "finish_reason", choice.FinishReason)
	}
	return cleanCompletionOutput(choice.Text), choice.FinishReason, nil
}
