// Package adapters defines the stateless external-service collaborators:
// transcription, completion, synthesis, language detection, voice
// selection and transcript persistence. The orchestrator depends only on
// these interfaces; concrete implementations wrap the relevant cloud
// SDKs.
package adapters

import (
	"context"
	"time"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
)

// Transcriber turns one recorded utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, utterance audioframe.Frame) (string, error)
}

// CompleteOptions shapes one LLM call: n=1, a response-length cap, and a
// stop sequence that keeps a completion-style model from inventing the
// next user turn.
type CompleteOptions struct {
	N         int
	MaxTokens int
	Stop      []string
}

// Completer asks the configured LLM for the assistant's next message
// given the full message history.
type Completer interface {
	Complete(ctx context.Context, messages []conversation.Message, opts CompleteOptions) (text string, finishReason string, err error)
}

// Synthesiser turns assistant text, in a selected voice, into an audio
// frame at the session's configured sample rate/layout.
type Synthesiser interface {
	Synthesise(ctx context.Context, text string, voice string) (audioframe.Frame, error)
}

// LanguageDetector identifies the BCP-47 language code of a user's first
// utterance text, used once per session to pin the Character.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// VoiceDirectory selects a voice descriptor for a language, gender and
// model tier.
type VoiceDirectory interface {
	SelectVoice(ctx context.Context, language, gender, model string) (string, error)
}

// TranscriptStore persists a finished session's transcript. Calls are
// fire-and-forget from the orchestrator's point of view.
type TranscriptStore interface {
	Save(ctx context.Context, transcript conversation.Transcript) error
}

// Default timeouts for external calls.
const (
	VoiceSelectionTimeout = 5 * time.Second
	SynthesisTimeout      = 5 * time.Second
	SecretFetchTimeout    = 2 * time.Second
)
