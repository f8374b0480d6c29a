package adapters

import (
	"context"

	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
)

// NoopTranscriptStore discards the transcript after logging it. Durable
// persistence is left to a caller-supplied TranscriptStore; this is the
// default so the orchestrator's fire-and-forget Save call always has
// something to call.
type NoopTranscriptStore struct {
	logger commons.Logger
}

func NewNoopTranscriptStore(logger commons.Logger) *NoopTranscriptStore {
	return &NoopTranscriptStore{logger: logger}
}

func (s *NoopTranscriptStore) Save(ctx context.Context, transcript conversation.Transcript) error {
	s.logger.Infow("transcript store: discarding transcript (no store configured)",
		"activity_kind", transcript.ActivityKind,
		"message_count", len(transcript.Messages),
	)
	return nil
}
