package adapters

import (
	"context"
	"fmt"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/prerecorded"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
)

// DeepgramTranscriber implements Transcriber using Deepgram's prerecorded
// transcription API: each call hands over one bounded utterance, which
// fits the "recorded clip in, text out" prerecorded endpoint better than
// a streaming session.
type DeepgramTranscriber struct {
	logger commons.Logger
	client *prerecorded.Client
	model  string
	language string
}

// NewDeepgramTranscriber builds a Transcriber backed by Deepgram.
func NewDeepgramTranscriber(logger commons.Logger, apiKey, model, language string) (*DeepgramTranscriber, error) {
	client := prerecorded.NewWithDefaults(apiKey)
	return &DeepgramTranscriber{logger: logger, client: client, model: model, language: language}, nil
}

func (d *DeepgramTranscriber) Transcribe(ctx context.Context, utterance audioframe.Frame) (string, error) {
	payload := pcmToWav(utterance)

	source := &interfaces.PrerecordedSource{Stream: payload, Mimetype: "audio/wav"}
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	resp, err := d.client.FromStream(ctx, source, options)
	if err != nil {
		return "", fmt.Errorf("adapters: deepgram transcriber: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return resp.Results.Channels[0].Alternatives[0].Transcript, nil
}
