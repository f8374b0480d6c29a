// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package adapters

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
)

// GoogleTranscriber implements both Transcriber and LanguageDetector
// using the Google Speech v2 Recognize API. It makes a single
// synchronous recognize call per utterance, since the detector already
// hands over one bounded utterance rather than a live stream.
type GoogleTranscriber struct {
	logger     commons.Logger
	client     *speech.Client
	recognizer string
	language   string
}

// NewGoogleTranscriber builds a Transcriber/LanguageDetector pair backed
// by one Google Speech client. recognizer is the fully qualified
// recognizer resource name.
func NewGoogleTranscriber(logger commons.Logger, client *speech.Client, recognizer, defaultLanguage string) *GoogleTranscriber {
	return &GoogleTranscriber{logger: logger, client: client, recognizer: recognizer, language: defaultLanguage}
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, utterance audioframe.Frame) (string, error) {
	req := &speechpb.RecognizeRequest{
		Recognizer: g.recognizer,
		Config: &speechpb.RecognitionConfig{
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(utterance.Rate()),
					AudioChannelCount: int32(utterance.Channels()),
				},
			},
			LanguageCodes: []string{g.language},
			Model:         "long",
			Features: &speechpb.RecognitionFeatures{
				EnableAutomaticPunctuation: true,
			},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{
			Content: interleavedBytes(utterance),
		},
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("adapters: google transcriber: %w", err)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return resp.Results[0].Alternatives[0].Transcript, nil
}

// DetectLanguage returns the transcriber's configured default language
// for any text. It makes no recognition call and does not inspect text,
// so a session is always pinned to that default language.
func (g *GoogleTranscriber) DetectLanguage(ctx context.Context, text string) (string, error) {
	if text == "" {
		return g.language, nil
	}
	return g.language, nil
}

func interleavedBytes(f audioframe.Frame) []byte {
	channels := f.Channels()
	samples := f.SampleCount()
	out := make([]byte, 0, samples*channels*2)
	planes := f.Planes()
	for i := 0; i < samples; i++ {
		for c := 0; c < channels; c++ {
			v := planes[c][i]
			out = append(out, byte(v), byte(v>>8))
		}
	}
	return out
}
