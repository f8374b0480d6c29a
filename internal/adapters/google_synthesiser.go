// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package adapters

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
)

// Default voice/language constants.
const (
	DefaultVoice        = "en-US-Chirp-HD-F"
	DefaultLanguageCode = "en-US"
)

// GoogleSynthesiser implements Synthesiser using Google Cloud
// Text-to-Speech, requesting raw LINEAR16 PCM at the session's configured
// rate so the result slots directly into an audioframe.Frame with no
// resampling step.
type GoogleSynthesiser struct {
	logger commons.Logger
	client *texttospeech.Client
	rate   int
	layout audioframe.Layout
}

// NewGoogleSynthesiser builds a Synthesiser backed by one Google
// Text-to-Speech client.
func NewGoogleSynthesiser(logger commons.Logger, client *texttospeech.Client, rate int, layout audioframe.Layout) *GoogleSynthesiser {
	return &GoogleSynthesiser{logger: logger, client: client, rate: rate, layout: layout}
}

func (g *GoogleSynthesiser) Synthesise(ctx context.Context, text string, voice string) (audioframe.Frame, error) {
	clean := stripMarkdown(text)
	if voice == "" {
		voice = DefaultVoice
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: clean},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			Name:         voice,
			LanguageCode: DefaultLanguageCode,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(g.rate),
		},
	}

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return audioframe.Frame{}, fmt.Errorf("adapters: google synthesiser: %w", err)
	}

	return pcmBytesToFrame(resp.AudioContent, g.rate, g.layout)
}

// pcmBytesToFrame de-interleaves a little-endian s16 byte stream (mono,
// as Google TTS returns it) into the session's configured channel layout,
// duplicating the mono signal across channels when the layout is stereo.
func pcmBytesToFrame(data []byte, rate int, layout audioframe.Layout) (audioframe.Frame, error) {
	if len(data)%2 != 0 {
		return audioframe.Frame{}, fmt.Errorf("adapters: pcmBytesToFrame: odd byte length %d", len(data))
	}
	n := len(data) / 2
	mono := make([]int16, n)
	for i := 0; i < n; i++ {
		mono[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}

	channels := layout.Channels()
	planes := make([][]int16, channels)
	for c := range planes {
		planes[c] = mono
	}
	return audioframe.New(audioframe.FormatS16, layout, rate, planes, 0), nil
}
