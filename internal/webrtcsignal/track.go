// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package webrtcsignal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/voiceerr"
)

const rtpBufferSize = 1500 // max RTP packet size (MTU)

// remoteAudioTrack adapts a pion *TrackRemote into detector.Track:
// ReadFrame unmarshals one RTP packet and Opus-decodes its payload into a
// PCM Frame. No resampling step is needed since this repository's wire
// contract is already 48kHz/stereo end to end.
type remoteAudioTrack struct {
	logger  commons.Logger
	track   *pionwebrtc.TrackRemote
	decoder *opusDecoder
	samples int64 // running PTS, in samples
}

func newRemoteAudioTrack(logger commons.Logger, track *pionwebrtc.TrackRemote) (*remoteAudioTrack, error) {
	dec, err := newOpusDecoder()
	if err != nil {
		return nil, err
	}
	return &remoteAudioTrack{logger: logger, track: track, decoder: dec}, nil
}

func (t *remoteAudioTrack) Kind() string {
	if t.track.Kind() != pionwebrtc.RTPCodecTypeAudio {
		return "video"
	}
	return "audio"
}

// Live always reports true: pion's TrackRemote exposes no direct "ended"
// query, so an ended track is only discovered by a failed Read inside
// ReadFrame.
func (t *remoteAudioTrack) Live() bool {
	return true
}

func (t *remoteAudioTrack) ReadFrame(ctx context.Context) (audioframe.Frame, error) {
	buf := make([]byte, rtpBufferSize)
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, _, err := t.track.Read(buf)
		ch <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return audioframe.Frame{}, fmt.Errorf("webrtcsignal: ReadFrame: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				return audioframe.Frame{}, fmt.Errorf("webrtcsignal: ReadFrame: %w", voiceerr.ErrDisconnected)
			}
			return audioframe.Frame{}, fmt.Errorf("webrtcsignal: ReadFrame: %w", r.err)
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:r.n]); err != nil {
			t.logger.Debugf("webrtcsignal: dropping unparseable RTP packet: %v", err)
			return t.ReadFrame(ctx)
		}
		if len(pkt.Payload) == 0 {
			return t.ReadFrame(ctx)
		}

		frame, err := t.decoder.Decode(pkt.Payload, t.samples)
		if err != nil {
			t.logger.Debugf("webrtcsignal: dropping undecodable Opus payload: %v", err)
			return t.ReadFrame(ctx)
		}
		t.samples += int64(frame.SampleCount())
		return frame, nil
	}
}
