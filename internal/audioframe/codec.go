// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audioframe

// Opus wire-format constants. Opus is the codec pion negotiates over
// RTP; the byte boundary between RTP/Opus packets and the PCM Frame
// values the rest of this repository operates on lives here, as the
// thinnest possible adapter.
const (
	OpusSampleRate  = 48000
	OpusChannels    = 2 // RTP always signals opus/48000/2 per RFC 7587
	OpusPayloadType = 111
	OpusSDPFmtpLine = "minptime=10;useinbandfec=1"
)

// Decoder turns Opus-encoded RTP payloads into PCM Frame values at the
// fixed 48kHz/stereo contract. Implemented in internal/webrtcsignal using
// gopkg.in/hraban/opus.v2, kept out of this package so audioframe itself
// has no cgo dependency.
type Decoder interface {
	Decode(payload []byte, pts int64) (Frame, error)
}

// Encoder turns a PCM Frame into an Opus-encoded RTP payload.
type Encoder interface {
	Encode(f Frame) ([]byte, error)
}
