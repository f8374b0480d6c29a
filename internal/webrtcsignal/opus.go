// Package webrtcsignal wires pion's PeerConnection to the rest of this
// repository: Opus <-> PCM conversion at the RTP boundary, and the
// on_track/on_datachannel/on_connectionstatechange callback wiring for
// one call.
package webrtcsignal

import (
	"fmt"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"gopkg.in/hraban/opus.v2"
)

// opusDecoder adapts a hraban/opus.v2 Decoder to audioframe.Decoder. One
// instance is bound to exactly one remote track: Opus decoder state is
// not safe to share across independent packet streams.
type opusDecoder struct {
	dec *opus.Decoder
	pcm []int16 // scratch buffer, sized for one 60ms (largest Opus frame) stereo frame at 48kHz
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := opus.NewDecoder(audioframe.OpusSampleRate, audioframe.OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("webrtcsignal: new opus decoder: %w", err)
	}
	return &opusDecoder{
		dec: dec,
		pcm: make([]int16, audioframe.OpusSampleRate/1000*60*audioframe.OpusChannels), // 60ms max frame
	}, nil
}

// Decode turns one Opus RTP payload into a planar stereo PCM Frame
// at pts (expressed in samples, per the detector/player contract).
func (d *opusDecoder) Decode(payload []byte, pts int64) (audioframe.Frame, error) {
	n, err := d.dec.Decode(payload, d.pcm)
	if err != nil {
		return audioframe.Frame{}, fmt.Errorf("webrtcsignal: opus decode: %w", err)
	}
	planes := deinterleave(d.pcm[:n*audioframe.OpusChannels], audioframe.OpusChannels)
	return audioframe.New(audioframe.FormatS16, audioframe.LayoutStereo, audioframe.OpusSampleRate, planes, pts), nil
}

// opusEncoder adapts a hraban/opus.v2 Encoder to audioframe.Encoder.
type opusEncoder struct {
	enc *opus.Encoder
	buf []byte // scratch buffer for one encoded packet
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := opus.NewEncoder(audioframe.OpusSampleRate, audioframe.OpusChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("webrtcsignal: new opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc, buf: make([]byte, 4000)}, nil
}

// Encode turns a PCM Frame into one Opus RTP payload. f must already be
// at the 48kHz/stereo wire contract; resampling is not this package's
// concern.
func (e *opusEncoder) Encode(f audioframe.Frame) ([]byte, error) {
	pcm := interleave(f.Planes())
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("webrtcsignal: opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// interleave turns planar channel buffers into one LRLR... buffer, as
// hraban/opus.v2's Encode expects.
func interleave(planes [][]int16) []int16 {
	if len(planes) == 0 {
		return nil
	}
	n := len(planes[0])
	out := make([]int16, n*len(planes))
	for i := 0; i < n; i++ {
		for c, plane := range planes {
			out[i*len(planes)+c] = plane[i]
		}
	}
	return out
}

// deinterleave is interleave's inverse.
func deinterleave(samples []int16, channels int) [][]int16 {
	n := len(samples) / channels
	planes := make([][]int16, channels)
	for c := range planes {
		planes[c] = make([]int16, n)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			planes[c][i] = samples[i*channels+c]
		}
	}
	return planes
}
