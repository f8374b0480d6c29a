package webrtcsignal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
)

func newTestStereoFrame(left, right []int16) audioframe.Frame {
	return audioframe.New(audioframe.FormatS16, audioframe.LayoutStereo, audioframe.OpusSampleRate, [][]int16{left, right}, 0)
}

func TestInterleaveDeinterleaveRoundTrip(t *testing.T) {
	left := []int16{1, 2, 3, 4}
	right := []int16{-1, -2, -3, -4}

	interleaved := interleave([][]int16{left, right})
	require.Equal(t, []int16{1, -1, 2, -2, 3, -3, 4, -4}, interleaved)

	planes := deinterleave(interleaved, 2)
	require.Len(t, planes, 2)
	assert.Equal(t, left, planes[0])
	assert.Equal(t, right, planes[1])
}

func TestInterleaveEmptyPlanes(t *testing.T) {
	assert.Nil(t, interleave(nil))
}

func TestInterleaveMono(t *testing.T) {
	mono := []int16{10, 20, 30}
	out := interleave([][]int16{mono})
	assert.Equal(t, mono, out)

	planes := deinterleave(out, 1)
	require.Len(t, planes, 1)
	assert.Equal(t, mono, planes[0])
}

func TestNewOpusEncoderDecoderRoundTrip(t *testing.T) {
	enc, err := newOpusEncoder()
	require.NoError(t, err)
	dec, err := newOpusDecoder()
	require.NoError(t, err)

	samplesPerChannel := 960 // 20ms at 48kHz
	left := make([]int16, samplesPerChannel)
	right := make([]int16, samplesPerChannel)
	for i := range left {
		left[i] = int16(i % 100)
		right[i] = int16(-(i % 100))
	}
	frame := newTestStereoFrame(left, right)

	payload, err := enc.Encode(frame)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	decoded, err := dec.Decode(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, samplesPerChannel, decoded.SampleCount())
}
