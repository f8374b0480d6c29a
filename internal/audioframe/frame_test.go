package audioframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mono(samples ...int16) [][]int16 { return [][]int16{samples} }
func stereo(l, r []int16) [][]int16   { return [][]int16{l, r} }

func TestDurationAndStartTime(t *testing.T) {
	f := New(FormatS16, LayoutStereo, 48000, stereo(make([]int16, 960), make([]int16, 960)), 48000)
	assert.Equal(t, 20*time.Millisecond, f.Duration())
	assert.Equal(t, 1*time.Second, f.StartTime())
}

func TestEnergyOfSilenceIsZero(t *testing.T) {
	f := Silent(FormatS16, LayoutStereo, 48000, 960, 0)
	assert.Zero(t, f.Energy())
}

func TestEnergyDoesNotOverflowAtMaxAmplitude(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = math32767()
	}
	f := New(FormatS16, LayoutMono, 48000, mono(samples...), 0)
	// RMS of a constant-amplitude signal equals the amplitude itself.
	assert.InDelta(t, 32767, f.Energy(), 1)
}

func math32767() int16 { return 32767 }

func TestSilentFrameIsZeroFilled(t *testing.T) {
	f := Silent(FormatS16, LayoutStereo, 48000, 960, 0)
	require.Len(t, f.Planes(), 2)
	for _, plane := range f.Planes() {
		require.Len(t, plane, 960)
		for _, s := range plane {
			assert.Zero(t, s)
		}
	}
}

func TestConcatJoinsPlanesInOrder(t *testing.T) {
	a := New(FormatS16, LayoutMono, 48000, mono(1, 2, 3), 0)
	b := New(FormatS16, LayoutMono, 48000, mono(4, 5), 100)
	out, err := Concat([]Frame{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4, 5}, out.Planes()[0])
	assert.Equal(t, int64(0), out.PTS())
}

func TestConcatRejectsMismatchedRate(t *testing.T) {
	a := New(FormatS16, LayoutMono, 48000, mono(1), 0)
	b := New(FormatS16, LayoutMono, 44100, mono(1), 0)
	_, err := Concat([]Frame{a, b})
	assert.Error(t, err)
}

func TestWithPTSAssignsRunningSampleCount(t *testing.T) {
	f := Silent(FormatS16, LayoutStereo, 48000, 960, 0)
	f2 := f.WithPTS(1920)
	assert.Equal(t, int64(1920), f2.PTS())
	assert.Equal(t, int64(0), f.PTS(), "WithPTS must not mutate the receiver")
}
