package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/config"
	"github.com/moshi-labs/moshi-voice/internal/voiceerr"
)

const testRate = 48000
const testFrameSamples = 480 // 10ms @ 48kHz

func silentFrame() audioframe.Frame {
	return audioframe.Silent(audioframe.FormatS16, audioframe.LayoutMono, testRate, testFrameSamples, 0)
}

func loudFrame() audioframe.Frame {
	samples := make([]int16, testFrameSamples)
	for i := range samples {
		samples[i] = 20000
	}
	return audioframe.New(audioframe.FormatS16, audioframe.LayoutMono, testRate, [][]int16{samples}, 0)
}

// fakeTrack replays a fixed script of frames, then blocks until the test's
// context is cancelled (mirroring a track that simply has nothing more to
// offer rather than one that has disconnected).
type fakeTrack struct {
	frames chan audioframe.Frame
	live   bool
}

func newFakeTrack(script []audioframe.Frame) *fakeTrack {
	ch := make(chan audioframe.Frame, len(script))
	for _, f := range script {
		ch <- f
	}
	return &fakeTrack{frames: ch, live: true}
}

func (t *fakeTrack) Kind() string { return "audio" }
func (t *fakeTrack) Live() bool   { return t.live }

func (t *fakeTrack) ReadFrame(ctx context.Context) (audioframe.Frame, error) {
	select {
	case f, ok := <-t.frames:
		if !ok {
			return audioframe.Frame{}, fmt.Errorf("fakeTrack: %w", voiceerr.ErrDisconnected)
		}
		return f, nil
	case <-ctx.Done():
		return audioframe.Frame{}, ctx.Err()
	}
}

func testConfig() config.ListeningConfig {
	return config.ListeningConfig{
		AmbientNoiseMeasurement:     50 * time.Millisecond,
		UtteranceStartTimeout:       2 * time.Second,
		UtteranceStartSpeaking:      30 * time.Millisecond,
		SilenceDetectionIgnoreSpike: 20 * time.Millisecond,
		UtteranceEndSilence:         50 * time.Millisecond,
		UtteranceLengthMin:          10 * time.Millisecond,
		UtteranceTimeout:            3 * time.Second,
		BackgroundEnergyFloor:       30,
	}
}

func repeat(f audioframe.Frame, n int) []audioframe.Frame {
	out := make([]audioframe.Frame, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func TestGetUtteranceHappyPath(t *testing.T) {
	var script []audioframe.Frame
	script = append(script, repeat(silentFrame(), 5)...)  // ambient measurement
	script = append(script, repeat(loudFrame(), 5)...)    // crosses UtteranceStartSpeaking
	script = append(script, repeat(loudFrame(), 3)...)    // continued speech
	script = append(script, repeat(silentFrame(), 10)...) // trailing silence ends the turn

	track := newFakeTrack(script)
	d := New(commons.NewNop(), testConfig())
	require.NoError(t, d.SetTrack(track))
	require.NoError(t, d.Start())
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	utterance, err := d.GetUtterance(ctx)
	require.NoError(t, err)
	assert.Greater(t, utterance.SampleCount(), 0)
}

func TestGetUtteranceTimesOutWithNoSpeech(t *testing.T) {
	script := repeat(silentFrame(), 2000)
	track := newFakeTrack(script)

	cfg := testConfig()
	cfg.AmbientNoiseMeasurement = 10 * time.Millisecond
	cfg.UtteranceStartTimeout = 30 * time.Millisecond

	d := New(commons.NewNop(), cfg)
	require.NoError(t, d.SetTrack(track))
	require.NoError(t, d.Start())
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := d.GetUtterance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, voiceerr.ErrTimeout)
}

func TestGetUtteranceReportsUtteranceTooLong(t *testing.T) {
	var script []audioframe.Frame
	script = append(script, repeat(silentFrame(), 2)...)
	script = append(script, repeat(loudFrame(), 2000)...) // never stops talking

	track := newFakeTrack(script)

	cfg := testConfig()
	cfg.AmbientNoiseMeasurement = 10 * time.Millisecond
	cfg.UtteranceStartSpeaking = 10 * time.Millisecond
	cfg.UtteranceTimeout = 50 * time.Millisecond

	d := New(commons.NewNop(), cfg)
	require.NoError(t, d.SetTrack(track))
	require.NoError(t, d.Start())
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := d.GetUtterance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, voiceerr.ErrUtteranceTooLong)
}

func TestGetUtteranceReportsDisconnected(t *testing.T) {
	script := repeat(silentFrame(), 2)
	track := newFakeTrack(script)
	close(track.frames)

	cfg := testConfig()
	cfg.AmbientNoiseMeasurement = 5 * time.Millisecond

	d := New(commons.NewNop(), cfg)
	require.NoError(t, d.SetTrack(track))
	require.NoError(t, d.Start())
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := d.GetUtterance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, voiceerr.ErrDisconnected)
}

func TestSetTrackRejectsNonAudioKind(t *testing.T) {
	d := New(commons.NewNop(), testConfig())
	err := d.SetTrack(&kindTrack{kind: "video"})
	assert.Error(t, err)
}

type kindTrack struct{ kind string }

func (k *kindTrack) Kind() string { return k.kind }
func (k *kindTrack) Live() bool   { return true }
func (k *kindTrack) ReadFrame(ctx context.Context) (audioframe.Frame, error) {
	return audioframe.Frame{}, nil
}

func TestSetTrackIsOneShot(t *testing.T) {
	d := New(commons.NewNop(), testConfig())
	t1 := newFakeTrack(repeat(silentFrame(), 1))
	t2 := newFakeTrack(repeat(silentFrame(), 1))
	require.NoError(t, d.SetTrack(t1))
	require.NoError(t, d.SetTrack(t2))

	d.mu.Lock()
	got := d.track
	d.mu.Unlock()
	assert.Same(t, t1, got)
}

func TestStopIsIdempotent(t *testing.T) {
	d := New(commons.NewNop(), testConfig())
	track := newFakeTrack(repeat(silentFrame(), 100))
	require.NoError(t, d.SetTrack(track))
	require.NoError(t, d.Start())
	d.Stop()
	d.Stop()
}
