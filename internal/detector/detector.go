// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package detector implements the utterance detector: an energy-based
// VAD state machine that consumes one live inbound audio track and
// emits exactly one bounded audio segment per user turn.
//
// The mutual-exclusion pattern (a single channel-based lock shared by
// the background frame-drain loop and GetUtterance) follows the
// one-owned-context, one-background-goroutine, explicit-Start/Stop
// lifecycle idiom used elsewhere in this repository.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/config"
	"github.com/moshi-labs/moshi-voice/internal/telemetry"
	"github.com/moshi-labs/moshi-voice/internal/voiceerr"
)

// Track is the inbound audio source the detector consumes. Its concrete
// implementation (in internal/webrtcsignal) wraps a pion TrackRemote and
// decodes Opus RTP payloads into PCM Frames; the detector itself never
// sees RTP.
type Track interface {
	// Kind reports the track's media kind; SetTrack rejects anything
	// other than "audio".
	Kind() string
	// Live reports whether the track is still attached to a live
	// connection. SetTrack rejects a track that is already ended.
	Live() bool
	// ReadFrame blocks for the next frame or until ctx is done. It
	// returns an error wrapping voiceerr.ErrDisconnected when the track
	// has ended (peer hangup, connection closed).
	ReadFrame(ctx context.Context) (audioframe.Frame, error)
}

type state int

const (
	stateDraining state = iota
	stateMeasuring
	stateWaitingForSpeech
	stateRecording
	stateDone
)

// Detector runs the VAD state machine.
type Detector struct {
	logger commons.Logger
	cfg    config.ListeningConfig

	mu      sync.Mutex
	track   Track
	started bool

	metrics *telemetry.Metrics

	// lock is a 1-buffered channel used as a mutex between the
	// background drainer and GetUtterance: whichever goroutine receives
	// the token holds exclusive access to the track; it must send the
	// token back before any other read. This gives a never-both
	// guarantee without a second synchronization primitive.
	lock chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	drainDone chan struct{}

	measured         bool
	backgroundEnergy float64
}

// New constructs a Detector bound to cfg. The track is attached later via
// SetTrack; the detector is inert until Start is called.
func New(logger commons.Logger, cfg config.ListeningConfig) *Detector {
	lock := make(chan struct{}, 1)
	lock <- struct{}{}
	return &Detector{
		logger: logger,
		cfg:    cfg,
		lock:   lock,
	}
}

// SetMetrics attaches the instruments GetUtterance records timeouts
// against. Optional: a nil or never-called SetMetrics leaves recording
// as a no-op, which is what every detector test relies on.
func (d *Detector) SetMetrics(m *telemetry.Metrics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics = m
}

// SetTrack is a one-shot assignment. Re-assignment after the first is
// logged and ignored; a non-audio or non-live track is rejected.
func (d *Detector) SetTrack(t Track) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.track != nil {
		d.logger.Warnw("detector: SetTrack called again, ignoring", "kind", t.Kind())
		return nil
	}
	if t.Kind() != "audio" {
		return fmt.Errorf("detector: SetTrack: not an audio track (kind=%s)", t.Kind())
	}
	if !t.Live() {
		return fmt.Errorf("detector: SetTrack: track is not live")
	}
	d.track = t
	return nil
}

// Start launches the background frame-drain task. It fails if no track
// has been set. Calling Start twice is a no-op on the second call.
func (d *Detector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}
	if d.track == nil {
		return fmt.Errorf("detector: Start: no track set")
	}
	d.runCtx, d.runCancel = context.WithCancel(context.Background())
	d.drainDone = make(chan struct{})
	d.started = true
	go d.drainLoop(d.runCtx)
	return nil
}

// Stop cancels the background task and releases the track. Safe to call
// twice; the second call is a no-op.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.runCancel
	done := d.drainDone
	d.mu.Unlock()

	cancel()
	<-done
}

// drainLoop keeps the track real-time while nobody holds the utterance
// lock: every frame arriving between turns (assistant speaking, the
// orchestrator thinking, stale pre-roll audio) is pulled and discarded so
// it never poisons the next GetUtterance call.
func (d *Detector) drainLoop(ctx context.Context) {
	defer close(d.drainDone)
	for {
		select {
		case <-ctx.Done():
			return
		case tok := <-d.lock:
			_, err := d.track.ReadFrame(ctx)
			d.lock <- tok
			if err != nil && errors.Is(err, voiceerr.ErrDisconnected) {
				d.logger.Infof("detector: drain: track ended, stopping")
				return
			}
		}
	}
}

// acquire blocks until the caller owns the utterance lock or ctx is done.
func (d *Detector) acquire(ctx context.Context) (release func(), err error) {
	select {
	case tok := <-d.lock:
		return func() { d.lock <- tok }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetUtterance waits for and returns one utterance.
func (d *Detector) GetUtterance(ctx context.Context) (audioframe.Frame, error) {
	d.mu.Lock()
	track := d.track
	d.mu.Unlock()
	if track == nil {
		return audioframe.Frame{}, fmt.Errorf("detector: GetUtterance: no track set")
	}

	release, err := d.acquire(ctx)
	if err != nil {
		return audioframe.Frame{}, fmt.Errorf("detector: GetUtterance: %w", voiceerr.ErrDisconnected)
	}
	defer release()

	overallCtx, cancel := context.WithTimeout(ctx, d.cfg.UtteranceTimeout)
	defer cancel()

	if !d.measured {
		energy, err := d.measure(overallCtx, track)
		if err != nil {
			return audioframe.Frame{}, err
		}
		d.backgroundEnergy = energy
		d.measured = true
	}

	prefix, err := d.waitForSpeech(overallCtx, track)
	if err != nil {
		d.recordTimeout(err)
		return audioframe.Frame{}, err
	}

	frames, err := d.record(overallCtx, track, prefix)
	if err != nil {
		d.recordTimeout(err)
		return audioframe.Frame{}, err
	}

	return audioframe.Concat(frames)
}

// recordTimeout increments DetectorTimeouts when err wraps
// voiceerr.ErrTimeout; a disconnect or utterance-too-long error is not a
// timeout and is left uncounted.
func (d *Detector) recordTimeout(err error) {
	if !errors.Is(err, voiceerr.ErrTimeout) {
		return
	}
	d.mu.Lock()
	m := d.metrics
	d.mu.Unlock()
	if m != nil {
		m.DetectorTimeouts.Add(context.Background(), 1)
	}
}

// measure implements state Measuring: accumulate frames for
// AmbientNoiseMeasurement, compute the RMS energy of the aggregate, and
// floor it at BackgroundEnergyFloor.
func (d *Detector) measure(ctx context.Context, track Track) (float64, error) {
	var frames []audioframe.Frame
	var accumulated int64 // nanoseconds
	target := d.cfg.AmbientNoiseMeasurement.Nanoseconds()

	for accumulated < target {
		f, err := readOne(ctx, track)
		if err != nil {
			return 0, err
		}
		frames = append(frames, f)
		accumulated += f.Duration().Nanoseconds()
	}

	joined, err := audioframe.Concat(frames)
	if err != nil {
		return 0, fmt.Errorf("detector: measure: %w", err)
	}
	energy := joined.Energy()
	if energy < d.cfg.BackgroundEnergyFloor {
		energy = d.cfg.BackgroundEnergyFloor
	}
	return energy, nil
}

// waitForSpeech implements state WaitingForSpeech: wait up to
// UtteranceStartTimeout for UtteranceStartSpeaking of contiguous
// above-threshold audio, and return the run of frames that triggered it
// so the start of the word is not clipped.
func (d *Detector) waitForSpeech(ctx context.Context, track Track) ([]audioframe.Frame, error) {
	startCtx, cancel := context.WithTimeout(ctx, d.cfg.UtteranceStartTimeout)
	defer cancel()

	var run []audioframe.Frame
	var sustained int64 // nanoseconds of contiguous above-threshold audio

	for {
		f, err := readOne(startCtx, track)
		if err != nil {
			if errors.Is(err, voiceerr.ErrDisconnected) {
				return nil, err
			}
			return nil, fmt.Errorf("detector: waitForSpeech: %w", voiceerr.ErrTimeout)
		}

		if f.Energy() > d.backgroundEnergy {
			sustained += f.Duration().Nanoseconds()
			run = append(run, f)
		} else {
			sustained = 0
			run = run[:0]
		}

		if sustained >= d.cfg.UtteranceStartSpeaking.Nanoseconds() {
			return run, nil
		}
	}
}

// record implements state Recording: silenceTime accumulates
// below-threshold duration and is reset only once a run of
// above-threshold audio (silenceBrokenTime) outlasts the ignorable spike
// window, so a brief cough or breath mid-silence does not restart the
// end-of-utterance clock, but genuine resumed speech does. Exit requires
// both silenceTime reaching UtteranceEndSilence and the recorded duration
// reaching the UtteranceLengthMin floor, so a too-short blip does not end
// the turn early. The recording is reported as UtteranceTooLong when the
// recorded duration exceeds UtteranceTimeout, or when the per-call
// UtteranceTimeout deadline elapses before UtteranceEndSilence is reached.
func (d *Detector) record(ctx context.Context, track Track, prefix []audioframe.Frame) ([]audioframe.Frame, error) {
	frames := append([]audioframe.Frame(nil), prefix...)

	var silenceTime int64       // nanoseconds of accumulated below-threshold audio
	var silenceBrokenTime int64 // nanoseconds of the above-threshold run currently in progress
	var totalUtterance int64    // nanoseconds, recording-phase only, includes prefix

	for _, f := range prefix {
		totalUtterance += f.Duration().Nanoseconds()
	}

	endSilence := d.cfg.UtteranceEndSilence.Nanoseconds()
	ignoreSpike := d.cfg.SilenceDetectionIgnoreSpike.Nanoseconds()
	lengthMin := d.cfg.UtteranceLengthMin.Nanoseconds()
	timeout := d.cfg.UtteranceTimeout.Nanoseconds()

	for {
		f, err := readOne(ctx, track)
		if err != nil {
			if errors.Is(err, voiceerr.ErrDisconnected) {
				return nil, err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("detector: record: %w", voiceerr.ErrUtteranceTooLong)
			}
			return nil, fmt.Errorf("detector: record: %w", voiceerr.ErrTimeout)
		}

		// pts is cleared on append: these frames will be re-joined by
		// Concat, not re-scheduled onto any track.
		frames = append(frames, f.WithPTS(0))

		dur := f.Duration().Nanoseconds()
		totalUtterance += dur

		if f.Energy() < d.backgroundEnergy {
			silenceTime += dur
			silenceBrokenTime = 0
		} else {
			silenceBrokenTime += dur
			if silenceBrokenTime > ignoreSpike {
				silenceTime = 0
			}
		}

		if silenceTime >= endSilence && totalUtterance >= lengthMin {
			return frames, nil
		}
		if totalUtterance > timeout {
			return nil, fmt.Errorf("detector: record: %w", voiceerr.ErrUtteranceTooLong)
		}
	}
}

// readOne reads a single frame, translating a context-deadline error from
// the underlying track into voiceerr.ErrTimeout and preserving
// voiceerr.ErrDisconnected.
func readOne(ctx context.Context, track Track) (audioframe.Frame, error) {
	f, err := track.ReadFrame(ctx)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, voiceerr.ErrDisconnected) {
		return audioframe.Frame{}, err
	}
	return audioframe.Frame{}, fmt.Errorf("%w: %v", voiceerr.ErrTimeout, err)
}
