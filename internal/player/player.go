// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package player implements the response player: a WebRTC audio source
// that plays at most one utterance at a time, paces its output to real
// time, and exposes a "flushed" event SendUtterance can wait on.
//
// The mutex-guarded single-producer/single-consumer FIFO mirrors an
// output-buffer-plus-flush-channel pattern used elsewhere in the
// codebase, here holding a planar int16 FIFO of decoded PCM rather than
// a byte buffer of encoded Opus; encoding happens downstream, in
// webrtcsignal.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/config"
	"github.com/moshi-labs/moshi-voice/internal/voiceerr"
)

// Track is the outbound audio source the transport polls. Its concrete
// wiring (internal/webrtcsignal) Opus-encodes every returned frame onto a
// pion TrackLocalStaticSample.
type Track interface {
	// Recv returns the next frame to play, pacing itself to real time.
	Recv(ctx context.Context) (audioframe.Frame, error)
}

// Player is the response player.
type Player struct {
	logger commons.Logger
	audio  config.AudioConfig

	mu              sync.Mutex
	fifo            [][]int16 // planar, one slice per channel; samples queued but not yet played
	producedSamples int64     // running count of samples emitted by Recv, used as pts
	startWall       time.Time
	started         bool
	flushed         chan struct{} // closed when the FIFO has drained to silence; replaced on each write
	closed          bool
	closedCh        chan struct{} // closed once, by Close; never replaced
}

// New constructs a Player for the given fixed audio contract.
func New(logger commons.Logger, audio config.AudioConfig) *Player {
	flushed := make(chan struct{})
	close(flushed) // nothing queued yet: start in the flushed state
	fifo := make([][]int16, audio.Channels())
	return &Player{
		logger:   logger,
		audio:    audio,
		fifo:     fifo,
		flushed:  flushed,
		closedCh: make(chan struct{}),
	}
}

// Audio returns the outbound track object to register with the peer
// connection.
func (p *Player) Audio() Track { return p }

// SendUtterance writes frame to the internal FIFO and returns once it has
// been fully drained (observed as silence by Recv), i.e. once the peer has
// received it. frame.Rate() must equal the session's configured rate.
func (p *Player) SendUtterance(ctx context.Context, frame audioframe.Frame) error {
	if frame.Rate() != p.audio.SampleRate {
		return fmt.Errorf("player: SendUtterance: frame rate %d does not match configured rate %d", frame.Rate(), p.audio.SampleRate)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("player: SendUtterance: %w", voiceerr.ErrDisconnected)
	}
	for c, plane := range frame.Planes() {
		if c < len(p.fifo) {
			p.fifo[c] = append(p.fifo[c], plane...)
		}
	}
	// Clear the flushed event: there is now unplayed audio queued.
	p.flushed = make(chan struct{})
	wait := p.flushed
	p.mu.Unlock()

	timeout := frame.Duration() + 5*time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wait:
		return nil
	case <-p.closedCh:
		return fmt.Errorf("player: SendUtterance: %w", voiceerr.ErrDisconnected)
	case <-ctx.Done():
		return fmt.Errorf("player: SendUtterance: %w", voiceerr.ErrDisconnected)
	case <-timer.C:
		return fmt.Errorf("player: SendUtterance: %w", voiceerr.ErrTimeout)
	}
}

// Close marks the player disconnected; any SendUtterance waiting on a
// drain unblocks with ErrDisconnected.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.closedCh)
}

// Recv implements the Track Recv() contract: return one FRAME_SIZE
// frame, paced to real time, falling back to silence (and signalling
// "flushed") when the FIFO underruns.
func (p *Player) Recv(ctx context.Context) (audioframe.Frame, error) {
	frame := p.nextFrame()

	p.mu.Lock()
	if !p.started {
		p.startWall = time.Now()
		p.started = true
	}
	start := p.startWall
	p.mu.Unlock()

	targetWall := start.Add(frame.StartTime())
	const lookAhead = 100 * time.Millisecond
	sleepUntil := targetWall.Add(-lookAhead)
	if d := time.Until(sleepUntil); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return audioframe.Frame{}, fmt.Errorf("player: Recv: %w", voiceerr.ErrDisconnected)
		}
	}
	return frame, nil
}

// nextFrame pulls FRAME_SIZE samples off the FIFO, or builds a silent
// frame and discards any partial fragment left behind, signalling
// "flushed" atomically with that discard so a concurrent SendUtterance
// can never observe a flush meant for data it hasn't written yet.
func (p *Player) nextFrame() audioframe.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameSize := p.audio.FrameSize
	pts := p.producedSamples

	if len(p.fifo) > 0 && len(p.fifo[0]) >= frameSize {
		planes := make([][]int16, len(p.fifo))
		for c := range p.fifo {
			planes[c] = append([]int16(nil), p.fifo[c][:frameSize]...)
			p.fifo[c] = p.fifo[c][frameSize:]
		}
		p.producedSamples += int64(frameSize)
		return audioframe.New(p.audio.AudioFormat(), p.audio.AudioLayout(), p.audio.SampleRate, planes, pts)
	}

	// Underrun: discard any partial fragment, return silence, signal flushed.
	for c := range p.fifo {
		p.fifo[c] = p.fifo[c][:0]
	}
	p.producedSamples += int64(frameSize)
	if !p.closed {
		select {
		case <-p.flushed: // already set; stays set until the next write
		default:
			close(p.flushed)
		}
	}
	return audioframe.Silent(p.audio.AudioFormat(), p.audio.AudioLayout(), p.audio.SampleRate, frameSize, pts)
}
