// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package orchestrator implements the session orchestrator: the
// per-connection task that sequences detection, transcription, LLM
// completion, synthesis and playback, coordinates data-channel signalling,
// and enforces per-turn and per-session limits.
//
// The owned-context lifecycle (Start launches a goroutine derived from
// context.Background; Stop cancels it and awaits exit) follows the same
// lifecycle idiom used by the detector and player.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moshi-labs/moshi-voice/internal/adapters"
	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/config"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
	"github.com/moshi-labs/moshi-voice/internal/telemetry"
	"github.com/moshi-labs/moshi-voice/internal/voiceerr"
)

// UtteranceSource is the subset of the detector the orchestrator depends
// on.
type UtteranceSource interface {
	GetUtterance(ctx context.Context) (audioframe.Frame, error)
}

// PlayerSink is the subset of the response player the orchestrator
// depends on.
type PlayerSink interface {
	SendUtterance(ctx context.Context, frame audioframe.Frame) error
}

// DataChannel matches pion's *webrtc.DataChannel.SendText signature
// directly, so the concrete type can be passed to AttachDataChannel with
// no adapter shim.
type DataChannel interface {
	SendText(s string) error
}

// DisconnectReason records why a session ended, threaded into Stop's
// structured log fields (not the wire protocol, which stays the
// status/error line protocol below).
type DisconnectReason string

const (
	ReasonNormal           DisconnectReason = "normal"
	ReasonClientDisconnect DisconnectReason = "client_disconnect"
	ReasonConnectionFailed DisconnectReason = "connection_failed"
	ReasonContextCancelled DisconnectReason = "context_cancelled"
)

// Status tokens of the data-channel line protocol.
const (
	statusHello        = "hello"
	statusLoopStart    = "loopstart"
	statusListening    = "listening"
	statusTranscribing = "transcribing"
	statusThinking     = "thinking"
	statusSpeaking     = "speaking"
	statusMaxLen       = "maxlen"
	statusStop         = "stop"
	statusBye          = "bye"
)

// Error tokens of the data-channel line protocol.
const (
	errUtteranceTooLong = "utttoolong"
	errUserNotSpeaking  = "usrNotSpeaking"
	errInternal         = "internal"
)

// Deps bundles every collaborator the orchestrator needs, all depended on
// through narrow interfaces so tests can substitute fakes.
type Deps struct {
	Detector    UtteranceSource
	Player      PlayerSink
	Transcriber adapters.Transcriber
	Completer   adapters.Completer
	Synthesiser adapters.Synthesiser
	LangDetect  adapters.LanguageDetector
	VoiceDir    adapters.VoiceDirectory
	Store       adapters.TranscriptStore
	Activity    conversation.Activity
	// Metrics is optional; a nil Metrics leaves session/turn recording
	// as a no-op, which is what every orchestrator test relies on.
	Metrics *telemetry.Metrics
}

// Orchestrator is the per-connection state machine.
type Orchestrator struct {
	logger    commons.Logger
	cfg       config.OrchestratorConfig
	deps      Deps
	userID    string
	sessionID string

	mu       sync.Mutex
	dc       DataChannel
	dcGate   chan struct{}
	dcOnce   sync.Once
	started  bool
	stopped  bool
	runCtx   context.Context
	runStop  context.CancelFunc
	mainDone chan struct{}

	transcript         conversation.Transcript
	character          *conversation.Character
	consecutiveSilence int
	loopCount          int
}

// New constructs an Orchestrator bound to one session's collaborators.
// sessionID is generated once by the caller (see cmd/moshi-server's
// newCallSession) so it can scope every component's logger identically,
// not just the orchestrator's. If deps.Activity is nil,
// conversation.Unstructured is used.
func New(logger commons.Logger, cfg config.OrchestratorConfig, sessionID, userID string, deps Deps) *Orchestrator {
	if deps.Activity == nil {
		deps.Activity = conversation.Unstructured
	}
	return &Orchestrator{
		logger:    logger,
		cfg:       cfg,
		deps:      deps,
		userID:    userID,
		sessionID: sessionID,
		dcGate:    make(chan struct{}),
	}
}

// AttachDataChannel stores the session's one signalling data channel and
// releases the connected gate. A second call is logged and ignored.
func (o *Orchestrator) AttachDataChannel(dc DataChannel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dc != nil {
		o.logger.Warnf("orchestrator: AttachDataChannel called again, ignoring")
		return
	}
	o.dc = dc
	o.dcOnce.Do(func() { close(o.dcGate) })
}

// WaitConnected blocks until AttachDataChannel has been called or ctx is
// done.
func (o *Orchestrator) WaitConnected(ctx context.Context) error {
	select {
	case <-o.dcGate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start is idempotent: it launches the main task, which waits for the
// data channel and then drives the turn loop.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.runCtx, o.runStop = context.WithCancel(context.Background())
	o.mainDone = make(chan struct{})
	o.transcript = conversation.New(o.deps.Activity, o.sessionID, o.userID, time.Now())
	o.mu.Unlock()

	if o.deps.Metrics != nil {
		o.deps.Metrics.SessionsStarted.Add(context.Background(), 1)
	}

	go o.run()
	return nil
}

// Stop is safe to call from any state: it cancels the main task and
// awaits its exit. The transcript is saved by the main task itself,
// fire-and-forget, as it unwinds.
func (o *Orchestrator) Stop(reason DisconnectReason) {
	o.mu.Lock()
	if o.stopped || !o.started {
		o.stopped = true
		o.mu.Unlock()
		return
	}
	o.stopped = true
	cancel := o.runStop
	done := o.mainDone
	o.mu.Unlock()

	o.sendStatus(statusStop)
	o.logger.Infow("orchestrator: stopping", "reason", reason)
	cancel()
	<-done
}

func (o *Orchestrator) run() {
	defer func() {
		o.sendStatus(statusBye)
		transcript := o.snapshotTranscript()
		go func() {
			if err := o.deps.Store.Save(context.Background(), transcript); err != nil {
				o.logger.Warnw("orchestrator: transcript save failed", "err", err)
			}
		}()
		close(o.mainDone)
	}()

	connectCtx, cancel := context.WithTimeout(o.runCtx, o.cfg.ConnectionTimeout)
	err := o.WaitConnected(connectCtx)
	cancel()
	if err != nil {
		o.logger.Warnf("orchestrator: no data channel attached within timeout, ending session")
		return
	}

	o.sendStatus(statusHello)
	o.loopTurns()
}

func (o *Orchestrator) loopTurns() {
	for {
		if o.runCtx.Err() != nil {
			return
		}

		o.loopCount++
		if o.cfg.MaxLoops > 0 && o.loopCount > o.cfg.MaxLoops {
			o.sendStatus(statusMaxLen)
			return
		}
		o.sendStatus(statusLoopStart)

		turnStart := time.Now()
		ok := o.turn()
		if o.deps.Metrics != nil {
			o.deps.Metrics.TurnDuration.Record(context.Background(), time.Since(turnStart).Seconds())
		}
		if !ok {
			return
		}
	}
}

// turn runs one iteration of the turn loop: listen, transcribe, pin the
// character on the first turn, complete, synthesise, play. It returns
// false when the loop should end.
func (o *Orchestrator) turn() bool {
	ctx := o.runCtx

	o.sendStatus(statusListening)
	utterance, err := o.deps.Detector.GetUtterance(ctx)
	if err != nil {
		switch {
		case errors.Is(err, voiceerr.ErrUtteranceTooLong):
			o.sendError(errUtteranceTooLong)
			return true
		case errors.Is(err, voiceerr.ErrTimeout):
			o.consecutiveSilence++
			if o.consecutiveSilence >= o.cfg.UtteranceStartMaxCount {
				o.sendError(errUserNotSpeaking)
				return false
			}
			o.speakPrompt(ctx, "Are you still there?")
			return true
		case errors.Is(err, voiceerr.ErrDisconnected):
			return false
		default:
			o.logger.Errorw("orchestrator: unexpected detector error", "err", err)
			o.sendError(errInternal)
			return false
		}
	}
	o.consecutiveSilence = 0

	o.sendStatus(statusTranscribing)
	sttCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	text, err := o.deps.Transcriber.Transcribe(sttCtx, utterance)
	cancel()
	if err != nil {
		o.logger.Errorw("orchestrator: transcription failed", "err", err)
		o.sendError(errInternal)
		return false
	}
	o.transcript.Append(conversation.RoleUser, text)
	o.sendTranscript(conversation.RoleUser, text)

	if o.character == nil {
		if !o.pinCharacter(ctx, text) {
			return false
		}
	}

	o.sendStatus(statusThinking)
	completeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	reply, finishReason, err := o.deps.Completer.Complete(completeCtx, o.transcript.Messages, adapters.CompleteOptions{
		N:         1,
		MaxTokens: o.cfg.MaxResponseTokens,
		Stop:      []string{"user:"},
	})
	cancel()
	if err != nil {
		o.logger.Errorw("orchestrator: completion failed", "err", err)
		o.sendError(errInternal)
		return false
	}
	if finishReason != "" && finishReason != "stop" {
		o.logger.Warnw("orchestrator: completion finished for a reason other than stop", "finish_reason", finishReason)
	}
	if reply == "" {
		o.logger.Warnf("orchestrator: completion returned empty text, ending session")
		o.sendError(errUserNotSpeaking)
		return false
	}
	o.transcript.Append(conversation.RoleAssistant, reply)
	o.sendTranscript(conversation.RoleAssistant, reply)

	o.sendStatus(statusSpeaking)
	frame, err := o.synthesise(ctx, reply)
	if err != nil {
		o.logger.Infow("orchestrator: synthesis ended the session", "err", err)
		return false
	}
	if err := o.deps.Player.SendUtterance(ctx, frame); err != nil {
		o.logger.Infow("orchestrator: SendUtterance ended the session", "err", err)
		return false
	}
	return true
}

// pinCharacter runs on the first turn only: detect language and select a
// voice, then construct the Character. Subsequent turns reuse it
// untouched.
func (o *Orchestrator) pinCharacter(ctx context.Context, text string) bool {
	detectCtx, cancel := context.WithTimeout(ctx, adapters.VoiceSelectionTimeout)
	lang, err := o.deps.LangDetect.DetectLanguage(detectCtx, text)
	cancel()
	if err != nil {
		o.logger.Errorw("orchestrator: language detection failed", "err", err)
		o.sendError(errInternal)
		return false
	}

	voiceCtx, cancel := context.WithTimeout(ctx, adapters.VoiceSelectionTimeout)
	voice, err := o.deps.VoiceDir.SelectVoice(voiceCtx, lang, "default", "Standard")
	cancel()
	if err != nil {
		o.logger.Errorw("orchestrator: voice selection failed", "err", err)
		o.sendError(errInternal)
		return false
	}

	o.character = &conversation.Character{VoiceDescriptor: voice, LanguageCode: lang}
	o.transcript.Language = lang
	return true
}

func (o *Orchestrator) synthesise(ctx context.Context, text string) (audioframe.Frame, error) {
	synthCtx, cancel := context.WithTimeout(ctx, adapters.SynthesisTimeout)
	defer cancel()
	voice := ""
	if o.character != nil {
		voice = o.character.VoiceDescriptor
	}
	return o.deps.Synthesiser.Synthesise(synthCtx, text, voice)
}

// speakPrompt synthesises and plays a short re-prompt after a Timeout in
// WaitingForSpeech, so a silent user is nudged rather than disconnected.
// Failures here are logged but do not end the session; the next loop
// iteration's GetUtterance will surface any real transport failure.
func (o *Orchestrator) speakPrompt(ctx context.Context, text string) {
	frame, err := o.synthesise(ctx, text)
	if err != nil {
		o.logger.Warnw("orchestrator: prompt synthesis failed", "err", err)
		return
	}
	if err := o.deps.Player.SendUtterance(ctx, frame); err != nil {
		o.logger.Warnw("orchestrator: prompt playback failed", "err", err)
	}
}

func (o *Orchestrator) snapshotTranscript() conversation.Transcript {
	return o.transcript
}

// sendStatus, sendTranscript and sendError send best-effort: a send
// before channel attachment is dropped with a warning, and the
// orchestrator never awaits a send. SendText is already non-blocking
// under pion, so there is nothing to select on here.
func (o *Orchestrator) sendStatus(token string) {
	o.send(fmt.Sprintf("status %s", token))
}

func (o *Orchestrator) sendTranscript(role conversation.Role, content string) {
	o.send(fmt.Sprintf("transcript %s %s", role, content))
}

func (o *Orchestrator) sendError(token string) {
	o.send(fmt.Sprintf("error %s", token))
}

func (o *Orchestrator) send(line string) {
	o.mu.Lock()
	dc := o.dc
	o.mu.Unlock()

	if dc == nil {
		o.logger.Warnw("orchestrator: dropping data-channel message, no channel attached yet", "line", line)
		return
	}
	if err := dc.SendText(line); err != nil {
		o.logger.Warnw("orchestrator: data-channel send failed", "line", line, "err", err)
	}
}
