// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package webrtcsignal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/detector"
	"github.com/moshi-labs/moshi-voice/internal/orchestrator"
	"github.com/moshi-labs/moshi-voice/internal/player"
)

// pingpongLabel is the optional echo data channel.
const pingpongLabel = "pingpong"

// ICEServer is one STUN/TURN server entry for a peer connection.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config holds the ICE configuration for new peer connections.
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"
}

// DefaultConfig returns a pair of public Google STUN servers.
func DefaultConfig() Config {
	return Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
	}
}

// Session owns one PeerConnection and wires it to one Orchestrator, one
// Detector and one Player via the on_track/on_datachannel/
// on_connectionstatechange callbacks.
type Session struct {
	logger commons.Logger
	cfg    Config

	detector *detector.Detector
	player   *player.Player
	orch     *orchestrator.Orchestrator

	mu      sync.Mutex
	pc      *pionwebrtc.PeerConnection
	started bool

	pumpCtx    context.Context
	pumpCancel context.CancelFunc
}

// NewSession constructs a Session. The PeerConnection itself is created
// lazily by Offer, since pion requires the media engine to be configured
// before any track or data channel exists.
func NewSession(logger commons.Logger, cfg Config, det *detector.Detector, p *player.Player, orch *orchestrator.Orchestrator) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{logger: logger, cfg: cfg, detector: det, player: p, orch: orch, pumpCtx: ctx, pumpCancel: cancel}
}

// Offer creates a PeerConnection for the given client SDP offer, wires
// its callbacks, and returns the SDP answer.
func (s *Session) Offer(offerSDP string) (answerSDP string, err error) {
	pc, err := s.newPeerConnection()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	s.wireHandlers(pc)

	if err := pc.SetRemoteDescription(pionwebrtc.SessionDescription{
		Type: pionwebrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		return "", fmt.Errorf("webrtcsignal: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("webrtcsignal: create answer: %w", err)
	}
	gatherComplete := pionwebrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("webrtcsignal: set local description: %w", err)
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("webrtcsignal: local description not set after gathering")
	}
	return local.SDP, nil
}

func (s *Session) newPeerConnection() (*pionwebrtc.PeerConnection, error) {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   audioframe.OpusSampleRate,
			Channels:    audioframe.OpusChannels,
			SDPFmtpLine: audioframe.OpusSDPFmtpLine,
		},
		PayloadType: audioframe.OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("webrtcsignal: register opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("webrtcsignal: register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]pionwebrtc.ICEServer, len(s.cfg.ICEServers))
	for i, srv := range s.cfg.ICEServers {
		iceServers[i] = pionwebrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}
	pcConfig := pionwebrtc.Configuration{ICEServers: iceServers}
	if s.cfg.ICETransportPolicy == "relay" {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, fmt.Errorf("webrtcsignal: new peer connection: %w", err)
	}
	return pc, nil
}

// wireHandlers attaches the three connection callbacks.
func (s *Session) wireHandlers(pc *pionwebrtc.PeerConnection) {
	// The player only exposes a paced Recv() source (player.Track); pion
	// needs a concrete TrackLocal to add to the connection, so a local
	// track is built here and pumpOutbound bridges the two.
	outTrack, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeOpus,
			ClockRate: audioframe.OpusSampleRate,
			Channels:  audioframe.OpusChannels,
		},
		"audio",
		"moshi-voice",
	)
	if err != nil {
		s.logger.Errorw("webrtcsignal: failed to create local audio track", "err", err)
		return
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		s.logger.Errorw("webrtcsignal: failed to add local audio track", "err", err)
		return
	}
	go s.pumpOutbound(outTrack)

	pc.OnTrack(func(remote *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		if remote.Kind() != pionwebrtc.RTPCodecTypeAudio {
			return
		}
		s.logger.Infow("webrtcsignal: remote audio track received", "codec", remote.Codec().MimeType)
		rt, err := newRemoteAudioTrack(s.logger, remote)
		if err != nil {
			s.logger.Errorw("webrtcsignal: failed to build remote audio track", "err", err)
			return
		}
		if err := s.detector.SetTrack(rt); err != nil {
			s.logger.Errorw("webrtcsignal: SetTrack failed", "err", err)
		}
	})

	pc.OnDataChannel(func(dc *pionwebrtc.DataChannel) {
		if strings.EqualFold(dc.Label(), pingpongLabel) {
			wirePingPong(dc)
			return
		}
		s.orch.AttachDataChannel(dc)
	})

	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		s.logger.Infow("webrtcsignal: connection state changed", "state", state.String())
		switch state {
		case pionwebrtc.PeerConnectionStateConnecting:
			s.mu.Lock()
			started := s.started
			s.started = true
			s.mu.Unlock()
			if !started {
				if err := s.detector.Start(); err != nil {
					s.logger.Errorw("webrtcsignal: detector Start failed", "err", err)
				}
				if err := s.orch.Start(); err != nil {
					s.logger.Errorw("webrtcsignal: orchestrator Start failed", "err", err)
				}
			}
		case pionwebrtc.PeerConnectionStateFailed:
			s.logger.Warnw("webrtcsignal: connection failed, closing session")
			s.Close(orchestrator.ReasonConnectionFailed)
		case pionwebrtc.PeerConnectionStateClosed:
			s.Close(orchestrator.ReasonClientDisconnect)
		}
	})
}

// pumpOutbound polls the player's paced Track and Opus-encodes each
// frame onto the local WebRTC track. Pacing itself lives in
// player.Recv, so this loop is a tight poll-encode-write.
func (s *Session) pumpOutbound(local *pionwebrtc.TrackLocalStaticSample) {
	enc, err := newOpusEncoder()
	if err != nil {
		s.logger.Errorw("webrtcsignal: failed to create opus encoder", "err", err)
		return
	}
	track := s.player.Audio()
	for {
		frame, err := track.Recv(s.pumpCtx)
		if err != nil {
			return
		}
		encoded, err := enc.Encode(frame)
		if err != nil {
			s.logger.Debugf("webrtcsignal: opus encode failed: %v", err)
			continue
		}
		if err := local.WriteSample(media.Sample{
			Data:     encoded,
			Duration: frame.Duration(),
		}); err != nil {
			s.logger.Debugf("webrtcsignal: write sample failed: %v", err)
		}
	}
}

// wirePingPong implements the optional pingpong channel echo.
func wirePingPong(dc *pionwebrtc.DataChannel) {
	dc.OnMessage(func(msg pionwebrtc.DataChannelMessage) {
		text := string(msg.Data)
		if strings.HasPrefix(text, "ping ") {
			_ = dc.SendText("pong " + strings.TrimPrefix(text, "ping "))
		}
	})
}

// Close tears down the peer connection and stops the detector and
// orchestrator, threading reason into the orchestrator's structured logs.
func (s *Session) Close(reason orchestrator.DisconnectReason) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()

	s.pumpCancel()
	s.detector.Stop()
	s.player.Close()
	s.orch.Stop(reason)
	if pc != nil {
		_ = pc.Close()
	}
}
