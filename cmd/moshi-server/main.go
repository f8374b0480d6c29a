// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/texttospeech/apiv1"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/moshi-labs/moshi-voice/api/signalling"
	"github.com/moshi-labs/moshi-voice/internal/adapters"
	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/config"
	"github.com/moshi-labs/moshi-voice/internal/detector"
	"github.com/moshi-labs/moshi-voice/internal/orchestrator"
	"github.com/moshi-labs/moshi-voice/internal/player"
	"github.com/moshi-labs/moshi-voice/internal/telemetry"
	"github.com/moshi-labs/moshi-voice/internal/webrtcsignal"
)

func main() {
	host := pflag.String("host", "", "bind host")
	port := pflag.Int("port", 8443, "bind port")
	certFile := pflag.String("cert-file", "", "TLS certificate file (development)")
	keyFile := pflag.String("key-file", "", "TLS key file (development)")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshi-server: config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTPAddr = fmt.Sprintf("%s:%d", *host, *port)
	}
	if *certFile != "" {
		cfg.CertFile = *certFile
	}
	if *keyFile != "" {
		cfg.KeyFile = *keyFile
	}

	logger, err := commons.New(commons.Options{
		Development: cfg.LogDevelopment,
		LogFilePath: cfg.LogFilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "moshi-server: logger: %v\n", err)
		os.Exit(1)
	}

	adapterSet, cleanup, err := buildAdapters(context.Background(), logger, cfg.Providers)
	if err != nil {
		logger.Errorf("moshi-server: failed to build adapters: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	metrics, metricsShutdown, err := telemetry.InitProvider(context.Background(), "moshi-voice")
	if err != nil {
		logger.Errorf("moshi-server: failed to init telemetry: %v", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			logger.Warnf("moshi-server: telemetry shutdown: %v", err)
		}
	}()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	newCall := func() signalling.Caller {
		return newCallSession(logger, cfg, adapterSet, metrics)
	}
	handler := signalling.New(logger, newCall)
	handler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("moshi-server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("moshi-server: shutdown error", "err", err)
		}
	}()

	logger.Infow("moshi-server: listening", "addr", cfg.HTTPAddr)
	var serveErr error
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		serveErr = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		serveErr = srv.ListenAndServe()
	}
	if serveErr != nil && serveErr != http.ErrServerClosed {
		logger.Errorf("moshi-server: serve error: %v", serveErr)
		os.Exit(1)
	}
}

// adapterSet bundles the collaborators shared across every session; only
// the detector, player and orchestrator are rebuilt per call.
type adapterSet struct {
	transcriber adapters.Transcriber
	completer   adapters.Completer
	synthesiser adapters.Synthesiser
	langDetect  adapters.LanguageDetector
	voiceDir    adapters.VoiceDirectory
	store       adapters.TranscriptStore
}

// buildAdapters wires the external-service collaborators from environment
// credentials. The two Google Cloud clients are independent of each
// other, so they are built concurrently with an errgroup rather than one
// after another. A failure to build either cloud client, or an unknown
// provider name, is returned as an error; API keys are not checked here,
// so an empty key only surfaces when the first request is made.
func buildAdapters(ctx context.Context, logger commons.Logger, providers config.ProvidersConfig) (adapterSet, func(), error) {
	var speechClient *speech.Client
	var ttsClient *texttospeech.Client

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		speechClient, err = speech.NewClient(gctx)
		return err
	})
	g.Go(func() (err error) {
		ttsClient, err = texttospeech.NewClient(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if speechClient != nil {
			speechClient.Close()
		}
		if ttsClient != nil {
			ttsClient.Close()
		}
		return adapterSet{}, nil, fmt.Errorf("moshi-server: building cloud clients: %w", err)
	}

	googleRecognizer := envOrDefault("MOSHI_GOOGLE_RECOGNIZER", "")
	langDetect := adapters.NewGoogleTranscriber(logger, speechClient, googleRecognizer, "en-US")

	transcriber, err := buildTranscriber(logger, providers.Transcriber, speechClient, googleRecognizer)
	if err != nil {
		speechClient.Close()
		ttsClient.Close()
		return adapterSet{}, nil, err
	}
	completer, err := buildCompleter(logger, providers.Completer)
	if err != nil {
		speechClient.Close()
		ttsClient.Close()
		return adapterSet{}, nil, err
	}

	set := adapterSet{
		transcriber: transcriber,
		completer:   completer,
		synthesiser: adapters.NewGoogleSynthesiser(logger, ttsClient, 48000, audioframe.LayoutStereo),
		langDetect:  langDetect,
		voiceDir:    adapters.NewStaticVoiceDirectory(nil),
		store:       adapters.NewNoopTranscriptStore(logger),
	}
	cleanup := func() {
		speechClient.Close()
		ttsClient.Close()
	}
	return set, cleanup, nil
}

// buildTranscriber selects the Transcriber implementation named by
// provider.
func buildTranscriber(logger commons.Logger, provider string, speechClient *speech.Client, recognizer string) (adapters.Transcriber, error) {
	switch provider {
	case "", "google":
		return adapters.NewGoogleTranscriber(logger, speechClient, recognizer, "en-US"), nil
	case "deepgram":
		apiKey := os.Getenv("MOSHI_DEEPGRAM_API_KEY")
		model := envOrDefault("MOSHI_DEEPGRAM_MODEL", "nova-2")
		return adapters.NewDeepgramTranscriber(logger, apiKey, model, "en-US")
	default:
		return nil, fmt.Errorf("moshi-server: unknown MOSHI_STT_PROVIDER %q", provider)
	}
}

// buildCompleter selects the Completer implementation named by provider.
func buildCompleter(logger commons.Logger, provider string) (adapters.Completer, error) {
	switch provider {
	case "", "openai":
		apiKey := os.Getenv("MOSHI_OPENAI_API_KEY")
		model := envOrDefault("MOSHI_OPENAI_MODEL", "gpt-4o-mini")
		return adapters.NewOpenAICompleter(logger, apiKey, model), nil
	case "anthropic":
		apiKey := os.Getenv("MOSHI_ANTHROPIC_API_KEY")
		model := envOrDefault("MOSHI_ANTHROPIC_MODEL", "claude-sonnet-4-5")
		return adapters.NewAnthropicCompleter(logger, apiKey, anthropic.Model(model)), nil
	case "completion_style":
		apiKey := os.Getenv("MOSHI_OPENAI_API_KEY")
		model := envOrDefault("MOSHI_OPENAI_COMPLETION_MODEL", "gpt-3.5-turbo-instruct")
		return adapters.NewCompletionStyleCompleter(logger, apiKey, model), nil
	default:
		return nil, fmt.Errorf("moshi-server: unknown MOSHI_LLM_PROVIDER %q", provider)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newCallSession builds one fully-wired webrtcsignal.Session for a single
// incoming call: its own Detector, Player and Orchestrator sharing the
// process-wide adapter set. Every component is constructed with a logger
// scoped to this call's session_id, so its logs can be correlated across
// the detector, player and orchestrator.
func newCallSession(logger commons.Logger, cfg config.Config, set adapterSet, metrics *telemetry.Metrics) *webrtcsignal.Session {
	sessionID := uuid.NewString()
	sessionLogger := logger.With("session_id", sessionID)

	det := detector.New(sessionLogger, cfg.Listening)
	det.SetMetrics(metrics)
	p := player.New(sessionLogger, cfg.Audio)
	orch := orchestrator.New(sessionLogger, cfg.Orchestrator, sessionID, "", orchestrator.Deps{
		Detector:    det,
		Player:      p,
		Transcriber: set.transcriber,
		Completer:   set.completer,
		Synthesiser: set.synthesiser,
		LangDetect:  set.langDetect,
		VoiceDir:    set.voiceDir,
		Store:       set.store,
		Metrics:     metrics,
	})
	return webrtcsignal.NewSession(sessionLogger, webrtcsignal.DefaultConfig(), det, p, orch)
}
