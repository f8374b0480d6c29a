// Package config loads the process's environment-driven knobs into
// immutable, typed structs. Provider credentials and model names are not
// part of Config; cmd/moshi-server reads those from the environment itself.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
)

// AudioConfig is the fixed audio contract shared by the detector, the
// player and the WebRTC transport: 48000 Hz, s16, stereo, 960-sample
// (20ms) frames are the locked defaults; MOSHIFRAMESIZE may move the
// frame size within [128, 4096].
type AudioConfig struct {
	SampleRate int    // MOSHISAMPLERATE
	Format     string // MOSHIAUDIOFORMAT ("s16")
	Layout     string // MOSHIAUDIOLAYOUT ("stereo")
	FrameSize  int    // MOSHIFRAMESIZE, samples per outbound frame
}

// Channels reports the channel count implied by Layout ("mono" or "stereo").
func (a AudioConfig) Channels() int {
	return a.AudioLayout().Channels()
}

// AudioFormat maps the configured format string onto audioframe.Format.
func (a AudioConfig) AudioFormat() audioframe.Format {
	return audioframe.FormatS16
}

// AudioLayout maps the configured layout string onto audioframe.Layout.
func (a AudioConfig) AudioLayout() audioframe.Layout {
	if a.Layout == "mono" {
		return audioframe.LayoutMono
	}
	return audioframe.LayoutStereo
}

// ListeningConfig holds the utterance detector's timing and threshold knobs.
type ListeningConfig struct {
	AmbientNoiseMeasurement   time.Duration
	UtteranceStartTimeout     time.Duration
	UtteranceStartSpeaking    time.Duration
	SilenceDetectionIgnoreSpike time.Duration
	UtteranceEndSilence       time.Duration
	UtteranceLengthMin        time.Duration
	UtteranceTimeout          time.Duration
	BackgroundEnergyFloor     float64
}

// OrchestratorConfig holds the session turn-loop's knobs.
type OrchestratorConfig struct {
	MaxLoops             int           // MOSHIMAXLOOPS, 0 = unlimited
	UtteranceStartMaxCount int
	MaxResponseTokens    int
	ConnectionTimeout    time.Duration // MOSHICONNECTIONTIMEOUT
	SendUtteranceSlack   time.Duration // not read by the player, whose SendUtterance timeout is frame duration plus a fixed 5s
}

// ProvidersConfig selects which concrete adapter implementation backs
// each external-service interface. Transcriber is one of "google" or
// "deepgram"; Completer is one of "openai", "anthropic" or
// "completion_style".
type ProvidersConfig struct {
	Transcriber string // MOSHI_STT_PROVIDER
	Completer   string // MOSHI_LLM_PROVIDER
}

// Config is the top-level, validated configuration for one process.
type Config struct {
	Audio        AudioConfig
	Listening    ListeningConfig
	Orchestrator OrchestratorConfig
	Providers    ProvidersConfig

	HTTPAddr string
	CertFile string
	KeyFile  string

	LogDevelopment bool
	LogFilePath    string
}

// Load reads "MOSHI"-prefixed environment variables into a validated
// Config: the audio-contract and loop knobs as MOSHI<NAME> (e.g.
// MOSHIFRAMESIZE), every other key as MOSHI_<NAME> (e.g. MOSHI_HTTP_ADDR).
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MOSHI")
	v.AutomaticEnv()
	// The audio-contract and loop knobs use unseparated MOSHI<NAME> names.
	for _, key := range []string{"SAMPLERATE", "AUDIOFORMAT", "AUDIOLAYOUT", "FRAMESIZE", "MAXLOOPS", "CONNECTIONTIMEOUT"} {
		_ = v.BindEnv(key, "MOSHI"+key)
	}

	v.SetDefault("SAMPLERATE", 48000)
	v.SetDefault("AUDIOFORMAT", "s16")
	v.SetDefault("AUDIOLAYOUT", "stereo")
	v.SetDefault("FRAMESIZE", 960)
	v.SetDefault("MAXLOOPS", 30)
	v.SetDefault("CONNECTIONTIMEOUT", 5)

	v.SetDefault("AMBIENT_NOISE_MEASUREMENT_MS", 2300)
	v.SetDefault("UTTERANCE_START_TIMEOUT_MS", 8000)
	v.SetDefault("UTTERANCE_START_SPEAKING_MS", 500)
	v.SetDefault("SILENCE_IGNORE_SPIKE_MS", 50)
	v.SetDefault("UTTERANCE_END_SILENCE_MS", 1500)
	v.SetDefault("UTTERANCE_LENGTH_MIN_MS", 800)
	v.SetDefault("UTTERANCE_TIMEOUT_MS", 20000)
	v.SetDefault("BACKGROUND_ENERGY_FLOOR", 30.0)

	v.SetDefault("UTTERANCE_START_MAX_COUNT", 2)
	v.SetDefault("MAX_RESPONSE_TOKENS", 64)
	v.SetDefault("SEND_UTTERANCE_SLACK_S", 5)

	v.SetDefault("STT_PROVIDER", "google")
	v.SetDefault("LLM_PROVIDER", "openai")

	v.SetDefault("HTTP_ADDR", ":8443")
	v.SetDefault("CERT_FILE", "")
	v.SetDefault("KEY_FILE", "")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("LOG_FILE", "")

	frameSize := v.GetInt("FRAMESIZE")
	if frameSize < 128 || frameSize > 4096 {
		return Config{}, fmt.Errorf("config: MOSHIFRAMESIZE=%d out of bounds [128,4096]", frameSize)
	}

	cfg := Config{
		Audio: AudioConfig{
			SampleRate: v.GetInt("SAMPLERATE"),
			Format:     v.GetString("AUDIOFORMAT"),
			Layout:     v.GetString("AUDIOLAYOUT"),
			FrameSize:  frameSize,
		},
		Listening: ListeningConfig{
			AmbientNoiseMeasurement:     time.Duration(v.GetInt("AMBIENT_NOISE_MEASUREMENT_MS")) * time.Millisecond,
			UtteranceStartTimeout:       time.Duration(v.GetInt("UTTERANCE_START_TIMEOUT_MS")) * time.Millisecond,
			UtteranceStartSpeaking:      time.Duration(v.GetInt("UTTERANCE_START_SPEAKING_MS")) * time.Millisecond,
			SilenceDetectionIgnoreSpike: time.Duration(v.GetInt("SILENCE_IGNORE_SPIKE_MS")) * time.Millisecond,
			UtteranceEndSilence:         time.Duration(v.GetInt("UTTERANCE_END_SILENCE_MS")) * time.Millisecond,
			UtteranceLengthMin:          time.Duration(v.GetInt("UTTERANCE_LENGTH_MIN_MS")) * time.Millisecond,
			UtteranceTimeout:            time.Duration(v.GetInt("UTTERANCE_TIMEOUT_MS")) * time.Millisecond,
			BackgroundEnergyFloor:       v.GetFloat64("BACKGROUND_ENERGY_FLOOR"),
		},
		Providers: ProvidersConfig{
			Transcriber: v.GetString("STT_PROVIDER"),
			Completer:   v.GetString("LLM_PROVIDER"),
		},
		Orchestrator: OrchestratorConfig{
			MaxLoops:               v.GetInt("MAXLOOPS"),
			UtteranceStartMaxCount: v.GetInt("UTTERANCE_START_MAX_COUNT"),
			MaxResponseTokens:      v.GetInt("MAX_RESPONSE_TOKENS"),
			ConnectionTimeout:      time.Duration(v.GetInt("CONNECTIONTIMEOUT")) * time.Second,
			SendUtteranceSlack:     time.Duration(v.GetInt("SEND_UTTERANCE_SLACK_S")) * time.Second,
		},
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		CertFile:       v.GetString("CERT_FILE"),
		KeyFile:        v.GetString("KEY_FILE"),
		LogDevelopment: v.GetBool("LOG_DEVELOPMENT"),
		LogFilePath:    v.GetString("LOG_FILE"),
	}
	return cfg, nil
}
