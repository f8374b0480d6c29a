package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshi-labs/moshi-voice/internal/adapters"
	"github.com/moshi-labs/moshi-voice/internal/audioframe"
	"github.com/moshi-labs/moshi-voice/internal/commons"
	"github.com/moshi-labs/moshi-voice/internal/config"
	"github.com/moshi-labs/moshi-voice/internal/conversation"
	"github.com/moshi-labs/moshi-voice/internal/voiceerr"
)

func testFrame() audioframe.Frame {
	return audioframe.New(audioframe.FormatS16, audioframe.LayoutMono, 16000, [][]int16{{1, 2, 3, 4}}, 0)
}

type fakeDetector struct {
	mu      sync.Mutex
	results []any // audioframe.Frame or error
	calls   int
}

func (d *fakeDetector) push(v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, v)
}

func (d *fakeDetector) GetUtterance(ctx context.Context) (audioframe.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls >= len(d.results) {
		<-ctx.Done()
		return audioframe.Frame{}, voiceerr.ErrDisconnected
	}
	v := d.results[d.calls]
	d.calls++
	switch r := v.(type) {
	case error:
		return audioframe.Frame{}, r
	case audioframe.Frame:
		return r, nil
	default:
		panic("bad fixture")
	}
}

type fakePlayer struct {
	mu  sync.Mutex
	n   int
	err error
}

func (p *fakePlayer) SendUtterance(ctx context.Context, frame audioframe.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return p.err
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(ctx context.Context, u audioframe.Frame) (string, error) {
	return f.text, nil
}

type fakeCompleter struct{ reply string }

func (f *fakeCompleter) Complete(ctx context.Context, messages []conversation.Message, opts adapters.CompleteOptions) (string, string, error) {
	return f.reply, "stop", nil
}

type fakeSynthesiser struct{}

func (fakeSynthesiser) Synthesise(ctx context.Context, text, voice string) (audioframe.Frame, error) {
	return testFrame(), nil
}

type fakeLangDetector struct {
	lang  string
	calls int
}

func (f *fakeLangDetector) DetectLanguage(ctx context.Context, text string) (string, error) {
	f.calls++
	return f.lang, nil
}

type fakeVoiceDir struct{ voice string }

func (f *fakeVoiceDir) SelectVoice(ctx context.Context, language, gender, model string) (string, error) {
	return f.voice, nil
}

type fakeStore struct {
	mu   sync.Mutex
	saved *conversation.Transcript
}

func (s *fakeStore) Save(ctx context.Context, t conversation.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	s.saved = &cp
	return nil
}

type fakeDataChannel struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeDataChannel) SendText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, s)
	return nil
}

func (f *fakeDataChannel) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testCfg() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		MaxLoops:               3,
		UtteranceStartMaxCount: 2,
		MaxResponseTokens:      256,
		ConnectionTimeout:      200 * time.Millisecond,
		SendUtteranceSlack:     5 * time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestOrchestratorEndsOnMaxLoopsAndEmitsTokens(t *testing.T) {
	det := &fakeDetector{}
	for i := 0; i < 10; i++ {
		det.push(testFrame())
	}
	store := &fakeStore{}
	o := New(commons.NewNop(), testCfg(), "session-1", "user-1", Deps{
		Detector:    det,
		Player:      &fakePlayer{},
		Transcriber: &fakeTranscriber{text: "hello there"},
		Completer:   &fakeCompleter{reply: "hi!"},
		Synthesiser: fakeSynthesiser{},
		LangDetect:  &fakeLangDetector{lang: "en-US"},
		VoiceDir:    &fakeVoiceDir{voice: "en-US-Neural2-A"},
		Store:       store,
	})

	dc := &fakeDataChannel{}
	require.NoError(t, o.Start())
	o.AttachDataChannel(dc)

	waitFor(t, func() bool {
		lines := dc.snapshot()
		return len(lines) > 0 && lines[len(lines)-1] == "status bye"
	})

	lines := dc.snapshot()
	assert.Contains(t, lines, "status hello")
	assert.Contains(t, lines, "status maxlen")
	assert.Contains(t, lines, "status bye")

	require.NotNil(t, store.saved)
	assert.GreaterOrEqual(t, len(store.saved.Messages), 2)
}

func TestOrchestratorPinsCharacterOnlyOnFirstTurn(t *testing.T) {
	det := &fakeDetector{}
	for i := 0; i < 10; i++ {
		det.push(testFrame())
	}
	langDet := &fakeLangDetector{lang: "fr-FR"}
	o := New(commons.NewNop(), testCfg(), "session-1", "user-1", Deps{
		Detector:    det,
		Player:      &fakePlayer{},
		Transcriber: &fakeTranscriber{text: "bonjour"},
		Completer:   &fakeCompleter{reply: "salut"},
		Synthesiser: fakeSynthesiser{},
		LangDetect:  langDet,
		VoiceDir:    &fakeVoiceDir{voice: "fr-FR-Neural2-A"},
		Store:       &fakeStore{},
	})
	dc := &fakeDataChannel{}
	require.NoError(t, o.Start())
	o.AttachDataChannel(dc)

	waitFor(t, func() bool {
		lines := dc.snapshot()
		return len(lines) > 0 && lines[len(lines)-1] == "status bye"
	})

	require.NotNil(t, o.character)
	assert.Equal(t, 1, langDet.calls, "language detection must run on the first turn only")
	assert.Equal(t, "fr-FR", o.character.LanguageCode)
	assert.Equal(t, "fr-FR-Neural2-A", o.character.VoiceDescriptor)
}

func TestOrchestratorEndsOnRepeatedSilence(t *testing.T) {
	det := &fakeDetector{}
	det.push(voiceerr.ErrTimeout)
	det.push(voiceerr.ErrTimeout)
	o := New(commons.NewNop(), testCfg(), "session-1", "user-1", Deps{
		Detector:    det,
		Player:      &fakePlayer{},
		Transcriber: &fakeTranscriber{text: "n/a"},
		Completer:   &fakeCompleter{reply: "n/a"},
		Synthesiser: fakeSynthesiser{},
		LangDetect:  &fakeLangDetector{lang: "en-US"},
		VoiceDir:    &fakeVoiceDir{voice: "en-US-Neural2-A"},
		Store:       &fakeStore{},
	})
	dc := &fakeDataChannel{}
	require.NoError(t, o.Start())
	o.AttachDataChannel(dc)

	waitFor(t, func() bool {
		lines := dc.snapshot()
		return len(lines) > 0 && lines[len(lines)-1] == "status bye"
	})

	lines := dc.snapshot()
	assert.Contains(t, lines, "error usrNotSpeaking")
}

func TestOrchestratorStopIsIdempotentAndUnblocksRun(t *testing.T) {
	det := &fakeDetector{}
	o := New(commons.NewNop(), testCfg(), "session-1", "user-1", Deps{
		Detector:    det,
		Player:      &fakePlayer{},
		Transcriber: &fakeTranscriber{text: "n/a"},
		Completer:   &fakeCompleter{reply: "n/a"},
		Synthesiser: fakeSynthesiser{},
		LangDetect:  &fakeLangDetector{lang: "en-US"},
		VoiceDir:    &fakeVoiceDir{voice: "en-US-Neural2-A"},
		Store:       &fakeStore{},
	})
	require.NoError(t, o.Start())
	o.AttachDataChannel(&fakeDataChannel{})

	o.Stop(ReasonNormal)
	o.Stop(ReasonNormal) // must not hang or panic
}

func TestOrchestratorDropsMessagesBeforeAttach(t *testing.T) {
	det := &fakeDetector{}
	o := New(commons.NewNop(), testCfg(), "session-1", "user-1", Deps{
		Detector:    det,
		Player:      &fakePlayer{},
		Transcriber: &fakeTranscriber{text: "n/a"},
		Completer:   &fakeCompleter{reply: "n/a"},
		Synthesiser: fakeSynthesiser{},
		LangDetect:  &fakeLangDetector{lang: "en-US"},
		VoiceDir:    &fakeVoiceDir{voice: "en-US-Neural2-A"},
		Store:       &fakeStore{},
	})
	o.sendStatus(statusHello) // no data channel attached yet: must not panic
}
