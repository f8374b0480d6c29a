package adapters

import (
	"context"
	"fmt"
)

// StaticVoiceDirectory is a small static table keyed by language code.
// It selects a voice by language alone, without a network round trip;
// the gender and model arguments are not consulted.
type StaticVoiceDirectory struct {
	voices map[string]string
}

// NewStaticVoiceDirectory builds a VoiceDirectory from a language-code to
// voice-descriptor table, falling back to DefaultVoice for an unlisted
// language.
func NewStaticVoiceDirectory(voices map[string]string) *StaticVoiceDirectory {
	table := map[string]string{
		DefaultLanguageCode: DefaultVoice,
		"es-ES":             "es-ES-Neural2-A",
		"fr-FR":             "fr-FR-Neural2-A",
		"de-DE":             "de-DE-Neural2-A",
		"ja-JP":             "ja-JP-Neural2-B",
	}
	for k, v := range voices {
		table[k] = v
	}
	return &StaticVoiceDirectory{voices: table}
}

func (d *StaticVoiceDirectory) SelectVoice(ctx context.Context, language, gender, model string) (string, error) {
	if language == "" {
		return "", fmt.Errorf("adapters: SelectVoice: empty language")
	}
	if v, ok := d.voices[language]; ok {
		return v, nil
	}
	return DefaultVoice, nil
}
