package adapters

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/moshi-labs/moshi-voice/internal/audioframe"
)

// pcmToWav wraps a frame's interleaved int16 samples in a minimal WAV
// header so REST-style transcription APIs (which expect a self-describing
// audio blob, not a raw PCM stream) can consume it directly.
func pcmToWav(f audioframe.Frame) io.Reader {
	channels := f.Channels()
	rate := f.Rate()
	sampleCount := f.SampleCount()
	dataSize := sampleCount * channels * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	byteRate := rate * channels * 2
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	blockAlign := channels * 2
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	planes := f.Planes()
	for i := 0; i < sampleCount; i++ {
		for c := 0; c < channels; c++ {
			binary.Write(&buf, binary.LittleEndian, planes[c][i])
		}
	}
	return &buf
}
