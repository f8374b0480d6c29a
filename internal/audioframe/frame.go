// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audioframe implements the immutable PCM frame value passed
// between the detector, player and orchestrator: RMS energy, duration,
// start-time, and silent-frame construction. Every other component
// treats a Frame as an immutable value and never mutates one it did not
// just construct.
package audioframe

import (
	"fmt"
	"math"
	"time"
)

// Format is the sample format. This repository locks on signed-16 PCM;
// the type exists so a future format is a typed addition, not a silent
// reinterpretation of []int16.
type Format string

const FormatS16 Format = "s16"

// Layout is the channel layout.
type Layout string

const (
	LayoutMono   Layout = "mono"
	LayoutStereo Layout = "stereo"
)

func (l Layout) Channels() int {
	if l == LayoutMono {
		return 1
	}
	return 2
}

// Frame is an immutable audio value: format, layout, sample rate, a
// planar sample buffer (one slice per channel) and a presentation
// timestamp expressed as integer samples since track start.
//
// Invariants: Duration() == samples/rate, StartTime() == pts/rate.
// Energy is computed in float64, far wider than int16, so squaring
// never overflows.
type Frame struct {
	format Format
	layout Layout
	rate   int
	planes [][]int16 // len(planes) == layout.Channels(); all planes equal length
	pts    int64
}

// New constructs a Frame from planar samples. It panics on a plane-count
// or plane-length mismatch, since those are programmer errors, not runtime
// conditions callers recover from.
func New(format Format, layout Layout, rate int, planes [][]int16, pts int64) Frame {
	if len(planes) != layout.Channels() {
		panic(fmt.Sprintf("audioframe: New: %d planes for layout %s (want %d)", len(planes), layout, layout.Channels()))
	}
	n := 0
	if len(planes) > 0 {
		n = len(planes[0])
	}
	for i, p := range planes {
		if len(p) != n {
			panic(fmt.Sprintf("audioframe: New: plane %d has %d samples, plane 0 has %d", i, len(p), n))
		}
	}
	return Frame{format: format, layout: layout, rate: rate, planes: planes, pts: pts}
}

// Silent returns a frame of sampleCount zero-filled samples per channel,
// at the given format/layout/rate, carrying pts. Used by the response
// player whenever its FIFO underruns.
func Silent(format Format, layout Layout, rate int, sampleCount int, pts int64) Frame {
	planes := make([][]int16, layout.Channels())
	for i := range planes {
		planes[i] = make([]int16, sampleCount)
	}
	return Frame{format: format, layout: layout, rate: rate, planes: planes, pts: pts}
}

func (f Frame) Format() Format    { return f.format }
func (f Frame) Layout() Layout    { return f.layout }
func (f Frame) Rate() int         { return f.rate }
func (f Frame) PTS() int64        { return f.pts }
func (f Frame) Channels() int     { return f.layout.Channels() }
func (f Frame) Planes() [][]int16 { return f.planes }

// SampleCount is the number of samples in each plane (not samples*channels).
func (f Frame) SampleCount() int {
	if len(f.planes) == 0 {
		return 0
	}
	return len(f.planes[0])
}

// WithPTS returns a copy of f with a different presentation timestamp;
// used by the player to assign the running-sample pts sequence: pts is
// the running count of samples already produced, not a per-call
// sequential integer.
func (f Frame) WithPTS(pts int64) Frame {
	f.pts = pts
	return f
}

// Duration is samples/rate.
func (f Frame) Duration() time.Duration {
	if f.rate == 0 {
		return 0
	}
	return time.Duration(f.SampleCount()) * time.Second / time.Duration(f.rate)
}

// StartTime is pts/rate, not pts*samples/rate.
func (f Frame) StartTime() time.Duration {
	if f.rate == 0 {
		return 0
	}
	return time.Duration(f.pts) * time.Second / time.Duration(f.rate)
}

// Energy computes the RMS energy of the frame across all channel planes,
// widening to float64 before squaring so int16's range (±32768) never
// overflows.
func (f Frame) Energy() float64 {
	var sumSquares float64
	var n int
	for _, plane := range f.planes {
		for _, s := range plane {
			v := float64(s)
			sumSquares += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(n))
}

// IsZero reports whether the frame has neither a sample rate nor samples,
// as the zero Frame value returned on a failed decode does. A frame with a
// rate but no samples is not zero.
func (f Frame) IsZero() bool {
	return f.rate == 0 && f.SampleCount() == 0
}

// Concat joins frames recorded during an utterance into a single frame.
// All input frames must share format/layout/rate; the result's pts is 0,
// since the concatenated frame is re-joined rather than re-scheduled and
// so carries no meaningful individual pts.
func Concat(frames []Frame) (Frame, error) {
	if len(frames) == 0 {
		return Frame{}, fmt.Errorf("audioframe: Concat: no frames")
	}
	first := frames[0]
	total := 0
	for _, fr := range frames {
		if fr.format != first.format || fr.layout != first.layout || fr.rate != first.rate {
			return Frame{}, fmt.Errorf("audioframe: Concat: mismatched format/layout/rate")
		}
		total += fr.SampleCount()
	}
	planes := make([][]int16, first.layout.Channels())
	for c := range planes {
		planes[c] = make([]int16, 0, total)
		for _, fr := range frames {
			planes[c] = append(planes[c], fr.planes[c]...)
		}
	}
	return New(first.format, first.layout, first.rate, planes, 0), nil
}
