// Package features turns WAV clips into the feature matrices the model
// consumes: framed log band-energies over the raw waveform.
package features

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"

	"github.com/dkarras/captrain/internal/config"
	"github.com/dkarras/captrain/internal/tensor"
)

// Extract decodes a WAV file and returns a [frames x bands] feature tensor.
// The signal is framed with the configured frame and hop lengths; each frame
// is split into equal-width bands whose log energies form the feature row.
// A clip shorter than one frame is zero-padded to a single frame.
func Extract(path string, cfg config.FeatureSettings) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening clip: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding WAV %s: %w", path, err)
	}

	bits := int(dec.BitDepth)
	if bits <= 0 {
		bits = 16
	}
	scale := float64(int64(1) << (bits - 1))

	samples := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float64(s) / scale
	}

	return FromSamples(samples, cfg), nil
}

// FromSamples frames a normalized waveform and computes log band-energies.
func FromSamples(samples []float64, cfg config.FeatureSettings) *tensor.Tensor {
	if len(samples) < cfg.FrameLength {
		padded := make([]float64, cfg.FrameLength)
		copy(padded, samples)
		samples = padded
	}

	nFrames := 1 + (len(samples)-cfg.FrameLength)/cfg.HopLength
	out := tensor.New(nFrames, cfg.Bands)

	bandLen := cfg.FrameLength / cfg.Bands
	if bandLen == 0 {
		bandLen = 1
	}

	const eps = 1e-10
	for i := 0; i < nFrames; i++ {
		frame := samples[i*cfg.HopLength : i*cfg.HopLength+cfg.FrameLength]
		row := out.Row(i)
		for b := 0; b < cfg.Bands; b++ {
			start := b * bandLen
			if start > len(frame) {
				start = len(frame)
			}
			end := start + bandLen
			if end > len(frame) || b == cfg.Bands-1 {
				end = len(frame)
			}
			energy := 0.0
			for _, v := range frame[start:end] {
				energy += v * v
			}
			row[b] = math.Log(energy + eps)
		}
	}

	return out
}
