package analysis

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// ErrUnsupportedAudio is returned when a clip cannot be decoded as PCM WAV.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// DecodeWAV reads a PCM WAV stream and returns its first channel as a
// normalized waveform.
func DecodeWAV(r io.ReadSeeker) (Waveform, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Waveform{}, ErrUnsupportedAudio
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Waveform{}, ErrUnsupportedAudio
	}

	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth < 8 || bitDepth > 32 {
		return Waveform{}, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedAudio, bitDepth)
	}

	channels := buf.Format.NumChannels
	samples := make([]float64, 0, len(buf.Data)/channels)
	fullScale := float64(int64(1) << (bitDepth - 1))
	for i := 0; i < len(buf.Data); i += channels {
		v := buf.Data[i]
		if bitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		samples = append(samples, float64(v)/fullScale)
	}

	return Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
