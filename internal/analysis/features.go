// Package analysis turns a recorded waveform into the free delivery metrics
// (volume, speaking time, pace and tone) shown to the presenter.
package analysis

import (
	"fmt"
	"math"
	"time"
)

const (
	// FrameSize is the number of samples per analysis frame.
	FrameSize = 1024
	// SilenceThreshold is the frame RMS above which a frame counts as speech.
	SilenceThreshold = 0.02
	// MonotoneThreshold is the frame RMS standard deviation below which the
	// delivery is reported as monotone.
	MonotoneThreshold = 0.01
)

// Waveform is a mono PCM signal normalized to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Features are the numeric measurements the feedback texts are derived from.
type Features struct {
	RMS             float64
	Decibels        float64
	Frames          int
	SpeechFrames    int
	SpeechBursts    int
	SpeechRatio     float64
	BurstsPerMinute float64
	FrameRMSStdDev  float64
}

// FreeAudioMetrics holds the four feedback texts for one completed recording.
type FreeAudioMetrics struct {
	AvgVolumeText  string `json:"avgVolumeText"`
	SpeechTimeText string `json:"speechTimeText"`
	PaceText       string `json:"paceText"`
	ToneText       string `json:"toneText"`
}

// Extract analyzes the waveform and classifies the result.
func Extract(w Waveform) FreeAudioMetrics {
	return Classify(Analyze(w))
}

// Analyze measures the waveform. An empty waveform yields zero values and a
// decibel level of -Inf.
func Analyze(w Waveform) Features {
	var f Features

	var sumSquares float64
	for _, s := range w.Samples {
		sumSquares += s * s
	}
	if n := len(w.Samples); n > 0 {
		f.RMS = math.Sqrt(sumSquares / float64(n))
	}
	f.Decibels = 20 * math.Log10(f.RMS)

	frameRMS := make([]float64, 0, len(w.Samples)/FrameSize+1)
	speaking := false
	for i := 0; i < len(w.Samples); i += FrameSize {
		end := min(i+FrameSize, len(w.Samples))
		var sum float64
		for _, s := range w.Samples[i:end] {
			sum += s * s
		}
		// the trailing partial frame is still divided by the full frame size
		rms := math.Sqrt(sum / FrameSize)
		frameRMS = append(frameRMS, rms)

		isSpeaking := rms > SilenceThreshold
		if isSpeaking {
			f.SpeechFrames++
			if !speaking {
				f.SpeechBursts++
			}
		}
		speaking = isSpeaking
	}
	f.Frames = len(frameRMS)

	if f.Frames > 0 {
		f.SpeechRatio = float64(f.SpeechFrames) / float64(f.Frames)
	}
	if minutes := w.Duration().Minutes(); minutes > 0 {
		f.BurstsPerMinute = float64(f.SpeechBursts) / minutes
	}
	f.FrameRMSStdDev = stdDev(frameRMS)

	return f
}

// Classify maps measured features onto the feedback texts.
func Classify(f Features) FreeAudioMetrics {
	return FreeAudioMetrics{
		AvgVolumeText:  VolumeFeedback(f.Decibels),
		SpeechTimeText: SpeechFeedback(f.SpeechRatio),
		PaceText:       PaceFeedback(f.BurstsPerMinute),
		ToneText:       ToneFeedback(f.FrameRMSStdDev),
	}
}

// VolumeFeedback buckets an average level in dBFS.
func VolumeFeedback(db float64) string {
	switch {
	case db < -35:
		return "Your voice was too quiet, try speaking louder."
	case db < -25:
		return "Your voice was a bit quiet."
	case db < -15:
		return "Your voice was good and clear."
	case db < -5:
		return "Your voice was strong and confident."
	default:
		return "Your voice was too loud, consider softening it a bit."
	}
}

// SpeechFeedback buckets the fraction of frames that contained speech.
func SpeechFeedback(ratio float64) string {
	pct := int(math.Round(ratio * 100))
	switch {
	case ratio < 0.3:
		return fmt.Sprintf("You spoke for only %d%% of the time. Try to reduce long pauses.", pct)
	case ratio < 0.7:
		return fmt.Sprintf("You spoke for %d%% of the time. This is a balanced pace.", pct)
	default:
		return fmt.Sprintf("You spoke almost continuously (%d%%). Try pausing occasionally for clarity.", pct)
	}
}

// PaceFeedback buckets speech bursts per minute.
func PaceFeedback(burstsPerMinute float64) string {
	switch {
	case burstsPerMinute < 15:
		return "You spoke quite slowly. Try maintaining a more energetic pace."
	case burstsPerMinute <= 40:
		return "Your speaking pace was steady and natural."
	default:
		return "You spoke a bit fast. Try slowing down slightly for clarity."
	}
}

// ToneFeedback classifies the spread of frame energy.
func ToneFeedback(std float64) string {
	if std < MonotoneThreshold {
		return "Your tone was quite monotone. Try varying your energy for emphasis."
	}
	return "Your tone had good variation. Great for keeping attention!"
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
