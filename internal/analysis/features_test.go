package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantWave(n int, amp float64, rate int) Waveform {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp
	}
	return Waveform{Samples: samples, SampleRate: rate}
}

func TestVolumeFeedback_Bands(t *testing.T) {
	tests := []struct {
		db   float64
		want string
	}{
		{math.Inf(-1), "too quiet"},
		{-50, "too quiet"},
		{-35.0001, "too quiet"},
		{-35, "a bit quiet"},
		{-25.5, "a bit quiet"},
		{-25, "good and clear"},
		{-15, "strong and confident"},
		{-5.0001, "strong and confident"},
		{-5, "too loud"},
		{3, "too loud"},
	}
	for _, tt := range tests {
		assert.Contains(t, VolumeFeedback(tt.db), tt.want, "db=%v", tt.db)
	}
}

func TestSpeechFeedback_Boundaries(t *testing.T) {
	got := SpeechFeedback(0.29)
	assert.True(t, strings.HasPrefix(got, "You spoke for only 29%"), got)
	assert.Contains(t, got, "reduce long pauses")

	assert.Equal(t, "You spoke for 30% of the time. This is a balanced pace.", SpeechFeedback(0.30))
	assert.Contains(t, SpeechFeedback(0.6999), "balanced pace")
	assert.Equal(t, "You spoke almost continuously (70%). Try pausing occasionally for clarity.", SpeechFeedback(0.70))
	assert.Contains(t, SpeechFeedback(0), "only 0%")
}

func TestPaceFeedback_Boundaries(t *testing.T) {
	assert.Contains(t, PaceFeedback(0), "slowly")
	assert.Contains(t, PaceFeedback(14.99), "slowly")
	assert.Contains(t, PaceFeedback(15), "steady")
	assert.Contains(t, PaceFeedback(40), "steady")
	assert.Contains(t, PaceFeedback(40.01), "fast")
}

func TestToneFeedback(t *testing.T) {
	assert.Contains(t, ToneFeedback(0), "monotone")
	assert.Contains(t, ToneFeedback(0.0099), "monotone")
	assert.Contains(t, ToneFeedback(0.01), "good variation")
}

func TestAnalyze_EmptyWaveformIsMonotoneAndQuiet(t *testing.T) {
	f := Analyze(Waveform{SampleRate: 16000})

	assert.Equal(t, 0, f.Frames)
	assert.Equal(t, 0.0, f.SpeechRatio)
	assert.Equal(t, 0.0, f.BurstsPerMinute)
	assert.True(t, math.IsInf(f.Decibels, -1))

	m := Classify(f)
	assert.Contains(t, m.ToneText, "monotone")
	assert.Contains(t, m.AvgVolumeText, "too quiet")
}

func TestAnalyze_SilentWaveform(t *testing.T) {
	m := Extract(constantWave(16000, 0, 16000))

	assert.Contains(t, m.ToneText, "monotone")
	assert.Contains(t, m.SpeechTimeText, "only 0%")
	assert.Contains(t, m.PaceText, "slowly")
}

func TestAnalyze_FramesAndBursts(t *testing.T) {
	// four frames: speech, silence, speech, speech
	samples := make([]float64, 4*FrameSize)
	for i := 0; i < FrameSize; i++ {
		samples[i] = 0.5
		samples[2*FrameSize+i] = 0.5
		samples[3*FrameSize+i] = -0.5
	}
	w := Waveform{Samples: samples, SampleRate: 4 * FrameSize} // one second

	f := Analyze(w)
	require.Equal(t, 4, f.Frames)
	assert.Equal(t, 3, f.SpeechFrames)
	assert.Equal(t, 2, f.SpeechBursts)
	assert.InDelta(t, 0.75, f.SpeechRatio, 1e-9)
	assert.InDelta(t, 120, f.BurstsPerMinute, 1e-9)
	assert.Greater(t, f.FrameRMSStdDev, MonotoneThreshold)
}

func TestAnalyze_PartialFrameDividesByFullFrameSize(t *testing.T) {
	// one partial frame of 256 samples at 0.05: sqrt(256*0.0025/1024) = 0.025
	f := Analyze(constantWave(256, 0.05, 16000))

	require.Equal(t, 1, f.Frames)
	assert.Equal(t, 1, f.SpeechFrames)
}

func TestAnalyze_DecibelsOfConstantSignal(t *testing.T) {
	f := Analyze(constantWave(2048, 0.1, 16000))
	assert.InDelta(t, -20, f.Decibels, 1e-9)
	assert.Contains(t, VolumeFeedback(f.Decibels), "good and clear")
}

func TestWaveform_Duration(t *testing.T) {
	assert.Equal(t, "1.5s", Waveform{Samples: make([]float64, 24000), SampleRate: 16000}.Duration().String())
	assert.Zero(t, Waveform{Samples: make([]float64, 10)}.Duration())
}
