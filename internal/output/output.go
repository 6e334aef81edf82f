package output

import (
	"fmt"
	"io"
	"time"

	"alcyxob/present-coach/internal/analysis"
	"alcyxob/present-coach/internal/client"
	"alcyxob/present-coach/internal/session"
	"alcyxob/present-coach/internal/timing"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.w
}

func (f *Formatter) Prompt() {
	fmt.Fprint(f.w, "> ")
}

func (f *Formatter) SlidesAttached(name string, pages int) {
	fmt.Fprintf(f.w, "📎 Slides attached: %s (%d pages)\n", name, pages)
}

func (f *Formatter) Slide(page, pages int, audience bool) {
	if audience {
		fmt.Fprintf(f.w, "📄 Slide %d/%d (audience view)\n", page, pages)
		return
	}
	fmt.Fprintf(f.w, "📄 Slide %d/%d\n", page, pages)
}

func (f *Formatter) RecordingStarted() {
	fmt.Fprintf(f.w, "🎙️  Recording started\n")
}

func (f *Formatter) RecordingPaused(elapsed time.Duration) {
	fmt.Fprintf(f.w, "⏸️  Recording paused (%s)\n", timing.FormatDuration(elapsed))
}

func (f *Formatter) RecordingResumed() {
	fmt.Fprintf(f.w, "▶️  Recording resumed\n")
}

func (f *Formatter) RecordingStopped(elapsed time.Duration) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped (%s)\n", timing.FormatDuration(elapsed))
}

func (f *Formatter) Metrics(m analysis.FreeAudioMetrics) {
	fmt.Fprintf(f.w, "📊 Free metrics:\n")
	fmt.Fprintf(f.w, "  Volume: %s\n", m.AvgVolumeText)
	fmt.Fprintf(f.w, "  Speaking time: %s\n", m.SpeechTimeText)
	fmt.Fprintf(f.w, "  Pace: %s\n", m.PaceText)
	fmt.Fprintf(f.w, "  Tone: %s\n", m.ToneText)
}

func (f *Formatter) Features(feat analysis.Features, duration time.Duration) {
	fmt.Fprintf(f.w, "🔎 Measurements (%s):\n", timing.FormatDuration(duration))
	fmt.Fprintf(f.w, "  RMS: %.4f (%.1f dB)\n", feat.RMS, feat.Decibels)
	fmt.Fprintf(f.w, "  Speech frames: %d/%d (%.0f%%)\n", feat.SpeechFrames, feat.Frames, feat.SpeechRatio*100)
	fmt.Fprintf(f.w, "  Speech bursts: %d (%.1f per minute)\n", feat.SpeechBursts, feat.BurstsPerMinute)
	fmt.Fprintf(f.w, "  Frame RMS std dev: %.4f\n", feat.FrameRMSStdDev)
}

func (f *Formatter) Timings(summary string) {
	fmt.Fprintf(f.w, "⏱️  %s", summary)
}

func (f *Formatter) Status(state string, elapsed time.Duration, page, pages int, audience bool) {
	fmt.Fprintf(f.w, "Recorder: %s (%s)\n", state, timing.FormatDuration(elapsed))
	if pages == 0 {
		fmt.Fprintf(f.w, "Slides: none\n")
		return
	}
	view := "presenter"
	if audience {
		view = "audience"
	}
	fmt.Fprintf(f.w, "Slides: %d/%d (%s view)\n", page, pages, view)
}

func (f *Formatter) Readiness(r session.Readiness, presenterName string) {
	f.SetupCheck("Presenter name", presenterName != "", nameDetail(presenterName))
	f.SetupCheck("Slides", r.SlidesAttached, detail(r.SlidesAttached, "attached", "not attached"))
	f.SetupCheck("Audio", r.AudioRecorded, detail(r.AudioRecorded, "recorded", "no completed recording"))
	f.SetupCheck("Free metrics", r.MetricsReady, detail(r.MetricsReady, "generated", "not generated"))
}

func (f *Formatter) CheckoutStarted(submissionID string) {
	fmt.Fprintf(f.w, "💳 Checkout opened for submission %s\n", submissionID)
}

func (f *Formatter) PaymentRecorded(r *client.PaymentReport) {
	fmt.Fprintf(f.w, "✅ Payment recorded (transaction %s)\n", r.Payment.TransactionID)
	switch {
	case r.EmailErr != nil:
		f.Warning(fmt.Sprintf("Could not attach email: %v", r.EmailErr))
	case r.EmailAlreadySet:
		f.Info("Email already set on this submission")
	case r.EmailPatched:
		f.Info("Email attached: " + r.Payment.Email)
	}
}

func (f *Formatter) UploadReport(r *client.UploadReport) {
	fmt.Fprintf(f.w, "☁️  Upload:\n")
	f.uploadLine("slides", r.Slides)
	f.uploadLine("audio", r.Audio)
	f.uploadLine("metrics", r.Metrics)
	if r.Success() {
		f.Success("Submitted for review")
	} else {
		f.Warning("Some uploads failed. Run 'upload' to try again.")
	}
}

func (f *Formatter) uploadLine(name string, st client.ArtifactStatus) {
	if st.OK() {
		f.SetupCheck(name, true, st.Path)
	} else {
		f.SetupCheck(name, false, st.Err.Error())
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func nameDetail(name string) string {
	if name == "" {
		return "not set"
	}
	return name
}

func detail(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
