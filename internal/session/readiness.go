package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultWatchInterval is how often Watch re-evaluates readiness.
const DefaultWatchInterval = 500 * time.Millisecond

// Checkout gate errors.
var (
	ErrNameMissing             = errors.New("presenter name missing")
	ErrPrerequisitesIncomplete = errors.New("session prerequisites incomplete")
)

// Message returns the text shown to the presenter for a rejected checkout.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNameMissing):
		return "Please enter your name before payment."
	case errors.Is(err, ErrPrerequisitesIncomplete):
		return "Please upload slides and complete an audio recording first (free metrics must be generated)."
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}

// Readiness is the state paid checkout depends on.
type Readiness struct {
	SlidesAttached bool
	AudioRecorded  bool // a completed recording with a non-empty clip
	MetricsReady   bool
}

// Complete reports whether all prerequisites hold.
func (r Readiness) Complete() bool {
	return r.SlidesAttached && r.AudioRecorded && r.MetricsReady
}

// Evaluate decides whether checkout may start. A missing name is reported
// before missing prerequisites.
func Evaluate(r Readiness, presenterName string) error {
	if strings.TrimSpace(presenterName) == "" {
		return ErrNameMissing
	}
	if !r.Complete() {
		return ErrPrerequisitesIncomplete
	}
	return nil
}

// Watch calls fn with the current readiness immediately and again every
// time it changes, polling at interval, until ctx is done.
func (s *Session) Watch(ctx context.Context, interval time.Duration, fn func(Readiness)) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	last := s.Readiness()
	fn(last)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r := s.Readiness(); r != last {
				last = r
				fn(r)
			}
		}
	}
}
