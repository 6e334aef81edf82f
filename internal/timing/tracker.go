// Package timing attributes recorded time to the slide on screen.
package timing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTickInterval is the cadence of the flush loop while recording.
const DefaultTickInterval = 250 * time.Millisecond

// ErrNoDeck is returned by navigation before a deck is attached.
var ErrNoDeck = errors.New("no slides attached")

// SlideTime is the time spent on one slide while recording.
type SlideTime struct {
	Total    time.Duration
	Audience time.Duration
}

type slideTimeJSON struct {
	TotalMS    int64 `json:"total_ms"`
	AudienceMS int64 `json:"audience_ms"`
}

// MarshalJSON encodes durations as whole milliseconds.
func (s SlideTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(slideTimeJSON{
		TotalMS:    s.Total.Milliseconds(),
		AudienceMS: s.Audience.Milliseconds(),
	})
}

// UnmarshalJSON decodes the millisecond form.
func (s *SlideTime) UnmarshalJSON(data []byte) error {
	var v slideTimeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.Total = time.Duration(v.TotalMS) * time.Millisecond
	s.Audience = time.Duration(v.AudienceMS) * time.Millisecond
	return nil
}

// Timings maps a 1-based page number to its accumulated time. Encoded as
// {"1": {"total_ms": 0, "audience_ms": 0}, ...}.
type Timings map[int]SlideTime

// Totals sums every slide.
func (t Timings) Totals() SlideTime {
	var sum SlideTime
	for _, st := range t {
		sum.Total += st.Total
		sum.Audience += st.Audience
	}
	return sum
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithTickInterval sets the flush loop cadence. Zero disables the loop and
// leaves flushing to events and explicit Tick calls.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// Tracker accumulates per-slide time. Every event first flushes the time
// since the previous flush to the slide and overlay state that were in
// effect, then applies its change. Time only accrues while a recording is
// active.
type Tracker struct {
	mu       sync.Mutex
	clock    func() time.Time
	interval time.Duration

	pages        int
	current      int
	lastVisited  int
	audienceOpen bool
	active       bool
	recorded     bool
	lastTick     time.Time
	slides       map[int]*SlideTime

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// NewTracker creates a tracker with no deck attached.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:    time.Now,
		interval: DefaultTickInterval,
		slides:   make(map[int]*SlideTime),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AttachDeck starts tracking a new deck of the given page count on page 1.
// Timings from any previous deck are discarded.
func (t *Tracker) AttachDeck(pages int) error {
	if pages < 1 {
		return fmt.Errorf("deck must have at least one page, got %d", pages)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushLocked(t.clock())
	t.pages = pages
	t.current = 1
	t.lastVisited = 1
	t.recorded = false
	t.slides = make(map[int]*SlideTime)
	t.entryLocked(1)
	return nil
}

// Attached reports whether a deck is being tracked.
func (t *Tracker) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pages > 0
}

// Pages returns the page count of the attached deck.
func (t *Tracker) Pages() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pages
}

// CurrentPage returns the page on screen, 0 without a deck.
func (t *Tracker) CurrentPage() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// AudienceOpen reports whether the audience overlay is showing.
func (t *Tracker) AudienceOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audienceOpen
}

// Recorded reports whether a recording has started since the deck was
// attached.
func (t *Tracker) Recorded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recorded
}

// NextPage moves forward one page. It reports false at the last page.
func (t *Tracker) NextPage() (bool, error) {
	return t.goTo(func(cur int) int { return cur + 1 })
}

// PrevPage moves back one page. It reports false at the first page.
func (t *Tracker) PrevPage() (bool, error) {
	return t.goTo(func(cur int) int { return cur - 1 })
}

// GoTo jumps to page. It reports false if page is out of range or already
// on screen.
func (t *Tracker) GoTo(page int) (bool, error) {
	return t.goTo(func(int) int { return page })
}

func (t *Tracker) goTo(target func(cur int) int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pages == 0 {
		return false, ErrNoDeck
	}
	next := target(t.current)
	if next < 1 || next > t.pages || next == t.current {
		return false, nil
	}

	t.flushLocked(t.clock())
	t.current = next
	t.lastVisited = max(t.lastVisited, next)
	t.entryLocked(next)
	return true, nil
}

// OpenAudience marks the audience overlay as showing.
func (t *Tracker) OpenAudience() {
	t.setAudience(true)
}

// CloseAudience marks the audience overlay as hidden.
func (t *Tracker) CloseAudience() {
	t.setAudience(false)
}

func (t *Tracker) setAudience(open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked(t.clock())
	t.audienceOpen = open
}

// Tick flushes elapsed time to the current slide.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked(t.clock())
}

// RecordingStarted zeroes every slide, takes a fresh baseline and starts the
// flush loop.
func (t *Tracker) RecordingStarted(at time.Time) {
	t.mu.Lock()
	for _, st := range t.slides {
		*st = SlideTime{}
	}
	if t.current > 0 {
		t.entryLocked(t.current)
	}
	t.lastTick = at
	t.active = true
	t.recorded = true
	t.mu.Unlock()

	t.startLoop()
}

// RecordingPaused flushes up to the pause, then stops accruing.
func (t *Tracker) RecordingPaused(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked(at)
	t.active = false
}

// RecordingResumed takes a fresh baseline so the paused span is skipped.
func (t *Tracker) RecordingResumed(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTick = at
	t.active = true
}

// RecordingStopped takes the final flush and stops the loop. Totals stay
// readable.
func (t *Tracker) RecordingStopped(at time.Time) {
	t.mu.Lock()
	t.flushLocked(at)
	t.active = false
	t.mu.Unlock()

	t.stop()
}

// Close stops the flush loop.
func (t *Tracker) Close() {
	t.stop()
}

// Snapshot flushes and returns a copy of the timings, dense from page 1 to
// the last visited page.
func (t *Tracker) Snapshot() Timings {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushLocked(t.clock())
	out := make(Timings, t.lastVisited)
	for page := 1; page <= t.lastVisited; page++ {
		if st, ok := t.slides[page]; ok {
			out[page] = *st
		} else {
			out[page] = SlideTime{}
		}
	}
	return out
}

// HasData reports whether any slide accrued time.
func (t *Tracker) HasData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.slides {
		if st.Total > 0 || st.Audience > 0 {
			return true
		}
	}
	return false
}

// Summary renders the per-slide breakdown for every page of the deck, with
// presentation totals first.
func (t *Tracker) Summary() string {
	snap := t.Snapshot()
	pages := t.Pages()

	var b strings.Builder
	totals := snap.Totals()
	fmt.Fprintf(&b, "Total Presentation Time: %s (Audience: %s)\n",
		FormatDuration(totals.Total), FormatDuration(totals.Audience))
	for page := 1; page <= max(pages, len(snap)); page++ {
		st := snap[page]
		fmt.Fprintf(&b, "Slide %d: Total %s (Audience: %s)\n",
			page, FormatDuration(st.Total), FormatDuration(st.Audience))
	}
	return b.String()
}

// FormatDuration renders d as minutes and zero-padded seconds, e.g. 1m05s.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}

func (t *Tracker) flushLocked(now time.Time) {
	if !t.lastTick.IsZero() && t.active && t.current > 0 {
		if elapsed := now.Sub(t.lastTick); elapsed > 0 {
			st := t.entryLocked(t.current)
			st.Total += elapsed
			if t.audienceOpen {
				st.Audience += elapsed
			}
		}
	}
	t.lastTick = now
}

func (t *Tracker) entryLocked(page int) *SlideTime {
	st, ok := t.slides[page]
	if !ok {
		st = &SlideTime{}
		t.slides[page] = st
	}
	return st
}

func (t *Tracker) startLoop() {
	t.stop()
	if t.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.stopLoop = cancel
	t.loopDone = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Tick()
			}
		}
	}()
}

func (t *Tracker) stop() {
	t.mu.Lock()
	cancel, done := t.stopLoop, t.loopDone
	t.stopLoop, t.loopDone = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
