// Package recording provides the rehearsal recording lifecycle.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alcyxob/present-coach/internal/analysis"
)

// State represents the lifecycle state of the recorder.
type State int

const (
	// StateIdle - no capture device held.
	StateIdle State = iota
	// StateRecording - capture running, time accrues.
	StateRecording
	// StatePaused - capture suspended, device still held.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Errors for rejected transitions.
var (
	ErrSlidesNotAttached = errors.New("please upload slides before starting recording")
	ErrAlreadyActive     = errors.New("a recording is already in progress")
	ErrNotRecording      = errors.New("recorder is not recording")
	ErrNotPaused         = errors.New("recorder is not paused")
	ErrNotActive         = errors.New("no active recording")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrEmptyClip         = errors.New("recording produced an empty clip")
)

// Clip is a finalized recording.
type Clip struct {
	Data        []byte
	ContentType string
}

// Empty reports whether the clip carries no audio.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Data) == 0
}

// CaptureDevice acquires an audio input. Open may block until the user grants
// permission; it must honor ctx.
type CaptureDevice interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture is an acquired, running input.
type Capture interface {
	Pause() error
	Resume() error
	// Stop finalizes the capture and releases the device.
	Stop() (Clip, error)
}

// Decoder turns a finalized clip into a waveform for analysis.
type Decoder func(Clip) (analysis.Waveform, error)

// DecodeWAVClip decodes clips that carry PCM WAV bytes.
func DecodeWAVClip(c Clip) (analysis.Waveform, error) {
	return analysis.DecodeWAV(bytes.NewReader(c.Data))
}

// Observer receives lifecycle notifications, in registration order, after
// the controller has committed the transition.
type Observer interface {
	RecordingStarted(at time.Time)
	RecordingPaused(at time.Time)
	RecordingResumed(at time.Time)
	RecordingStopped(at time.Time)
}

// Result is the outcome of a completed recording session.
type Result struct {
	Clip    Clip
	Elapsed time.Duration
	Metrics *analysis.FreeAudioMetrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithDecoder overrides the clip decoder.
func WithDecoder(d Decoder) Option {
	return func(c *Controller) { c.decode = d }
}

// Controller owns the idle/recording/paused state machine.
//
// State transitions:
//
//	idle ──Start──→ recording ──Pause──→ paused
//	                    ↑                   │
//	                    └──────Resume───────┘
//	recording|paused ──Stop──→ idle
//
// Start is gated on slides being attached to the session.
type Controller struct {
	mu        sync.Mutex
	device    CaptureDevice
	slidesOK  func() bool
	decode    Decoder
	clock     func() time.Time
	observers []Observer

	state        State
	starting     bool
	capture      Capture
	elapsed      time.Duration
	segmentStart time.Time
	// session counts Starts; a Stop only publishes its result while no newer
	// session has begun.
	session uint64

	last *Result
}

// NewController creates a controller in the idle state. slidesAttached is
// consulted on every Start.
func NewController(device CaptureDevice, slidesAttached func() bool, opts ...Option) *Controller {
	c := &Controller{
		device:   device,
		slidesOK: slidesAttached,
		decode:   DecodeWAVClip,
		clock:    time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers an observer.
func (c *Controller) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether time is currently being recorded.
func (c *Controller) Active() bool {
	return c.State() == StateRecording
}

// Elapsed returns the recorded time of the current or last session, paused
// spans excluded.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRecording {
		return c.elapsed + c.clock().Sub(c.segmentStart)
	}
	return c.elapsed
}

// Last returns the most recent completed session, or nil.
func (c *Controller) Last() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Start acquires the capture device and begins a new session. The previous
// session's result is discarded once the device is acquired.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.starting {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	if c.slidesOK == nil || !c.slidesOK() {
		c.mu.Unlock()
		return ErrSlidesNotAttached
	}
	c.starting = true
	c.mu.Unlock()

	// the device may wait on a permission prompt; state stays readable meanwhile
	capture, err := c.device.Open(ctx)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	now := c.clock()
	c.capture = capture
	c.elapsed = 0
	c.segmentStart = now
	c.state = StateRecording
	c.session++
	c.last = nil
	observers := c.observersLocked()
	c.mu.Unlock()

	for _, o := range observers {
		o.RecordingStarted(now)
	}
	return nil
}

// Pause suspends capture. Time stops accruing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	if err := c.capture.Pause(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("pause capture: %w", err)
	}

	now := c.clock()
	c.elapsed += now.Sub(c.segmentStart)
	c.state = StatePaused
	observers := c.observersLocked()
	c.mu.Unlock()

	for _, o := range observers {
		o.RecordingPaused(now)
	}
	return nil
}

// Resume restarts a paused capture.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	if err := c.capture.Resume(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("resume capture: %w", err)
	}

	now := c.clock()
	c.segmentStart = now
	c.state = StateRecording
	observers := c.observersLocked()
	c.mu.Unlock()

	for _, o := range observers {
		o.RecordingResumed(now)
	}
	return nil
}

// Stop finalizes the clip, releases the device and returns to idle. Observers
// are notified before the clip is analyzed, so timing totals are final before
// the metrics become visible. A decode failure leaves the clip recorded
// without metrics.
func (c *Controller) Stop() (*Result, error) {
	c.mu.Lock()
	if c.state != StateRecording && c.state != StatePaused {
		c.mu.Unlock()
		return nil, ErrNotActive
	}

	now := c.clock()
	if c.state == StateRecording {
		c.elapsed += now.Sub(c.segmentStart)
	}
	clip, stopErr := c.capture.Stop()
	c.capture = nil
	c.state = StateIdle
	result := &Result{Clip: clip, Elapsed: c.elapsed}
	session := c.session
	observers := c.observersLocked()
	c.mu.Unlock()

	for _, o := range observers {
		o.RecordingStopped(now)
	}

	if stopErr != nil {
		return nil, fmt.Errorf("finalize capture: %w", stopErr)
	}
	if clip.Empty() {
		c.setLast(session, result)
		return result, ErrEmptyClip
	}

	waveform, err := c.decode(clip)
	if err != nil {
		c.setLast(session, result)
		return result, fmt.Errorf("decode clip: %w", err)
	}
	metrics := analysis.Extract(waveform)
	result.Metrics = &metrics
	c.setLast(session, result)

	return result, nil
}

func (c *Controller) setLast(session uint64, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.last = r
	}
}

func (c *Controller) observersLocked() []Observer {
	return append([]Observer(nil), c.observers...)
}
