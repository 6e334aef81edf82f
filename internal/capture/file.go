// Package capture provides audio input devices for the recording controller.
package capture

import (
	"context"
	"fmt"
	"os"

	"alcyxob/present-coach/internal/recording"
)

// ContentTypeWAV is the content type of clips produced by this package.
const ContentTypeWAV = "audio/wav"

// FileDevice replays a pre-recorded WAV file as if it were a microphone.
// Useful for rehearsing against an existing take.
type FileDevice struct {
	Path string
}

// NewFileDevice creates a device that replays path.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{Path: path}
}

// Open reads the file up front so a missing or unreadable file fails the
// start, like a denied microphone would.
func (d *FileDevice) Open(ctx context.Context) (recording.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Path, err)
	}
	return &fileCapture{data: data}, nil
}

type fileCapture struct {
	data    []byte
	stopped bool
}

func (c *fileCapture) Pause() error  { return nil }
func (c *fileCapture) Resume() error { return nil }

func (c *fileCapture) Stop() (recording.Clip, error) {
	if c.stopped {
		return recording.Clip{}, fmt.Errorf("capture already stopped")
	}
	c.stopped = true
	return recording.Clip{Data: c.data, ContentType: ContentTypeWAV}, nil
}
