package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"alcyxob/present-coach/internal/recording"
)

// DefaultStartupGrace is how long a new ffmpeg process must keep running
// before the input counts as acquired.
const DefaultStartupGrace = 500 * time.Millisecond

// FFmpegDevice records from a system input through ffmpeg. Each
// recording span is written to its own segment; pausing ends a segment and
// resuming starts the next, so paused time never reaches the clip. Segments
// are concatenated on Stop.
type FFmpegDevice struct {
	Format       string // ffmpeg input format, e.g. "pulse", "alsa", "avfoundation"
	Input        string // input device, e.g. "default" or ":default"
	SampleRate   int
	StartupGrace time.Duration
}

// NewFFmpegDevice creates a mono 16kHz microphone device.
func NewFFmpegDevice(format, input string) *FFmpegDevice {
	return &FFmpegDevice{Format: format, Input: input, SampleRate: 16000, StartupGrace: DefaultStartupGrace}
}

// CheckFFmpeg reports whether ffmpeg is on PATH.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found on PATH")
	}
	return nil
}

// Open starts the first segment. A denied or missing input makes ffmpeg
// exit at once; that is reported here with the tail of its log.
func (d *FFmpegDevice) Open(ctx context.Context) (recording.Capture, error) {
	if err := CheckFFmpeg(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "present-coach-*")
	if err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	c := &ffmpegCapture{device: d, dir: dir}
	if err := c.startSegment(ctx); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return c, nil
}

type ffmpegCapture struct {
	device   *FFmpegDevice
	dir      string
	segments []string
	cmd      *exec.Cmd
	done     chan error
}

func (c *ffmpegCapture) startSegment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(c.dir, fmt.Sprintf("segment-%03d.wav", len(c.segments)))
	logPath := path + ".ffmpeg.log"
	cmd := exec.Command("ffmpeg",
		"-f", c.device.Format,
		"-i", c.device.Input,
		"-ac", "1",
		"-ar", strconv.Itoa(c.device.SampleRate),
		"-y",
		path,
	)

	if logFile, err := os.Create(logPath); err == nil {
		cmd.Stderr = logFile
		defer logFile.Close()
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	grace := c.device.StartupGrace
	if grace <= 0 {
		grace = DefaultStartupGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return exitError(err, logPath)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case <-timer.C:
	}

	c.cmd = cmd
	c.done = done
	c.segments = append(c.segments, path)
	return nil
}

func (c *ffmpegCapture) endSegment() {
	if c.cmd == nil {
		return
	}
	// ffmpeg finalizes the WAV header on interrupt and exits non-zero
	_ = c.cmd.Process.Signal(os.Interrupt)
	<-c.done
	c.cmd = nil
	c.done = nil
}

func exitError(err error, logPath string) error {
	status := "exited"
	if err != nil {
		status = err.Error()
	}
	if tail := logTail(logPath, 512); tail != "" {
		return fmt.Errorf("ffmpeg %s: %s", status, tail)
	}
	return fmt.Errorf("ffmpeg %s", status)
}

// logTail returns the last n bytes of the file at path, trimmed.
func logTail(path string, n int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > n {
		data = data[len(data)-n:]
	}
	return strings.TrimSpace(string(data))
}

func (c *ffmpegCapture) Pause() error {
	c.endSegment()
	return nil
}

func (c *ffmpegCapture) Resume() error {
	return c.startSegment(context.Background())
}

func (c *ffmpegCapture) Stop() (recording.Clip, error) {
	c.endSegment()
	defer os.RemoveAll(c.dir)

	out := c.segments[0]
	if len(c.segments) > 1 {
		out = filepath.Join(c.dir, "merged.wav")
		if err := concatSegments(c.segments, out); err != nil {
			return recording.Clip{}, err
		}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return recording.Clip{}, fmt.Errorf("read recording: %w", err)
	}
	return recording.Clip{Data: data, ContentType: ContentTypeWAV}, nil
}

func concatSegments(segments []string, outputPath string) error {
	args := make([]string, 0, 2*len(segments)+8)
	inputs := make([]string, 0, len(segments))
	for i, s := range segments {
		args = append(args, "-i", s)
		inputs = append(inputs, fmt.Sprintf("[%d:a]", i))
	}
	filter := fmt.Sprintf("%sconcat=n=%d:v=0:a=1[a]", strings.Join(inputs, ""), len(segments))
	args = append(args, "-filter_complex", filter, "-map", "[a]", "-y", outputPath)

	out, err := exec.Command("ffmpeg", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("merging segments: %w\n%s", err, string(out))
	}
	return nil
}
