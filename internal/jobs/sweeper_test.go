package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSweeper struct {
	calls     int
	olderThan time.Duration
	n         int64
	err       error
}

func (s *stubSweeper) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.calls++
	s.olderThan = olderThan
	return s.n, s.err
}

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewSweeper(&stubSweeper{}, "not a schedule", time.Hour)
	assert.Error(t, err)
}

func TestSweeper_Schedules(t *testing.T) {
	s, err := NewSweeper(&stubSweeper{}, "@every 1h", time.Hour)
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 1)

	s.Start()
	s.Stop()
}

func TestSweeper_RunOnce(t *testing.T) {
	stub := &stubSweeper{n: 3}
	s, err := NewSweeper(stub, "0 3 * * *", 720*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.RunOnce(context.Background()))
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 720*time.Hour, stub.olderThan)
}

func TestSweeper_RunOnceError(t *testing.T) {
	stub := &stubSweeper{n: 5, err: errors.New("db down")}
	s, err := NewSweeper(stub, "@daily", time.Hour)
	require.NoError(t, err)

	assert.Zero(t, s.RunOnce(context.Background()))
}
