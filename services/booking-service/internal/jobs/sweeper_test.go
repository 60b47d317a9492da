package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCompleter struct {
	mu    sync.Mutex
	calls int
	seen  []time.Time
	n     int
	err   error
}

func (c *countingCompleter) CompleteFinished(_ context.Context, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.seen = append(c.seen, now)
	return c.n, c.err
}

func (c *countingCompleter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOncePassesClock(t *testing.T) {
	c := &countingCompleter{n: 3}
	s := NewSweeper(c, discard(), SweeperConfig{})
	fixed := time.Date(2024, 1, 8, 18, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	assert.Equal(t, 3, s.RunOnce())
	require.Len(t, c.seen, 1)
	assert.True(t, c.seen[0].Equal(fixed))
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	c := &countingCompleter{n: 2, err: errors.New("db down")}
	s := NewSweeper(c, discard(), SweeperConfig{})
	assert.Equal(t, 0, s.RunOnce())
}

func TestRunOnceSkipsAfterCancel(t *testing.T) {
	c := &countingCompleter{}
	s := NewSweeper(c, discard(), SweeperConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ctx = ctx
	s.RunOnce()
	assert.Equal(t, 0, c.count())
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	c := &countingCompleter{}
	s := NewSweeper(c, discard(), SweeperConfig{Interval: 20 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return c.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	after := c.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, c.count(), "no passes after Stop")
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSweeper(&countingCompleter{}, discard(), SweeperConfig{})
	assert.NoError(t, s.Stop())
}
