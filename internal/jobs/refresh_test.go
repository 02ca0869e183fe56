package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	mu      sync.Mutex
	windows []time.Duration
	count   int
	err     error
}

func (f *fakeRefresher) RefreshExpiring(_ context.Context, window time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, window)
	return f.count, f.err
}

func TestNewRefreshSweep(t *testing.T) {
	s, err := NewRefreshSweep(utils.NewConfig(nil), &fakeRefresher{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRefreshWindow, s.Window())

	s, err = NewRefreshSweep(utils.NewConfig(map[string]string{
		"REFRESH_SCHEDULE":       "*/5 * * * *",
		"REFRESH_WINDOW_MINUTES": "10",
	}), &fakeRefresher{})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, s.Window())

	_, err = NewRefreshSweep(utils.NewConfig(map[string]string{"REFRESH_SCHEDULE": "every so often"}), &fakeRefresher{})
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	refresher := &fakeRefresher{count: 2}
	s, err := NewRefreshSweep(utils.NewConfig(nil), refresher)
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Duration{DefaultRefreshWindow}, refresher.windows)

	refresher.err = errors.New("invalid_grant")
	refresher.count = 1
	n, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "invalid_grant")
	assert.Equal(t, 1, n)
}

func TestTickSkipsOverlap(t *testing.T) {
	refresher := &fakeRefresher{}
	s, err := NewRefreshSweep(utils.NewConfig(nil), refresher)
	require.NoError(t, err)

	s.running.Lock()
	s.tick()
	s.running.Unlock()
	assert.Empty(t, refresher.windows)

	s.tick()
	assert.Len(t, refresher.windows, 1)
}

func TestStartStop(t *testing.T) {
	s, err := NewRefreshSweep(utils.NewConfig(nil), &fakeRefresher{})
	require.NoError(t, err)

	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
