package processdue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kennel-notifications/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunPass(ctx context.Context, trigger Trigger) (Summary, error) {
	args := m.Called(ctx, trigger)
	return args.Get(0).(Summary), args.Error(1)
}

func runPoller(t *testing.T, p *Poller, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d + time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}

func TestPoller_RunOnStart(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunPass", mock.Anything, TriggerTicker).Return(Summary{}, nil)

	p := NewPoller(runner, time.Hour, true, logger.NewTestLogger(t))
	runPoller(t, p, 50*time.Millisecond)

	runner.AssertNumberOfCalls(t, "RunPass", 1)
}

func TestPoller_WithoutRunOnStartWaitsForTick(t *testing.T) {
	runner := new(MockRunner)

	p := NewPoller(runner, time.Hour, false, logger.NewTestLogger(t))
	runPoller(t, p, 50*time.Millisecond)

	runner.AssertNotCalled(t, "RunPass", mock.Anything, mock.Anything)
}

func TestPoller_TicksRepeatedly(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	runner := new(MockRunner)
	runner.On("RunPass", mock.Anything, TriggerTicker).Run(func(mock.Arguments) {
		mu.Lock()
		calls++
		mu.Unlock()
	}).Return(Summary{}, nil)

	p := NewPoller(runner, 10*time.Millisecond, false, logger.NewTestLogger(t))
	runPoller(t, p, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2)
}

func TestPoller_PassErrorDoesNotStopPolling(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunPass", mock.Anything, TriggerTicker).Return(Summary{}, errors.New("store unavailable"))

	p := NewPoller(runner, 10*time.Millisecond, true, logger.NewTestLogger(t))
	runPoller(t, p, 60*time.Millisecond)

	assert.GreaterOrEqual(t, len(runner.Calls), 2)
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(new(MockRunner), 0, false, nil)
	assert.Equal(t, time.Minute, p.interval)
}
