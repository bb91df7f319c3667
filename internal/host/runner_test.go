package host

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/logging"
)

func TestRunnerExecutesJob(t *testing.T) {
	runner := NewRunner(time.Second, logging.NewNop())
	defer runner.Stop()

	value, err := runner.Do(context.Background(), func() (any, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestRunnerSerializesJobs(t *testing.T) {
	runner := NewRunner(5*time.Second, logging.NewNop())
	defer runner.Stop()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := runner.Do(context.Background(), func() (any, error) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "jobs must never overlap")
}

func TestRunnerTimeout(t *testing.T) {
	runner := NewRunner(20*time.Millisecond, logging.NewNop())
	defer runner.Stop()

	release := make(chan struct{})
	defer close(release)

	_, err := runner.Do(context.Background(), func() (any, error) {
		<-release
		return nil, nil
	})

	require.Error(t, err)
	var we *errors.WardenError
	require.True(t, stderrors.As(err, &we))
	assert.Equal(t, errors.ErrorTypeTool, we.Type)
	assert.Equal(t, errors.CodeHostTimeout, we.Code)
	assert.True(t, errors.IsRecoverable(err))
}

func TestRunnerRecoversJobPanic(t *testing.T) {
	runner := NewRunner(time.Second, logging.NewNop())
	defer runner.Stop()

	_, err := runner.Do(context.Background(), func() (any, error) {
		panic("host blew up")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "host blew up")

	// The worker must survive the panic.
	value, err := runner.Do(context.Background(), func() (any, error) {
		return "still alive", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "still alive", value)
}

func TestRunnerCanceledContext(t *testing.T) {
	runner := NewRunner(time.Second, logging.NewNop())
	defer runner.Stop()

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := runner.Do(ctx, func() (any, error) {
		<-release
		return nil, nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestRunnerStopped(t *testing.T) {
	runner := NewRunner(20*time.Millisecond, logging.NewNop())
	runner.Stop()
	runner.Stop() // idempotent

	// The buffered queue may still accept the job before the stop is
	// observed; with the worker gone the wait must fail either way.
	_, err := runner.Do(context.Background(), func() (any, error) {
		return nil, nil
	})
	require.Error(t, err)
}
