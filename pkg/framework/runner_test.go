package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCloser struct {
	closed int
}

func (c *testCloser) Close() error {
	c.closed++
	return nil
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())

	e1 := errors.New("e1")
	require.Equal(t, e1, errs.Add(e1).Aggregate())

	errs.Add(nil, errors.New("e2"))
	err := errs.Aggregate()
	require.Error(t, err)
	assert.Equal(t, "2 errors: e1; e2", err.Error())
}

func TestRunnerWait(t *testing.T) {
	failure := errors.New("failed")
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), NamedRun("failing", RunFunc(func(context.Context) error {
		cancel()
		return failure
	})))
	require.Len(t, r.Runners, 2)
	assert.Equal(t, failure, r.Wait())
}

func TestRunWithContextCloser(t *testing.T) {
	c := &testCloser{}
	require.NoError(t, RunWithContextCloser(context.Background(), c, func() error { return nil }))
	assert.Equal(t, 1, c.closed)

	c = &testCloser{}
	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- RunWithContextCloser(ctx, closerFunc(func() error {
			c.closed++
			close(unblock)
			return nil
		}), func() error {
			<-unblock
			return errors.New("closed")
		})
	}()
	cancel()
	assert.Equal(t, context.Canceled, <-done)
	assert.Equal(t, 1, c.closed)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
