package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegister_Validation(t *testing.T) {
	s := New(testLogger())
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Register(Job{Name: "pass:ETX", Spec: "@every 15s", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "pass:ETX", Spec: "@every 15s", Run: noop}), "duplicate")
	assert.Error(t, s.Register(Job{Name: "bad", Spec: "not a cron", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "", Spec: "@every 1s", Run: noop}))
	require.NoError(t, s.Register(Job{Name: "seconds", Spec: "*/5 * * * * *", Run: noop}))

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "pass:ETX", status[0].Name)
}

func TestTrigger(t *testing.T) {
	s := New(testLogger())
	var runs atomic.Int32
	boom := errors.New("boom")

	require.NoError(t, s.Register(Job{Name: "ok", Spec: "@every 1h", Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Register(Job{Name: "fail", Spec: "@every 1h", Run: func(ctx context.Context) error {
		return boom
	}}))

	require.NoError(t, s.Trigger("ok"))
	assert.Equal(t, int32(1), runs.Load())
	assert.ErrorIs(t, s.Trigger("fail"), boom)
	assert.Error(t, s.Trigger("missing"))

	for _, st := range s.Status() {
		if st.Name == "fail" {
			assert.Equal(t, "boom", st.LastError)
			assert.Equal(t, 1, st.Runs)
		}
	}
}

func TestTrigger_NoOverlap(t *testing.T) {
	s := New(testLogger())
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, s.Register(Job{Name: "slow", Spec: "@every 1h", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))

	done := make(chan error, 1)
	go func() { done <- s.Trigger("slow") }()
	<-started

	assert.ErrorIs(t, s.Trigger("slow"), ErrJobRunning)
	close(release)
	assert.NoError(t, <-done)
}

func TestTimeout(t *testing.T) {
	s := New(testLogger())
	require.NoError(t, s.Register(Job{Name: "hang", Spec: "@every 1h", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	assert.ErrorIs(t, s.Trigger("hang"), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	s := New(testLogger())
	var runs atomic.Int32
	require.NoError(t, s.Register(Job{Name: "tick", Spec: "@every 1s", Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
