package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerName(t *testing.T) {
	tests := []struct {
		index   int
		threads int
		want    string
	}{
		{1, 1, "TCP-8080-Thread-1"},
		{4, 4, "TCP-8080-Thread-4"},
		{10, 10, "TCP-8080-Thread-10"},
		{7, 16, "TCP-8080-Thread-07"},
		{5, 100, "TCP-8080-Thread-05"},
		{5, 101, "TCP-8080-Thread-005"},
		{5, 1000, "TCP-8080-Thread-005"},
		{5, 1001, "TCP-8080-Thread-0005"},
		{1234, 2048, "TCP-8080-Thread-1234"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, WorkerName("TCP-8080", tt.index, tt.threads))
		})
	}
}

func TestExecutor(t *testing.T) {
	t.Run("NamesWorkers", func(t *testing.T) {
		e := NewExecutor("TCP-80", 12)
		defer e.Close()

		names := e.Names()
		require.Len(t, names, 12)
		assert.Equal(t, "TCP-80-Thread-01", names[0])
		assert.Equal(t, "TCP-80-Thread-12", names[11])
	})

	t.Run("RunsTasks", func(t *testing.T) {
		e := NewExecutor("TCP-80", 4)

		var ran atomic.Int32
		for i := 0; i < 100; i++ {
			require.NoError(t, e.Execute(func() { ran.Add(1) }))
		}

		e.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, e.Wait(ctx))
		assert.Equal(t, int32(100), ran.Load())
	})

	t.Run("RejectsAfterClose", func(t *testing.T) {
		e := NewExecutor("TCP-80", 1)
		e.Close()
		e.Close()

		assert.ErrorIs(t, e.Execute(func() {}), ErrExecutorClosed)
	})

	t.Run("SurvivesPanics", func(t *testing.T) {
		e := NewExecutor("TCP-80", 1)

		done := make(chan struct{})
		require.NoError(t, e.Execute(func() { panic("task failed") }))
		require.NoError(t, e.Execute(func() { close(done) }))

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not survive the panic")
		}
		e.Close()
	})

	t.Run("WaitHonoursContext", func(t *testing.T) {
		e := NewExecutor("TCP-80", 1)
		release := make(chan struct{})
		require.NoError(t, e.Execute(func() { <-release }))
		e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, e.Wait(ctx), context.DeadlineExceeded)
		close(release)
	})

	t.Run("PanicsOnZeroThreads", func(t *testing.T) {
		assert.Panics(t, func() { NewExecutor("TCP-80", 0) })
	})
}
