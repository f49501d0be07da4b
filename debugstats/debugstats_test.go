package debugstats

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"testing"
	"time"
)

func TestNewService_invalidInterval(t *testing.T) {
	_, err := NewService(zap.NewNop(), Config{IsEnabled: true})
	assert.Error(t, err)
	_, err = NewService(zap.NewNop(), Config{IsEnabled: false})
	assert.NoError(t, err, "interval should not matter when disabled")
}

func TestService_Run_disabled(t *testing.T) {
	s, err := NewService(zap.NewNop(), Config{})
	require.NoError(t, err)
	done := make(chan error)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case <-time.After(time.Second):
		t.Fatal("should return immediately when disabled")
	case err := <-done:
		assert.NoError(t, err)
	}
}

func TestService_Run_logs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, err := NewService(zap.New(core), Config{IsEnabled: true, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()
	assert.Eventually(t, func() bool {
		return logs.FilterMessageSnippet("DEBUG SYSTEM STATS").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout while waiting for shutdown")
	case err := <-done:
		assert.NoError(t, err)
	}
}

func TestFormat(t *testing.T) {
	s := stats{numCPU: 4, numGoroutine: 12, memoryUsageMB: 20, stack: "goroutine 1"}
	assert.Contains(t, format(s, false), "Num goroutines: 12")
	assert.NotContains(t, format(s, false), "goroutine 1\n")
	assert.Contains(t, format(s, true), "goroutine 1")
}
