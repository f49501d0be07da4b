package gatekeeping

import (
	"github.com/lefinal/rally-server/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sync"
	"testing"
)

func TestGuardCeiling(t *testing.T) {
	g := NewGuard(zap.NewNop(), 0)
	for i := 0; i < DefaultMaxConnectionsPerIP; i++ {
		require.NoError(t, g.Admit("10.0.0.1"), "connection %d should be admitted", i+1)
	}
	err := g.Admit("10.0.0.1")
	assert.True(t, errors.Is(err, errors.KindTooManyConnections), "201st connection should be rejected")
	assert.NoError(t, g.Admit("10.0.0.2"), "other ips should not be affected")
	assert.EqualValues(t, 1, g.Rejected())

	g.Release("10.0.0.1")
	assert.NoError(t, g.Admit("10.0.0.1"), "should admit again after release")
	assert.Equal(t, DefaultMaxConnectionsPerIP, g.Count("10.0.0.1"))
	assert.Equal(t, DefaultMaxConnectionsPerIP+1, g.Total())
}

func TestGuardRelease(t *testing.T) {
	g := NewGuard(zap.NewNop(), 2)
	require.NoError(t, g.Admit("a"))
	g.Release("a")
	assert.Equal(t, 0, g.Count("a"))
	g.Release("a")
	assert.Equal(t, 0, g.Count("a"), "unknown release should not go negative")
	assert.Equal(t, 0, g.Total())
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard(zap.NewNop(), 50)
	var wg sync.WaitGroup
	var admittedMutex sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit("x") == nil {
				admittedMutex.Lock()
				admitted++
				admittedMutex.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
	assert.EqualValues(t, 50, g.Rejected())
}
