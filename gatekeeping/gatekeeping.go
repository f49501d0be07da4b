package gatekeeping

import (
	"fmt"
	"github.com/lefinal/rally-server/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"sync"
)

// DefaultMaxConnectionsPerIP is the ceiling used if nothing else is
// configured.
const DefaultMaxConnectionsPerIP = 200

// Guard limits the amount of concurrently open connections per remote ip.
type Guard struct {
	logger *zap.Logger
	max    int
	// openMutex locks open.
	openMutex sync.Mutex
	// open holds the amount of open connections by ip.
	open map[string]int
	// rejected counts all rejections.
	rejected atomic.Uint64
}

// NewGuard creates a Guard that admits at most max connections per ip. If max
// is not positive, DefaultMaxConnectionsPerIP is used.
func NewGuard(logger *zap.Logger, max int) *Guard {
	if max <= 0 {
		max = DefaultMaxConnectionsPerIP
	}
	return &Guard{
		logger: logger,
		max:    max,
		open:   make(map[string]int),
	}
}

// Admit registers a new connection from the given ip. If the ceiling is
// already reached, an error with errors.KindTooManyConnections is returned.
// Each admitted connection must be released via Release.
func (g *Guard) Admit(ip string) error {
	g.openMutex.Lock()
	defer g.openMutex.Unlock()
	if g.open[ip] >= g.max {
		g.rejected.Inc()
		g.logger.Warn("rejecting connection", zap.String("ip", ip), zap.Int("open", g.open[ip]))
		return errors.Error{
			Code:    errors.ErrForbidden,
			Kind:    errors.KindTooManyConnections,
			Message: fmt.Sprintf("too many connections from %s", ip),
			Details: errors.Details{"ip": ip, "max": g.max},
		}
	}
	g.open[ip]++
	return nil
}

// Release unregisters a connection from the given ip that was admitted
// before.
func (g *Guard) Release(ip string) {
	g.openMutex.Lock()
	defer g.openMutex.Unlock()
	n, ok := g.open[ip]
	if !ok {
		g.logger.Warn("release for unknown ip", zap.String("ip", ip))
		return
	}
	if n <= 1 {
		delete(g.open, ip)
		return
	}
	g.open[ip] = n - 1
}

// Count returns the amount of open connections from the given ip.
func (g *Guard) Count(ip string) int {
	g.openMutex.Lock()
	defer g.openMutex.Unlock()
	return g.open[ip]
}

// Total returns the amount of open connections.
func (g *Guard) Total() int {
	g.openMutex.Lock()
	defer g.openMutex.Unlock()
	total := 0
	for _, n := range g.open {
		total += n
	}
	return total
}

// Rejected returns the amount of rejected connection attempts.
func (g *Guard) Rejected() uint64 {
	return g.rejected.Load()
}
