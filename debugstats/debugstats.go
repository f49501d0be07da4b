// Package debugstats periodically logs runtime statistics.
package debugstats

import (
	"context"
	"fmt"
	"github.com/go-co-op/gocron/v2"
	"github.com/lefinal/rally-server/errors"
	"go.uber.org/zap"
	"runtime"
	"time"
)

type Config struct {
	// IsEnabled describes whether periodic debug stats logging is desired.
	IsEnabled bool
	// Interval in which to log debug stats.
	Interval time.Duration
	// IncludeStack includes the stack of all goroutines.
	IncludeStack bool
}

// Service logs debug stats on a schedule.
type Service struct {
	logger *zap.Logger
	config Config
}

func NewService(logger *zap.Logger, config Config) (*Service, error) {
	if config.IsEnabled && config.Interval <= 0 {
		return nil, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidData,
			Message: fmt.Sprintf("interval must be positive but was %v", config.Interval),
		}
	}
	return &Service{
		logger: logger,
		config: config,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if !s.config.IsEnabled {
		return nil
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "new scheduler", nil)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() {
			s.logger.Debug(format(collect(), s.config.IncludeStack))
		}),
		gocron.WithName("log-debug-stats"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return errors.NewInternalErrorFromErr(err, "schedule debug stats job", nil)
	}
	s.logger.Debug(fmt.Sprintf("logging system state every %gs", s.config.Interval.Seconds()))
	scheduler.Start()
	<-ctx.Done()
	err = scheduler.Shutdown()
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "shutdown scheduler", nil)
	}
	return nil
}

type stats struct {
	numCPU        int
	numGoroutine  int
	memoryUsageMB uint64
	numGC         uint32
	stack         string
}

func collect() stats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	buf := make([]byte, 1<<16)
	stackSize := runtime.Stack(buf, true)
	return stats{
		numCPU:        runtime.NumCPU(),
		numGoroutine:  runtime.NumGoroutine(),
		memoryUsageMB: memStats.Sys / 1000 / 1000,
		numGC:         memStats.NumGC,
		stack:         string(buf[0:stackSize]),
	}
}

func format(s stats, includeStack bool) string {
	out := fmt.Sprintf(`
----------BEGIN OF DEBUG SYSTEM STATS-----------
       Num CPU: %d
Num goroutines: %d
 Memory in use: %dMB
     GC cycles: %d
`, s.numCPU, s.numGoroutine, s.memoryUsageMB, s.numGC)
	if includeStack {
		out += fmt.Sprintf(`
----------BEGIN OF STACK----------
%s
----------END OF STACK------------
`, s.stack)
	}
	return out + "----------END OF DEBUG SYSTEM STATS-------------\n"
}
