package app

import (
	"context"
	"fmt"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// appServices holds all services of an App by name.
type appServices map[string]services.Service

// run runs all services until the given context is done or one of them fails.
// A failing service stops all others.
func (s appServices) run(ctx context.Context, logger *zap.Logger) error {
	wg, lifetime := errgroup.WithContext(ctx)
	for name, serviceToRun := range s {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
