package order

import (
	"context"
	"fmt"
	"time"

	"kcd-ticketing/internal/logger"
)

// Sweeper periodically expires orders whose reservation window lapsed
// without payment. It is safe to run alongside live reconciliation: Expire
// re-checks status and window inside its transaction.
type Sweeper struct {
	Service  *OrderService
	Interval time.Duration
	logger   *logger.Logger
}

func NewSweeper(service *OrderService, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{Service: service, Interval: interval, logger: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.logger.Info("SWEEPER", fmt.Sprintf("expiry sweep every %s", s.Interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SWEEPER", "expiry sweep stopped")
			return
		case <-ticker.C:
			expired, err := s.Service.ExpireDue(ctx)
			if err != nil {
				s.logger.Error("SWEEPER", fmt.Sprintf("sweep failed: %v", err))
				continue
			}
			if expired > 0 {
				s.logger.Info("SWEEPER", fmt.Sprintf("expired %d orders", expired))
			}
		}
	}
}
