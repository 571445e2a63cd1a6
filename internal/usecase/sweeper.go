package usecase

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes expired confirmations. The registry already
// enforces expiry lazily; the sweeper just keeps the map from accumulating
// entries nobody will ever touch.
type Sweeper struct {
	cron     *cron.Cron
	registry *ConfirmationRegistry
	logger   *slog.Logger
}

// NewSweeper creates a sweeper on the given cron schedule, e.g. "@every 1m".
func NewSweeper(schedule string, registry *ConfirmationRegistry, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:     cron.New(),
		registry: registry,
		logger:   logger,
	}
	_, err := s.cron.AddFunc(schedule, func() {
		if removed := registry.CleanupExpired(); removed > 0 {
			logger.Info("swept expired confirmations", "count", removed)
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the background schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
