package worker

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/vectorstore"
)

const sweepTimeout = 5 * time.Minute

// Sweeper periodically flips expired vector stores that nobody is reading.
type Sweeper struct {
	ctab    *crontab.Crontab
	service *vectorstore.Service
	spec    string
	logger  zerolog.Logger
}

// NewSweeper schedules the expiration sweep with the given cron spec.
func NewSweeper(service *vectorstore.Service, spec string, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		ctab:    crontab.New(),
		service: service,
		spec:    spec,
		logger:  logger.With().Str("component", "expiry-sweeper").Logger(),
	}
}

// Run sweeps once at startup, then on the cron schedule until the context
// is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep()
	if err := s.ctab.AddJob(s.spec, s.sweep); err != nil {
		return err
	}
	<-ctx.Done()
	s.ctab.Shutdown()
	return nil
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	flipped, err := s.service.ExpireSweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiration sweep failed")
		return
	}
	if flipped > 0 {
		s.logger.Info().Int("expired", flipped).Msg("vector stores expired")
	}
}
