package imports

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"go-mis/internal/config"
)

// Sweeper cancels sessions that sat idle past the retention window, so
// abandoned uploads stop blocking the duplicate-hash guard.
type Sweeper struct {
	SessionRepo SessionRepository
	Config      *config.Config
	Logger      *zap.Logger

	cron *cron.Cron
}

func NewSweeper(sessionRepo SessionRepository, cfg *config.Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		SessionRepo: sessionRepo,
		Config:      cfg,
		Logger:      logger,
	}
}

func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every 1h", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-time.Duration(s.Config.SessionTTLHours) * time.Hour)
	cancelled, err := s.SessionRepo.CancelIdleBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("session retention sweep failed", zap.Error(err))
		return
	}
	if cancelled > 0 {
		s.Logger.Info("cancelled idle import sessions",
			zap.Int64("count", cancelled), zap.Time("cutoff", cutoff))
	}
}
