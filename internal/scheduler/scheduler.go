package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule — ежедневно в 21:00.
const DefaultSchedule = "0 21 * * *"

// Scheduler управляет запланированными задачами
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	ctx        context.Context
	cancel     context.CancelFunc
	reportFunc func(ctx context.Context) error
	log        zerolog.Logger
}

// New создает планировщик; schedule — стандартное cron-выражение из пяти полей
func New(schedule string, loc *time.Location, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// SetReportFunction устанавливает функцию для генерации отчетов
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	if s.reportFunc == nil {
		s.log.Warn().Msg("report function not set, scheduler will not generate digests")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.log.Info().Str("schedule", s.schedule).Msg("daily digest triggered")
		if err := s.RunNow(); err != nil {
			s.log.Error().Err(err).Msg("daily digest failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("scheduler started")
	return nil
}

// RunNow выполняет отчет вне расписания
func (s *Scheduler) RunNow() error {
	if s.reportFunc == nil {
		return errors.New("report function not set")
	}
	return s.reportFunc(s.ctx)
}

// Stop останавливает планировщик и ждет выполняющиеся задачи
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info().Msg("scheduler stopped")
}

// IsRunning проверяет, запущен ли планировщик
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
