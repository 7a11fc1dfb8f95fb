package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type ReminderConfig struct {
	ScanInterval time.Duration `envconfig:"REMINDER_SCAN_INTERVAL" default:"1m"`
	BatchSize    int           `envconfig:"REMINDER_BATCH_SIZE" default:"100"`
}

var reminderWindows = []model.ReminderWindow{
	model.Reminder24H,
	model.Reminder2H,
	model.Reminder30M,
}

// ReminderScanner finds appointments whose reminder trigger has passed
// and whose flag is unset, enqueues the notification, then flips the
// flag. The flag only flips after the outbox row is durably written,
// so a crash re-sends rather than drops.
type ReminderScanner struct {
	cfg          ReminderConfig
	appointments repository.AppointmentRepository
	enqueuer     notification.Enqueuer
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewReminderScanner(
	cfg ReminderConfig,
	appointments repository.AppointmentRepository,
	enqueuer notification.Enqueuer,
	logger *logger.Logger,
	m *metrics.Metrics,
) *ReminderScanner {
	return &ReminderScanner{
		cfg:          cfg,
		appointments: appointments,
		enqueuer:     enqueuer,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// SetNow overrides the clock in tests.
func (s *ReminderScanner) SetNow(now func() time.Time) { s.now = now }

// Start blocks until ctx is cancelled.
func (s *ReminderScanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.logger.Info("reminder scanner started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan runs one pass over all reminder windows.
func (s *ReminderScanner) Scan(ctx context.Context) {
	now := s.now().UTC()
	for _, window := range reminderWindows {
		due, err := s.appointments.ListDueReminders(ctx, window, now, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error(err, "failed to list due reminders", map[string]interface{}{"window": string(window)})
			continue
		}
		for _, apt := range due {
			if err := s.enqueuer.EnqueueReminderEvent(ctx, apt, window); err != nil {
				s.logger.Error(err, "failed to enqueue reminder", map[string]interface{}{
					"appointment_id": apt.ID,
					"window":         string(window),
				})
				continue
			}
			if err := s.appointments.SetReminderSent(ctx, apt.ID, window); err != nil {
				s.logger.Error(err, "failed to flip reminder flag", map[string]interface{}{
					"appointment_id": apt.ID,
					"window":         string(window),
				})
				continue
			}
			if s.metrics != nil {
				s.metrics.RemindersEnqueued.WithLabelValues(string(window)).Inc()
			}
		}
	}
}
