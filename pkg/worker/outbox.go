package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	MaxRetries   int           `envconfig:"OUTBOX_MAX_RETRIES" default:"5"`
	RetryBackoff time.Duration `envconfig:"OUTBOX_RETRY_BACKOFF" default:"30s"`
	// RetainProcessed bounds how long delivered rows stay before pruning.
	RetainProcessed time.Duration `envconfig:"OUTBOX_RETAIN_PROCESSED" default:"168h"`
}

// OutboxProcessor drains pending outbox rows: publishes each event to
// the broker, dispatches the matching email, and marks the row. Failed
// rows are retried with linear backoff until MaxRetries.
type OutboxProcessor struct {
	cfg      OutboxConfig
	workerID string
	outbox   repository.OutboxRepository
	users    repository.UserRepository
	broker   messaging.Broker
	emails   email.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewOutboxProcessor(
	cfg OutboxConfig,
	outbox repository.OutboxRepository,
	users repository.UserRepository,
	broker messaging.Broker,
	emails email.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *OutboxProcessor {
	return &OutboxProcessor{
		cfg:      cfg,
		workerID: "outbox-" + uuid.NewString(),
		outbox:   outbox,
		users:    users,
		broker:   broker,
		emails:   emails,
		logger:   logger,
		metrics:  m,
	}
}

// Start blocks until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	p.logger.Info("outbox processor started", map[string]interface{}{"worker_id": p.workerID})
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopped")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		case <-prune.C:
			if deleted, err := p.outbox.DeleteProcessedBefore(ctx, time.Now().Add(-p.cfg.RetainProcessed)); err != nil {
				p.logger.Error(err, "failed to prune outbox")
			} else if deleted > 0 {
				p.logger.Debug("pruned outbox", map[string]interface{}{"deleted": deleted})
			}
		}
	}
}

func (p *OutboxProcessor) processBatch(ctx context.Context) {
	events, err := p.outbox.ClaimPending(ctx, p.workerID, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error(err, "failed to claim outbox events")
	}
	for _, event := range events {
		start := time.Now()
		if err := p.process(ctx, event); err != nil {
			p.fail(ctx, event, err)
			continue
		}
		if err := p.outbox.MarkProcessed(ctx, event.ID); err != nil {
			p.logger.Error(err, "failed to mark outbox event processed", map[string]interface{}{"event_id": event.ID})
			continue
		}
		if p.metrics != nil {
			p.metrics.OutboxEventsProcessed.Inc()
			p.metrics.OutboxProcessingLatency.Observe(time.Since(start).Seconds())
		}
	}
}

func (p *OutboxProcessor) process(ctx context.Context, event *model.OutboxEvent) error {
	if err := p.broker.Publish(ctx, event.EventType, event.Payload); err != nil {
		return fmt.Errorf("broker publish: %w", err)
	}
	return p.dispatchEmail(ctx, event)
}

func (p *OutboxProcessor) dispatchEmail(ctx context.Context, event *model.OutboxEvent) error {
	if !strings.HasPrefix(event.EventType, "appointment.") {
		return nil
	}
	var payload model.AppointmentEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	patient, err := p.users.Get(ctx, payload.PatientID)
	if err != nil {
		if err == repository.ErrNotFound {
			// Nobody to mail; the broker publish already succeeded.
			return nil
		}
		return fmt.Errorf("load patient: %w", err)
	}

	when := payload.ScheduledAt.Format("Mon, 02 Jan 2006 15:04 MST")
	switch event.EventType {
	case model.EventAppointmentCreated:
		return p.emails.SendAppointmentCreated(ctx, patient.Email, payload.AppointmentNumber, when)
	case model.EventAppointmentConfirmed:
		return p.emails.SendAppointmentConfirmed(ctx, patient.Email, payload.AppointmentNumber, when)
	case model.EventAppointmentCancelled:
		return p.emails.SendAppointmentCancelled(ctx, patient.Email, payload.AppointmentNumber, payload.Reason)
	case model.EventAppointmentReminder:
		return p.emails.SendAppointmentReminder(ctx, patient.Email, payload.AppointmentNumber, when, string(payload.ReminderWindow))
	}
	return nil
}

func (p *OutboxProcessor) fail(ctx context.Context, event *model.OutboxEvent, cause error) {
	p.logger.Error(cause, "failed to process outbox event", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"retries":    event.RetryCount,
	})
	if p.metrics != nil {
		p.metrics.OutboxEventsFailed.Inc()
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}

	var retryAt *time.Time
	if event.RetryCount+1 < p.cfg.MaxRetries {
		t := time.Now().Add(p.cfg.RetryBackoff * time.Duration(event.RetryCount+1))
		retryAt = &t
	}
	if err := p.outbox.MarkFailed(ctx, event.ID, cause.Error(), retryAt); err != nil {
		p.logger.Error(err, "failed to mark outbox event failed", map[string]interface{}{"event_id": event.ID})
	}
}
