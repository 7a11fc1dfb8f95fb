package notification

import (
	"context"
	"fmt"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

// Enqueuer writes durable outbox rows for downstream delivery. Rows
// are written alongside the state change that produced them and
// drained asynchronously by the worker.
type Enqueuer interface {
	EnqueueAppointmentEvent(ctx context.Context, eventType string, apt *model.Appointment, reason string) error
	EnqueueReminderEvent(ctx context.Context, apt *model.Appointment, window model.ReminderWindow) error
	EnqueueConsultationEvent(ctx context.Context, eventType string, c *model.Consultation) error
	EnqueuePaymentEvent(ctx context.Context, eventType string, p *model.Payment) error
}

type enqueuer struct {
	outbox repository.OutboxRepository
}

func NewEnqueuer(outbox repository.OutboxRepository) Enqueuer {
	return &enqueuer{outbox: outbox}
}

func (e *enqueuer) EnqueueAppointmentEvent(ctx context.Context, eventType string, apt *model.Appointment, reason string) error {
	payload := model.AppointmentEventPayload{
		AppointmentID:     apt.ID,
		AppointmentNumber: apt.AppointmentNumber,
		PatientID:         apt.PatientID,
		DoctorID:          apt.DoctorID,
		Status:            apt.Status,
		ScheduledAt:       apt.ScheduledAt,
		Reason:            reason,
	}
	return e.enqueue(ctx, eventType, payload)
}

func (e *enqueuer) EnqueueReminderEvent(ctx context.Context, apt *model.Appointment, window model.ReminderWindow) error {
	payload := model.AppointmentEventPayload{
		AppointmentID:     apt.ID,
		AppointmentNumber: apt.AppointmentNumber,
		PatientID:         apt.PatientID,
		DoctorID:          apt.DoctorID,
		Status:            apt.Status,
		ScheduledAt:       apt.ScheduledAt,
		ReminderWindow:    window,
	}
	return e.enqueue(ctx, model.EventAppointmentReminder, payload)
}

func (e *enqueuer) EnqueueConsultationEvent(ctx context.Context, eventType string, c *model.Consultation) error {
	payload := model.ConsultationEventPayload{
		ConsultationID:     c.ID,
		ConsultationNumber: c.ConsultationNumber,
		RoomID:             c.RoomID,
		PatientID:          c.PatientID,
		DoctorID:           c.DoctorID,
		Status:             c.Status,
	}
	return e.enqueue(ctx, eventType, payload)
}

func (e *enqueuer) EnqueuePaymentEvent(ctx context.Context, eventType string, p *model.Payment) error {
	payload := model.PaymentEventPayload{
		PaymentID:     p.ID,
		AppointmentID: p.AppointmentID,
		PatientID:     p.PatientID,
		Status:        p.Status,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
	}
	return e.enqueue(ctx, eventType, payload)
}

func (e *enqueuer) enqueue(ctx context.Context, eventType string, payload interface{}) error {
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to build outbox event: %w", err)
	}
	return e.outbox.Create(ctx, event)
}
