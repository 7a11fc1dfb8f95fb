package payment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	mongorepo "github.com/jwalitptl/consult-api/internal/repository/mongo"
	"github.com/jwalitptl/consult-api/internal/service/audit"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const (
	invoicePrefix     = "INV"
	numberMaxAttempts = 3
	amountEpsilon     = 0.005
)

// AppointmentConfirmer is the completion callback into the appointment
// service: a settled payment confirms its appointment. Wired at
// startup to break the package cycle.
type AppointmentConfirmer interface {
	HandlePaymentCompleted(ctx context.Context, appointmentID, transactionID string) error
}

type Service struct {
	repo      repository.PaymentRepository
	counters  repository.CounterRepository
	enqueuer  notification.Enqueuer
	auditor   audit.Service
	logger    *logger.Logger
	metrics   *metrics.Metrics
	confirmer AppointmentConfirmer
	now       func() time.Time
}

func NewService(
	repo repository.PaymentRepository,
	counters repository.CounterRepository,
	enqueuer notification.Enqueuer,
	auditor audit.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		counters: counters,
		enqueuer: enqueuer,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// SetConfirmer wires the appointment collaborator after construction.
func (s *Service) SetConfirmer(c AppointmentConfirmer) { s.confirmer = c }

// SetNow overrides the clock in tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

func (s *Service) Get(ctx context.Context, id string) (*model.Payment, error) {
	return s.get(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID string) (*model.Payment, error) {
	p, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("payment", err)
		}
		return nil, err
	}
	return p, nil
}

// MarkProcessing moves a pending payment into the gateway's hands.
func (s *Service) MarkProcessing(ctx context.Context, id string) (*model.Payment, error) {
	return s.transition(ctx, id, func(p *model.Payment, now time.Time) error {
		if !p.CanTransition(model.PaymentStatusProcessing) {
			return apperrors.IllegalTransition("payment", string(p.Status), string(model.PaymentStatusProcessing))
		}
		p.Status = model.PaymentStatusProcessing
		return nil
	})
}

// MarkCompleted settles the payment. Replays with an already-recorded
// transaction id are no-ops, so gateway retries stay safe.
func (s *Service) MarkCompleted(ctx context.Context, id, transactionID, method string) (*model.Payment, error) {
	if transactionID == "" {
		return nil, apperrors.Validation("transaction id is required", nil)
	}
	if existing, err := s.repo.FindByTransactionID(ctx, transactionID); err == nil {
		return existing, nil
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	p, err := s.transition(ctx, id, func(p *model.Payment, now time.Time) error {
		if !p.CanTransition(model.PaymentStatusCompleted) {
			return apperrors.IllegalTransition("payment", string(p.Status), string(model.PaymentStatusCompleted))
		}
		t := now.UTC()
		p.Status = model.PaymentStatusCompleted
		p.TransactionID = transactionID
		p.Method = method
		p.CompletedAt = &t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.attachInvoice(ctx, p); err != nil {
		s.logger.Error(err, "failed to attach invoice", map[string]interface{}{"payment_id": p.ID})
	}

	s.recordAudit(ctx, model.AuditPaymentCompleted, p, map[string]interface{}{"transaction_id": transactionID})
	s.notifyBestEffort(ctx, model.EventPaymentCompleted, p)

	if s.confirmer != nil && p.AppointmentID != "" {
		if err := s.confirmer.HandlePaymentCompleted(ctx, p.AppointmentID, transactionID); err != nil {
			s.logger.Error(err, "failed to confirm appointment after payment", map[string]interface{}{
				"payment_id":     p.ID,
				"appointment_id": p.AppointmentID,
			})
		}
	}
	return p, nil
}

func (s *Service) MarkFailed(ctx context.Context, id, reason string) (*model.Payment, error) {
	p, err := s.transition(ctx, id, func(p *model.Payment, now time.Time) error {
		if !p.CanTransition(model.PaymentStatusFailed) {
			return apperrors.IllegalTransition("payment", string(p.Status), string(model.PaymentStatusFailed))
		}
		p.Status = model.PaymentStatusFailed
		p.FailureReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, model.AuditPaymentFailed, p, map[string]interface{}{"reason": reason})
	return p, nil
}

// Refund records a refund for up to the remaining refundable amount.
// A zero amount refunds the full remainder.
func (s *Service) Refund(ctx context.Context, id string, amount float64, reason string) (*model.Payment, error) {
	if amount < 0 {
		return nil, apperrors.Validation("refund amount must not be negative", nil)
	}
	p, err := s.transition(ctx, id, func(p *model.Payment, now time.Time) error {
		if !p.Refundable(now) {
			return apperrors.Conflict("payment is not refundable", nil)
		}
		remaining := p.RemainingRefundable()
		want := amount
		if want == 0 {
			want = remaining
		}
		if want > remaining+amountEpsilon {
			return apperrors.Validation(fmt.Sprintf("refund exceeds remaining refundable amount %.2f", remaining), nil)
		}
		p.Refunds = append(p.Refunds, model.Refund{
			Amount:        want,
			Reason:        reason,
			TransactionID: uuid.NewString(),
			RefundedAt:    now.UTC(),
		})
		if math.Abs(p.RemainingRefundable()) <= amountEpsilon {
			p.Status = model.PaymentStatusRefunded
		} else {
			p.Status = model.PaymentStatusPartiallyRefunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, model.AuditPaymentRefunded, p, map[string]interface{}{
		"reason":   reason,
		"refunded": p.RefundedTotal(),
	})
	s.notifyBestEffort(ctx, model.EventPaymentRefunded, p)
	return p, nil
}

// RefundForCancellation refunds the appointment's payment in full when
// the refund window still permits it. Outside the window the
// cancellation stands and the payment is left as a record.
func (s *Service) RefundForCancellation(ctx context.Context, appointmentID, reason string) error {
	p, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil
		}
		return err
	}
	if !p.Refundable(s.now()) {
		s.logger.Warn("cancelled appointment payment outside refund window", map[string]interface{}{
			"payment_id":     p.ID,
			"appointment_id": appointmentID,
		})
		return nil
	}
	_, err = s.Refund(ctx, p.ID, 0, reason)
	return err
}

// transition loads, mutates and conditionally persists, retrying once
// on a stale revision.
func (s *Service) transition(ctx context.Context, id string, mutate func(*model.Payment, time.Time) error) (*model.Payment, error) {
	for attempt := 0; attempt < 2; attempt++ {
		p, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if err := mutate(p, now); err != nil {
			return nil, err
		}
		p.Touch(now)
		if err := s.repo.Update(ctx, p); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.TransitionsTotal.WithLabelValues("payment", string(p.Status)).Inc()
		}
		return p, nil
	}
	return nil, apperrors.Conflict("payment was modified concurrently", repository.ErrStaleRevision)
}

// attachInvoice numbers the settled payment, regenerating on a unique
// index collision.
func (s *Service) attachInvoice(ctx context.Context, p *model.Payment) error {
	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		seq, err := s.counters.Next(ctx, mongorepo.SeqInvoice)
		if err != nil {
			return fmt.Errorf("failed to allocate invoice number: %w", err)
		}
		p.Invoice = model.Invoice{
			InvoiceNumber: mongorepo.FormatNumber(invoicePrefix, seq),
			InvoiceDate:   s.now().UTC(),
			LineItems: []model.LineItem{{
				Description: "Consultation fee",
				Quantity:    1,
				UnitPrice:   p.Amount,
				Total:       p.Amount,
			}},
		}
		p.Touch(s.now())
		err = s.repo.Update(ctx, p)
		if err == nil {
			return nil
		}
		if err != repository.ErrDuplicateKey {
			return err
		}
	}
	return fmt.Errorf("failed to allocate a unique invoice number: %w", repository.ErrDuplicateKey)
}

func (s *Service) get(ctx context.Context, id string) (*model.Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("payment", err)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, p *model.Payment, details map[string]interface{}) {
	entry := model.NewAuditLog(action, model.AuditResourcePayment, p.ID)
	entry.Details = details
	s.auditor.Record(ctx, entry)
}

func (s *Service) notifyBestEffort(ctx context.Context, eventType string, p *model.Payment) {
	if err := s.enqueuer.EnqueuePaymentEvent(ctx, eventType, p); err != nil {
		s.logger.Error(err, "failed to enqueue payment event", map[string]interface{}{
			"payment_id": p.ID,
			"event_type": eventType,
		})
	}
}
