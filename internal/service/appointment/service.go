package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	mongorepo "github.com/jwalitptl/consult-api/internal/repository/mongo"
	auditsvc "github.com/jwalitptl/consult-api/internal/service/audit"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	"github.com/jwalitptl/consult-api/internal/service/slot"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const (
	defaultDuration    = 30
	numberMaxAttempts  = 3
	appointmentsPrefix = "APT-"
)

// RefundProcessor issues a refund for a cancelled appointment's
// payment. Implemented by the payment service; wired at startup to
// break the package cycle.
type RefundProcessor interface {
	RefundForCancellation(ctx context.Context, appointmentID, reason string) error
}

type Service struct {
	repo         repository.AppointmentRepository
	doctors      repository.DoctorRepository
	payments     repository.PaymentRepository
	counters     repository.CounterRepository
	allocator    slot.Allocator
	availability availability.Service
	enqueuer     notification.Enqueuer
	auditor      auditsvc.Service
	logger       *logger.Logger
	metrics      *metrics.Metrics
	refunds      RefundProcessor
	now          func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	doctors repository.DoctorRepository,
	payments repository.PaymentRepository,
	counters repository.CounterRepository,
	allocator slot.Allocator,
	avail availability.Service,
	enqueuer notification.Enqueuer,
	auditor auditsvc.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:         repo,
		doctors:      doctors,
		payments:     payments,
		counters:     counters,
		allocator:    allocator,
		availability: avail,
		enqueuer:     enqueuer,
		auditor:      auditor,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// SetRefundProcessor wires the payment collaborator after construction.
func (s *Service) SetRefundProcessor(rp RefundProcessor) { s.refunds = rp }

// SetNow overrides the clock in tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, apperrors.Validation("invalid date, expected YYYY-MM-DD", err)
	}
	startMinute, err := model.ParseClock(req.Time)
	if err != nil {
		return nil, apperrors.Validation("invalid time, expected HH:MM", err)
	}

	profile, err := s.doctors.GetProfile(ctx, req.DoctorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to load doctor profile: %w", err)
	}
	if profile.UnavailableOn(date) {
		return nil, apperrors.Locked("doctor is unavailable on the requested date")
	}

	duration := req.Duration
	if duration == 0 {
		if template := profile.TemplateFor(date.Weekday()); template != nil {
			duration = template.AppointmentDuration
		} else {
			duration = defaultDuration
		}
	}

	now := s.now().UTC()
	scheduledAt := model.CombineDateClock(date, startMinute, profile.Location())
	if !scheduledAt.After(now) {
		return nil, apperrors.Validation("appointment must be scheduled in the future", nil)
	}

	priority := model.Priority(req.Priority)
	if priority == "" {
		priority = model.PriorityRoutine
	}

	apt := &model.Appointment{
		Base:            model.NewBase(now),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: model.DateOnly(date),
		AppointmentTime: model.FormatClock(startMinute),
		StartMinute:     startMinute,
		Duration:        duration,
		ScheduledAt:     scheduledAt,
		AppointmentType: model.AppointmentType(req.AppointmentType),
		Status:          model.AppointmentStatusScheduled,
		Priority:        priority,
		ConsultationFee: profile.ConsultationFee,
		PaymentStatus:   model.AppointmentPaymentPending,
		Notes:           req.Notes,
		LastOperationID: req.OperationID,
	}
	if profile.ConsultationFee == 0 {
		apt.PaymentStatus = model.AppointmentPaymentFree
	}
	if apt.AppointmentType == model.AppointmentTypeVideo {
		apt.RoomID = fmt.Sprintf("room-%s-%s-%d", apt.DoctorID, apt.PatientID, now.Unix())
	}
	if err := apt.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}

	reserved, err := s.allocator.Reserve(ctx, req.DoctorID, date, startMinute, duration)
	if err != nil {
		return nil, err
	}
	defer reserved.Release()

	if err := s.insertNumbered(ctx, apt); err != nil {
		return nil, err
	}

	// A matching per-date override slot carries the booking mark; a
	// template-generated slot has nothing to flip.
	if err := s.doctors.MarkOverrideSlot(ctx, apt.DoctorID, apt.AppointmentDate, apt.AppointmentTime, apt.ID, true); err != nil {
		s.logger.Error(err, "failed to mark override slot booked", map[string]interface{}{
			"appointment_id": apt.ID,
		})
	}

	if apt.PaymentStatus == model.AppointmentPaymentPending {
		payment := &model.Payment{
			Base:          model.NewBase(now),
			UserID:        apt.PatientID,
			PatientID:     apt.PatientID,
			AppointmentID: apt.ID,
			Amount:        apt.ConsultationFee,
			TotalAmount:   apt.ConsultationFee,
			Status:        model.PaymentStatusPending,
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return nil, fmt.Errorf("failed to create pending payment: %w", err)
		}
		apt.PaymentID = payment.ID
		if err := s.repo.Update(ctx, apt); err != nil {
			return nil, fmt.Errorf("failed to link payment: %w", err)
		}
	}

	s.availability.Invalidate(apt.DoctorID, apt.AppointmentDate)
	s.recordAudit(ctx, model.AuditAppointmentCreated, apt, nil)
	s.notifyBestEffort(ctx, model.EventAppointmentCreated, apt, "")
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues("appointment", string(apt.Status)).Inc()
	}
	return apt, nil
}

// insertNumbered assigns a sequence-backed appointment number and
// inserts, taking a fresh number when the unique index rejects it.
func (s *Service) insertNumbered(ctx context.Context, apt *model.Appointment) error {
	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		seq, err := s.counters.Next(ctx, mongorepo.SeqAppointment)
		if err != nil {
			return fmt.Errorf("failed to allocate appointment number: %w", err)
		}
		apt.AppointmentNumber = mongorepo.FormatNumber(appointmentsPrefix, seq)
		err = s.repo.Create(ctx, apt)
		if err == nil {
			return nil
		}
		if err != repository.ErrDuplicateKey {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
	}
	return apperrors.Conflict("slot taken", repository.ErrDuplicateKey)
}

func (s *Service) Get(ctx context.Context, id string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, err
	}
	return apt, nil
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Update(ctx context.Context, id string, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.IsTerminal() {
		return nil, apperrors.Conflict("appointment is in a terminal state", nil)
	}
	if req.Notes != nil {
		apt.Notes = *req.Notes
	}
	if req.Priority != nil {
		apt.Priority = *req.Priority
	}
	if req.FollowUpRequired != nil {
		apt.FollowUpRequired = *req.FollowUpRequired
	}
	if req.FollowUpDate != nil {
		apt.FollowUpDate = req.FollowUpDate
	}
	apt.Touch(s.now())
	if err := s.repo.Update(ctx, apt); err != nil {
		if err == repository.ErrStaleRevision {
			return nil, apperrors.Conflict("appointment was modified concurrently", err)
		}
		return nil, err
	}
	return apt, nil
}

// ChangeStatus drives the state machine from the transport layer.
func (s *Service) ChangeStatus(ctx context.Context, id string, req *model.StatusChangeRequest) (*model.Appointment, error) {
	return s.transition(ctx, id, Event{
		To:          req.Status,
		Reason:      req.Reason,
		By:          req.By,
		Notes:       req.Notes,
		OperationID: req.OperationID,
	})
}

// transition loads, applies and conditionally persists one event,
// retrying once when the revision went stale underneath us.
func (s *Service) transition(ctx context.Context, id string, ev Event) (*model.Appointment, error) {
	for attempt := 0; attempt < 2; attempt++ {
		apt, err := s.repo.Get(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, apperrors.NotFound("appointment", err)
			}
			return nil, err
		}
		prev := apt.Status
		effects, err := Apply(apt, ev, s.now())
		if err != nil {
			return nil, err
		}
		if prev == apt.Status && len(effects) == 0 {
			// Replayed operation or tolerated repeat.
			return apt, nil
		}
		if err := s.repo.Update(ctx, apt); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}
		s.runEffects(ctx, apt, ev, effects)
		return apt, nil
	}
	return nil, apperrors.Conflict("appointment was modified concurrently", repository.ErrStaleRevision)
}

func (s *Service) runEffects(ctx context.Context, apt *model.Appointment, ev Event, effects []Effect) {
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues("appointment", string(apt.Status)).Inc()
	}
	if !apt.BlocksSlot() {
		s.availability.Invalidate(apt.DoctorID, apt.AppointmentDate)
		if err := s.doctors.MarkOverrideSlot(ctx, apt.DoctorID, apt.AppointmentDate, apt.AppointmentTime, apt.ID, false); err != nil {
			s.logger.Error(err, "failed to release override slot", map[string]interface{}{
				"appointment_id": apt.ID,
			})
		}
	}
	for _, effect := range effects {
		switch effect.Kind {
		case EffectAudit:
			s.recordAudit(ctx, effect.AuditAction, apt, map[string]interface{}{"reason": ev.Reason})
		case EffectNotify:
			s.notifyBestEffort(ctx, effect.EventType, apt, ev.Reason)
		case EffectRefundPayment:
			if s.refunds == nil {
				continue
			}
			if err := s.refunds.RefundForCancellation(ctx, apt.ID, ev.Reason); err != nil {
				s.logger.Error(err, "failed to process cancellation refund", map[string]interface{}{
					"appointment_id": apt.ID,
				})
			}
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, apt *model.Appointment, details map[string]interface{}) {
	entry := model.NewAuditLog(action, model.AuditResourceAppointment, apt.ID)
	entry.Details = details
	s.auditor.Record(ctx, entry)
}

func (s *Service) notifyBestEffort(ctx context.Context, eventType string, apt *model.Appointment, reason string) {
	if err := s.enqueuer.EnqueueAppointmentEvent(ctx, eventType, apt, reason); err != nil {
		s.logger.Error(err, "failed to enqueue appointment event", map[string]interface{}{
			"appointment_id": apt.ID,
			"event_type":     eventType,
		})
	}
}

// HandlePaymentCompleted confirms the appointment after its payment
// settles. Called by the payment service; already-confirmed
// appointments are a no-op so settlement replays stay idempotent.
func (s *Service) HandlePaymentCompleted(ctx context.Context, appointmentID, transactionID string) error {
	apt, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return apperrors.NotFound("appointment", err)
		}
		return err
	}
	if apt.Status != model.AppointmentStatusScheduled {
		return nil
	}
	_, err = s.transition(ctx, appointmentID, Event{
		To:          model.AppointmentStatusConfirmed,
		OperationID: "payment:" + transactionID,
	})
	return err
}

// Reschedule books a replacement slot and closes the original with a
// rescheduled transition linking the two.
func (s *Service) Reschedule(ctx context.Context, id string, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	original, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(original.Status, model.AppointmentStatusRescheduled) {
		return nil, apperrors.IllegalTransition("appointment", string(original.Status), string(model.AppointmentStatusRescheduled))
	}
	if req.PatientID == "" {
		req.PatientID = original.PatientID
	}
	if req.DoctorID == "" {
		req.DoctorID = original.DoctorID
	}
	if req.AppointmentType == "" {
		req.AppointmentType = string(original.AppointmentType)
	}

	replacement, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	replacement.OriginalAppointmentID = original.ID
	if err := s.repo.Update(ctx, replacement); err != nil {
		return nil, fmt.Errorf("failed to link replacement appointment: %w", err)
	}

	if _, err := s.transition(ctx, original.ID, Event{
		To:               model.AppointmentStatusRescheduled,
		NewAppointmentID: replacement.ID,
		OperationID:      req.OperationID,
	}); err != nil {
		return nil, err
	}
	return replacement, nil
}

func (s *Service) SoftDelete(ctx context.Context, id, deletedBy string) error {
	err := s.repo.SoftDelete(ctx, id, deletedBy)
	if err == repository.ErrNotFound {
		return apperrors.NotFound("appointment", err)
	}
	return err
}
