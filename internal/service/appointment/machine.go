package appointment

import (
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

// StartWindowGrace is how early a consultation may start relative to
// the scheduled instant.
const StartWindowGrace = 30 * time.Minute

// transitions maps each status to its legal exits. Terminal statuses
// map to an empty set.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusScheduled: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCheckedIn,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusCheckedIn,
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	},
	model.AppointmentStatusCheckedIn: {
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	},
	model.AppointmentStatusInProgress: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusCompleted: {},
	model.AppointmentStatusCancelled: {},
	model.AppointmentStatusNoShow: {
		model.AppointmentStatusRescheduled,
	},
	model.AppointmentStatusRescheduled: {},
}

// CanTransition reports whether the table permits from -> to.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Event drives one appointment transition.
type Event struct {
	To     model.AppointmentStatus
	Reason string
	By     model.CancelledBy
	Notes  string

	// OperationID makes retried transitions idempotent.
	OperationID string

	// NewAppointmentID links the replacement when To is rescheduled.
	NewAppointmentID string
}

// EffectKind names a side effect the service must execute after the
// transition persists.
type EffectKind int

const (
	EffectRefundPayment EffectKind = iota + 1
	EffectNotify
	EffectAudit
)

type Effect struct {
	Kind        EffectKind
	EventType   string
	AuditAction string
}

func notify(eventType string) Effect {
	return Effect{Kind: EffectNotify, EventType: eventType}
}

func audit(action string) Effect {
	return Effect{Kind: EffectAudit, AuditAction: action}
}

// Apply mutates the appointment in place according to the transition
// table and returns the side effects the caller must execute. The
// appointment is unchanged when an error is returned. A replayed
// operation ID is a no-op with no effects.
func Apply(apt *model.Appointment, ev Event, now time.Time) ([]Effect, error) {
	if ev.OperationID != "" && apt.LastOperationID == ev.OperationID {
		return nil, nil
	}
	if apt.Status == ev.To && ev.To == model.AppointmentStatusCheckedIn {
		// Repeated check-in is tolerated.
		return nil, nil
	}
	if !CanTransition(apt.Status, ev.To) {
		return nil, apperrors.IllegalTransition("appointment", string(apt.Status), string(ev.To))
	}

	var effects []Effect
	switch ev.To {
	case model.AppointmentStatusConfirmed:
		apt.PaymentStatus = model.AppointmentPaymentPaid
		effects = append(effects,
			audit(model.AuditAppointmentConfirmed),
			notify(model.EventAppointmentConfirmed),
		)

	case model.AppointmentStatusCheckedIn:
		t := now.UTC()
		apt.CheckInTime = &t
		effects = append(effects, audit(model.AuditAppointmentCheckedIn))

	case model.AppointmentStatusInProgress:
		windowStart := apt.ScheduledAt.Add(-StartWindowGrace)
		windowEnd := apt.ScheduledAt.Add(time.Duration(apt.Duration) * time.Minute)
		if now.Before(windowStart) || !now.Before(windowEnd) {
			return nil, apperrors.Conflict("consultation start is outside the allowed window", nil)
		}
		t := now.UTC()
		apt.ConsultationStartTime = &t
		if apt.CheckInTime != nil {
			apt.WaitTime = int(t.Sub(*apt.CheckInTime).Minutes())
		}
		effects = append(effects, audit(model.AuditAppointmentStarted))

	case model.AppointmentStatusCompleted:
		t := now.UTC()
		apt.ConsultationEndTime = &t
		if apt.ConsultationStartTime != nil {
			apt.ActualDuration = int(t.Sub(*apt.ConsultationStartTime).Minutes())
		}
		if ev.Notes != "" {
			apt.DoctorNotes = ev.Notes
		}
		effects = append(effects, audit(model.AuditAppointmentCompleted))

	case model.AppointmentStatusCancelled:
		if ev.Reason == "" || ev.By == "" {
			return nil, apperrors.Validation("cancellation requires a reason and an actor", nil)
		}
		t := now.UTC()
		apt.CancellationReason = ev.Reason
		apt.CancelledBy = ev.By
		apt.CancellationDate = &t
		if apt.PaymentStatus == model.AppointmentPaymentPaid {
			effects = append(effects, Effect{Kind: EffectRefundPayment})
		}
		effects = append(effects,
			audit(model.AuditAppointmentCancelled),
			notify(model.EventAppointmentCancelled),
		)

	case model.AppointmentStatusNoShow:
		effects = append(effects, audit(model.AuditAppointmentNoShow))

	case model.AppointmentStatusRescheduled:
		if ev.NewAppointmentID == "" {
			return nil, apperrors.Validation("reschedule requires the replacement appointment id", nil)
		}
		apt.RescheduledToID = ev.NewAppointmentID
		effects = append(effects, audit(model.AuditAppointmentRescheduled))

	default:
		return nil, apperrors.IllegalTransition("appointment", string(apt.Status), string(ev.To))
	}

	apt.Status = ev.To
	if ev.OperationID != "" {
		apt.LastOperationID = ev.OperationID
	}
	apt.Touch(now)
	return effects, nil
}
