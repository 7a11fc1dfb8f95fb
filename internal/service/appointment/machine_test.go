package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

var allStatuses = []model.AppointmentStatus{
	model.AppointmentStatusScheduled,
	model.AppointmentStatusConfirmed,
	model.AppointmentStatusCheckedIn,
	model.AppointmentStatusInProgress,
	model.AppointmentStatusCompleted,
	model.AppointmentStatusCancelled,
	model.AppointmentStatusNoShow,
	model.AppointmentStatusRescheduled,
}

func TestCanTransitionTable(t *testing.T) {
	allowed := map[model.AppointmentStatus]map[model.AppointmentStatus]bool{
		model.AppointmentStatusScheduled: {
			model.AppointmentStatusConfirmed:   true,
			model.AppointmentStatusCheckedIn:   true,
			model.AppointmentStatusCancelled:   true,
			model.AppointmentStatusNoShow:      true,
			model.AppointmentStatusRescheduled: true,
		},
		model.AppointmentStatusConfirmed: {
			model.AppointmentStatusCheckedIn:  true,
			model.AppointmentStatusInProgress: true,
			model.AppointmentStatusCancelled:  true,
			model.AppointmentStatusNoShow:     true,
		},
		model.AppointmentStatusCheckedIn: {
			model.AppointmentStatusInProgress: true,
			model.AppointmentStatusCancelled:  true,
			model.AppointmentStatusNoShow:     true,
		},
		model.AppointmentStatusInProgress: {
			model.AppointmentStatusCompleted: true,
			model.AppointmentStatusCancelled: true,
		},
		model.AppointmentStatusNoShow: {
			model.AppointmentStatusRescheduled: true,
		},
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[from][to]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func machineAppointment(status model.AppointmentStatus) *model.Appointment {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return &model.Appointment{
		Base:            model.NewBase(now),
		PatientID:       "patient-1",
		DoctorID:        "doc-1",
		StartMinute:     9 * 60,
		Duration:        30,
		ScheduledAt:     time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		AppointmentType: model.AppointmentTypeVideo,
		Status:          status,
		Priority:        model.PriorityRoutine,
		PaymentStatus:   model.AppointmentPaymentPending,
	}
}

func TestApplyIllegalTransition(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusCompleted)
	before := *apt
	_, err := Apply(apt, Event{To: model.AppointmentStatusCancelled, Reason: "r", By: model.CancelledByAdmin}, time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
	assert.Equal(t, before.Status, apt.Status, "appointment unchanged on rejection")
}

func TestApplyReplayedOperationIsNoop(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusScheduled)
	apt.LastOperationID = "op-1"
	effects, err := Apply(apt, Event{To: model.AppointmentStatusCancelled, OperationID: "op-1"}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
}

func TestApplyRepeatedCheckInTolerated(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusCheckedIn)
	effects, err := Apply(apt, Event{To: model.AppointmentStatusCheckedIn}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestApplyConfirmMarksPaid(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusScheduled)
	effects, err := Apply(apt, Event{To: model.AppointmentStatusConfirmed, OperationID: "payment:txn-1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)
	assert.Equal(t, model.AppointmentPaymentPaid, apt.PaymentStatus)
	assert.Equal(t, "payment:txn-1", apt.LastOperationID)
	require.Len(t, effects, 2)
	assert.Equal(t, EffectAudit, effects[0].Kind)
	assert.Equal(t, EffectNotify, effects[1].Kind)
}

func TestApplyStartWindow(t *testing.T) {
	scheduled := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		ok   bool
	}{
		{"too early", scheduled.Add(-31 * time.Minute), false},
		{"grace start", scheduled.Add(-30 * time.Minute), true},
		{"on time", scheduled, true},
		{"last minute", scheduled.Add(29 * time.Minute), true},
		{"window closed", scheduled.Add(30 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			apt := machineAppointment(model.AppointmentStatusConfirmed)
			_, err := Apply(apt, Event{To: model.AppointmentStatusInProgress}, tc.now)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, model.AppointmentStatusInProgress, apt.Status)
				require.NotNil(t, apt.ConsultationStartTime)
			} else {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
				assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)
			}
		})
	}
}

func TestApplyStartRecordsWaitTime(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusCheckedIn)
	checkedIn := apt.ScheduledAt.Add(-20 * time.Minute)
	apt.CheckInTime = &checkedIn

	_, err := Apply(apt, Event{To: model.AppointmentStatusInProgress}, apt.ScheduledAt)
	require.NoError(t, err)
	assert.Equal(t, 20, apt.WaitTime)
}

func TestApplyCompleteRecordsDuration(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusInProgress)
	started := apt.ScheduledAt
	apt.ConsultationStartTime = &started

	effects, err := Apply(apt, Event{To: model.AppointmentStatusCompleted, Notes: "all clear"}, started.Add(25*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 25, apt.ActualDuration)
	assert.Equal(t, "all clear", apt.DoctorNotes)
	require.NotNil(t, apt.ConsultationEndTime)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectAudit, effects[0].Kind)
}

func TestApplyCancelRequiresReasonAndActor(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusScheduled)
	_, err := Apply(apt, Event{To: model.AppointmentStatusCancelled}, time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)

	_, err = Apply(apt, Event{To: model.AppointmentStatusCancelled, Reason: "sick"}, time.Now())
	assert.Error(t, err, "actor still missing")
}

func TestApplyCancelPaidEmitsRefund(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusConfirmed)
	apt.PaymentStatus = model.AppointmentPaymentPaid

	effects, err := Apply(apt, Event{
		To:     model.AppointmentStatusCancelled,
		Reason: "patient request",
		By:     model.CancelledByPatient,
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, apt.Status)
	assert.Equal(t, "patient request", apt.CancellationReason)
	assert.Equal(t, model.CancelledByPatient, apt.CancelledBy)
	require.NotNil(t, apt.CancellationDate)

	var kinds []EffectKind
	for _, e := range effects {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EffectKind{EffectRefundPayment, EffectAudit, EffectNotify}, kinds)
}

func TestApplyCancelUnpaidSkipsRefund(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusScheduled)

	effects, err := Apply(apt, Event{
		To:     model.AppointmentStatusCancelled,
		Reason: "conflict",
		By:     model.CancelledByDoctor,
	}, time.Now())
	require.NoError(t, err)
	for _, e := range effects {
		assert.NotEqual(t, EffectRefundPayment, e.Kind)
	}
}

func TestApplyRescheduleRequiresReplacement(t *testing.T) {
	apt := machineAppointment(model.AppointmentStatusScheduled)
	_, err := Apply(apt, Event{To: model.AppointmentStatusRescheduled}, time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = Apply(apt, Event{To: model.AppointmentStatusRescheduled, NewAppointmentID: "apt-2"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "apt-2", apt.RescheduledToID)
}
