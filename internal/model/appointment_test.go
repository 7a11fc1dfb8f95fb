package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validAppointment() *Appointment {
	return &Appointment{
		Base:            NewBase(time.Now()),
		PatientID:       "patient-1",
		DoctorID:        "doctor-1",
		StartMinute:     9 * 60,
		Duration:        30,
		AppointmentType: AppointmentTypeVideo,
		Status:          AppointmentStatusScheduled,
		Priority:        PriorityRoutine,
	}
}

func TestAppointmentOverlaps(t *testing.T) {
	apt := validAppointment() // 09:00-09:30

	assert.True(t, apt.Overlaps(9*60, 30), "identical window")
	assert.True(t, apt.Overlaps(9*60+15, 30), "partial tail overlap")
	assert.True(t, apt.Overlaps(8*60+45, 30), "partial head overlap")
	assert.False(t, apt.Overlaps(9*60+30, 30), "adjacent after, half-open")
	assert.False(t, apt.Overlaps(8*60+30, 30), "adjacent before, half-open")
	assert.False(t, apt.Overlaps(11*60, 30), "disjoint")
}

func TestAppointmentBlocksSlot(t *testing.T) {
	apt := validAppointment()
	blocking := []AppointmentStatus{
		AppointmentStatusScheduled,
		AppointmentStatusConfirmed,
		AppointmentStatusCheckedIn,
		AppointmentStatusInProgress,
		AppointmentStatusCompleted,
	}
	for _, st := range blocking {
		apt.Status = st
		assert.True(t, apt.BlocksSlot(), "status %s", st)
	}
	freeing := []AppointmentStatus{
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
		AppointmentStatusRescheduled,
	}
	for _, st := range freeing {
		apt.Status = st
		assert.False(t, apt.BlocksSlot(), "status %s", st)
	}
}

func TestAppointmentIsTerminal(t *testing.T) {
	apt := validAppointment()
	for _, st := range []AppointmentStatus{AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusRescheduled} {
		apt.Status = st
		assert.True(t, apt.IsTerminal(), "status %s", st)
	}
	for _, st := range []AppointmentStatus{AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusNoShow} {
		apt.Status = st
		assert.False(t, apt.IsTerminal(), "status %s", st)
	}
}

func TestAppointmentValidate(t *testing.T) {
	apt := validAppointment()
	assert.NoError(t, apt.Validate())

	missing := validAppointment()
	missing.PatientID = ""
	assert.Error(t, missing.Validate())

	short := validAppointment()
	short.Duration = 10
	assert.Error(t, short.Validate())

	long := validAppointment()
	long.Duration = 180
	assert.Error(t, long.Validate())

	early := validAppointment()
	early.StartMinute = 5 * 60
	assert.Error(t, early.Validate(), "before booking window")

	late := validAppointment()
	late.StartMinute = 21*60 + 45
	assert.Error(t, late.Validate(), "spills past booking window end")

	edge := validAppointment()
	edge.StartMinute = 21*60 + 30
	assert.NoError(t, edge.Validate(), "ends exactly at window end")

	badType := validAppointment()
	badType.AppointmentType = "telepathy"
	assert.Error(t, badType.Validate())

	badFee := validAppointment()
	badFee.ConsultationFee = -1
	assert.Error(t, badFee.Validate())
}

func TestReminderWindowOffset(t *testing.T) {
	assert.Equal(t, 24*time.Hour, Reminder24H.Offset())
	assert.Equal(t, 2*time.Hour, Reminder2H.Offset())
	assert.Equal(t, 30*time.Minute, Reminder30M.Offset())
	assert.Equal(t, time.Duration(0), ReminderWindow("6h").Offset())
}

func TestReminderSent(t *testing.T) {
	apt := validAppointment()
	assert.False(t, apt.ReminderSent(Reminder24H))

	apt.RemindersSent.H24 = true
	assert.True(t, apt.ReminderSent(Reminder24H))
	assert.False(t, apt.ReminderSent(Reminder2H))
	assert.False(t, apt.ReminderSent(Reminder30M))

	// Unknown windows read as already sent so nothing is enqueued.
	assert.True(t, apt.ReminderSent(ReminderWindow("6h")))
}
