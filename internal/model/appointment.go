package model

import (
	"fmt"
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusCheckedIn   AppointmentStatus = "checked-in"
	AppointmentStatusInProgress  AppointmentStatus = "in-progress"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusNoShow      AppointmentStatus = "no-show"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
)

type AppointmentType string

const (
	AppointmentTypeInPerson AppointmentType = "in-person"
	AppointmentTypeVideo    AppointmentType = "video"
	AppointmentTypePhone    AppointmentType = "phone"
	AppointmentTypeChat     AppointmentType = "chat"
)

type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// AppointmentPaymentStatus is the payment summary carried on the
// appointment itself; the Payment entity holds the full ledger.
type AppointmentPaymentStatus string

const (
	AppointmentPaymentPending  AppointmentPaymentStatus = "pending"
	AppointmentPaymentPaid     AppointmentPaymentStatus = "paid"
	AppointmentPaymentFailed   AppointmentPaymentStatus = "failed"
	AppointmentPaymentRefunded AppointmentPaymentStatus = "refunded"
	AppointmentPaymentFree     AppointmentPaymentStatus = "free"
)

type CancelledBy string

const (
	CancelledByPatient CancelledBy = "patient"
	CancelledByDoctor  CancelledBy = "doctor"
	CancelledBySystem  CancelledBy = "system"
	CancelledByAdmin   CancelledBy = "admin"
)

// Booking window: appointments must start between 06:00 and 22:00
// doctor-local.
const (
	BookingWindowStartMinute = 6 * 60
	BookingWindowEndMinute   = 22 * 60
)

// RemindersSent tracks which reminder windows have been acknowledged by
// the notification collaborator.
type RemindersSent struct {
	H24 bool `json:"24h" bson:"h24"`
	H2  bool `json:"2h" bson:"h2"`
	M30 bool `json:"30m" bson:"m30"`
}

// ReminderWindow names one of the reminder trigger offsets.
type ReminderWindow string

const (
	Reminder24H ReminderWindow = "24h"
	Reminder2H  ReminderWindow = "2h"
	Reminder30M ReminderWindow = "30m"
)

// Offset returns how long before the appointment the window triggers.
func (w ReminderWindow) Offset() time.Duration {
	switch w {
	case Reminder24H:
		return 24 * time.Hour
	case Reminder2H:
		return 2 * time.Hour
	case Reminder30M:
		return 30 * time.Minute
	}
	return 0
}

type Appointment struct {
	Base
	AppointmentNumber string `json:"appointment_number" bson:"appointment_number"`
	PatientID         string `json:"patient_id" bson:"patient_id"`
	DoctorID          string `json:"doctor_id" bson:"doctor_id"`

	// AppointmentDate is the calendar date at midnight UTC;
	// AppointmentTime/StartMinute are the doctor-local wall time.
	// ScheduledAt is the resolved absolute UTC instant.
	AppointmentDate time.Time `json:"appointment_date" bson:"appointment_date"`
	AppointmentTime string    `json:"appointment_time" bson:"appointment_time"`
	StartMinute     int       `json:"start_minute" bson:"start_minute"`
	Duration        int       `json:"duration" bson:"duration"`
	ScheduledAt     time.Time `json:"scheduled_at" bson:"scheduled_at"`

	AppointmentType AppointmentType          `json:"appointment_type" bson:"appointment_type"`
	Status          AppointmentStatus        `json:"status" bson:"status"`
	Priority        Priority                 `json:"priority" bson:"priority"`
	ConsultationFee float64                  `json:"consultation_fee" bson:"consultation_fee"`
	PaymentStatus   AppointmentPaymentStatus `json:"payment_status" bson:"payment_status"`
	PaymentID       string                   `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	RoomID          string                   `json:"room_id,omitempty" bson:"room_id,omitempty"`
	Notes           string                   `json:"notes,omitempty" bson:"notes,omitempty"`
	DoctorNotes     string                   `json:"doctor_notes,omitempty" bson:"doctor_notes,omitempty"`

	CancellationReason string      `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancelledBy        CancelledBy `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancellationDate   *time.Time  `json:"cancellation_date,omitempty" bson:"cancellation_date,omitempty"`

	CheckInTime           *time.Time `json:"check_in_time,omitempty" bson:"check_in_time,omitempty"`
	ConsultationStartTime *time.Time `json:"consultation_start_time,omitempty" bson:"consultation_start_time,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultation_end_time,omitempty" bson:"consultation_end_time,omitempty"`
	ActualDuration        int        `json:"actual_duration,omitempty" bson:"actual_duration,omitempty"`
	WaitTime              int        `json:"wait_time,omitempty" bson:"wait_time,omitempty"`

	FollowUpRequired      bool       `json:"follow_up_required,omitempty" bson:"follow_up_required,omitempty"`
	FollowUpDate          *time.Time `json:"follow_up_date,omitempty" bson:"follow_up_date,omitempty"`
	OriginalAppointmentID string     `json:"original_appointment_id,omitempty" bson:"original_appointment_id,omitempty"`
	RescheduledToID       string     `json:"rescheduled_to_id,omitempty" bson:"rescheduled_to_id,omitempty"`

	RemindersSent RemindersSent `json:"reminders_sent" bson:"reminders_sent"`

	// LastOperationID makes transitions idempotent on retry.
	LastOperationID string `json:"-" bson:"last_operation_id,omitempty"`
}

// EndMinute is the exclusive end of the slot interval.
func (a *Appointment) EndMinute() int {
	return a.StartMinute + a.Duration
}

// IsTerminal reports whether the status has no outgoing transitions.
func (a *Appointment) IsTerminal() bool {
	switch a.Status {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusRescheduled:
		return true
	}
	return false
}

// BlocksSlot reports whether the appointment still occupies its slot
// for conflict purposes. Cancelled, no-show and rescheduled
// appointments free their slot.
func (a *Appointment) BlocksSlot() bool {
	switch a.Status {
	case AppointmentStatusCancelled, AppointmentStatusNoShow, AppointmentStatusRescheduled:
		return false
	}
	return true
}

// Overlaps applies the canonical half-open interval predicate against a
// candidate window on the same doctor-day.
func (a *Appointment) Overlaps(startMinute, duration int) bool {
	return a.StartMinute < startMinute+duration && startMinute < a.EndMinute()
}

// ReminderSent reports whether the window's flag is already set.
func (a *Appointment) ReminderSent(w ReminderWindow) bool {
	switch w {
	case Reminder24H:
		return a.RemindersSent.H24
	case Reminder2H:
		return a.RemindersSent.H2
	case Reminder30M:
		return a.RemindersSent.M30
	}
	return true
}

// Validate fully checks the appointment's own invariants. Cross-entity
// rules (slot conflicts, future-only creation) are enforced by the
// scheduling services.
func (a *Appointment) Validate() error {
	if a.PatientID == "" {
		return fmt.Errorf("patient id is required")
	}
	if a.DoctorID == "" {
		return fmt.Errorf("doctor id is required")
	}
	if a.Duration < MinAppointmentDuration || a.Duration > MaxAppointmentDuration {
		return fmt.Errorf("duration must be between %d and %d minutes", MinAppointmentDuration, MaxAppointmentDuration)
	}
	if a.StartMinute < BookingWindowStartMinute || a.EndMinute() > BookingWindowEndMinute {
		return fmt.Errorf("appointment must lie between %s and %s",
			FormatClock(BookingWindowStartMinute), FormatClock(BookingWindowEndMinute))
	}
	switch a.AppointmentType {
	case AppointmentTypeInPerson, AppointmentTypeVideo, AppointmentTypePhone, AppointmentTypeChat:
	default:
		return fmt.Errorf("invalid appointment type %q", a.AppointmentType)
	}
	switch a.Priority {
	case PriorityRoutine, PriorityUrgent, PriorityEmergency:
	default:
		return fmt.Errorf("invalid priority %q", a.Priority)
	}
	if a.ConsultationFee < 0 {
		return fmt.Errorf("consultation fee must not be negative")
	}
	return nil
}

type CreateAppointmentRequest struct {
	PatientID       string `json:"patient_id" validate:"required"`
	DoctorID        string `json:"doctor_id" validate:"required"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required"`
	Duration        int    `json:"duration" validate:"omitempty,min=15,max=120"`
	AppointmentType string `json:"appointment_type" validate:"required,oneof=in-person video phone chat"`
	Priority        string `json:"priority" validate:"omitempty,oneof=routine urgent emergency"`
	Notes           string `json:"notes" validate:"max=2000"`
	OperationID     string `json:"operation_id"`
}

type UpdateAppointmentRequest struct {
	Notes            *string    `json:"notes"`
	Priority         *Priority  `json:"priority"`
	FollowUpRequired *bool      `json:"follow_up_required"`
	FollowUpDate     *time.Time `json:"follow_up_date"`
}

// StatusChangeRequest drives the appointment state machine.
type StatusChangeRequest struct {
	Status      AppointmentStatus `json:"status" validate:"required"`
	Reason      string            `json:"reason"`
	By          CancelledBy       `json:"by"`
	Notes       string            `json:"notes"`
	OperationID string            `json:"operation_id"`
}

type AppointmentFilters struct {
	Status          AppointmentStatus `form:"status"`
	DoctorID        string            `form:"doctorId"`
	PatientID       string            `form:"patientId"`
	Date            string            `form:"date"`
	DateFrom        string            `form:"dateFrom"`
	DateTo          string            `form:"dateTo"`
	Priority        Priority          `form:"priority"`
	AppointmentType AppointmentType   `form:"appointmentType"`
	Pagination
	SortOrder
}

// Slot is one candidate interval on a doctor's calendar day.
type Slot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

// DailyAvailability is the availability model's output for one
// (doctor, date).
type DailyAvailability struct {
	DoctorID             string    `json:"doctor_id"`
	Date                 time.Time `json:"date"`
	Slots                []Slot    `json:"slots"`
	BookedAppointmentIDs []string  `json:"booked_appointment_ids,omitempty"`
}
