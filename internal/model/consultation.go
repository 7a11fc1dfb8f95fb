package model

import (
	"fmt"
	"time"
)

type ConsultationStatus string

const (
	ConsultationStatusScheduled   ConsultationStatus = "scheduled"
	ConsultationStatusActive      ConsultationStatus = "active"
	ConsultationStatusWaiting     ConsultationStatus = "waiting"
	ConsultationStatusCompleted   ConsultationStatus = "completed"
	ConsultationStatusCancelled   ConsultationStatus = "cancelled"
	ConsultationStatusEnded       ConsultationStatus = "ended"
	ConsultationStatusNoShow      ConsultationStatus = "no_show"
	ConsultationStatusRescheduled ConsultationStatus = "rescheduled"
)

type ConsultationType string

const (
	ConsultationTypeVideo    ConsultationType = "video"
	ConsultationTypeAudio    ConsultationType = "audio"
	ConsultationTypeChat     ConsultationType = "chat"
	ConsultationTypeInPerson ConsultationType = "in_person"
)

type ParticipantRole string

const (
	ParticipantPatient ParticipantRole = "patient"
	ParticipantDoctor  ParticipantRole = "doctor"
)

// Participant is one entry in the append-only join ledger.
type Participant struct {
	UserID   string          `json:"user_id" bson:"user_id"`
	Role     ParticipantRole `json:"role" bson:"role"`
	JoinTime time.Time       `json:"join_time" bson:"join_time"`
}

type VitalSigns struct {
	BloodPressure    string  `json:"blood_pressure,omitempty" bson:"blood_pressure,omitempty"`
	HeartRate        int     `json:"heart_rate,omitempty" bson:"heart_rate,omitempty"`
	Temperature      float64 `json:"temperature,omitempty" bson:"temperature,omitempty"`
	RespiratoryRate  int     `json:"respiratory_rate,omitempty" bson:"respiratory_rate,omitempty"`
	OxygenSaturation int     `json:"oxygen_saturation,omitempty" bson:"oxygen_saturation,omitempty"`
	WeightKG         float64 `json:"weight_kg,omitempty" bson:"weight_kg,omitempty"`
	HeightCM         float64 `json:"height_cm,omitempty" bson:"height_cm,omitempty"`
}

type Consultation struct {
	Base
	ConsultationNumber string `json:"consultation_number" bson:"consultation_number"`
	RoomID             string `json:"room_id" bson:"room_id"`
	PatientID          string `json:"patient_id" bson:"patient_id"`
	DoctorID           string `json:"doctor_id" bson:"doctor_id"`

	// AppointmentID binds the consultation; bound sessions mirror their
	// transitions onto the appointment.
	AppointmentID string `json:"appointment_id,omitempty" bson:"appointment_id,omitempty"`

	ConsultationType ConsultationType   `json:"consultation_type" bson:"consultation_type"`
	Status           ConsultationStatus `json:"status" bson:"status"`
	Priority         Priority           `json:"priority" bson:"priority"`
	IsEmergency      bool               `json:"is_emergency" bson:"is_emergency"`

	StartTime      *time.Time `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Duration       int        `json:"duration" bson:"duration"`
	ActualDuration int        `json:"actual_duration,omitempty" bson:"actual_duration,omitempty"`

	Participants []Participant `json:"participants" bson:"participants"`

	ChiefComplaint   string     `json:"chief_complaint,omitempty" bson:"chief_complaint,omitempty"`
	Symptoms         []string   `json:"symptoms,omitempty" bson:"symptoms,omitempty"`
	VitalSigns       VitalSigns `json:"vital_signs,omitempty" bson:"vital_signs,omitempty"`
	Diagnosis        string     `json:"diagnosis,omitempty" bson:"diagnosis,omitempty"`
	Assessment       string     `json:"assessment,omitempty" bson:"assessment,omitempty"`
	Plan             string     `json:"plan,omitempty" bson:"plan,omitempty"`
	ClinicalNotes    string     `json:"clinical_notes,omitempty" bson:"clinical_notes,omitempty"`
	Recommendations  []string   `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
	FollowUpRequired bool       `json:"follow_up_required,omitempty" bson:"follow_up_required,omitempty"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty" bson:"follow_up_date,omitempty"`

	CancellationReason string `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`

	PrescriptionID  string `json:"prescription_id,omitempty" bson:"prescription_id,omitempty"`
	MedicalRecordID string `json:"medical_record_id,omitempty" bson:"medical_record_id,omitempty"`
}

// IsClosed reports whether the session accepts no further mutation.
func (c *Consultation) IsClosed() bool {
	switch c.Status {
	case ConsultationStatusCompleted, ConsultationStatusCancelled, ConsultationStatusEnded:
		return true
	}
	return false
}

// IsOpen reports whether the session counts toward the one-active-
// session-per-participant rule.
func (c *Consultation) IsOpen() bool {
	switch c.Status {
	case ConsultationStatusScheduled, ConsultationStatusActive, ConsultationStatusWaiting:
		return true
	}
	return false
}

// HasJoined reports whether the user already has a ledger entry; joins
// are idempotent per user.
func (c *Consultation) HasJoined(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// RoleOf maps a user to their participant role, or "" for outsiders.
func (c *Consultation) RoleOf(userID string) ParticipantRole {
	switch userID {
	case c.PatientID:
		return ParticipantPatient
	case c.DoctorID:
		return ParticipantDoctor
	}
	return ""
}

func (c *Consultation) Validate() error {
	if c.PatientID == "" || c.DoctorID == "" {
		return fmt.Errorf("patient and doctor ids are required")
	}
	switch c.ConsultationType {
	case ConsultationTypeVideo, ConsultationTypeAudio, ConsultationTypeChat, ConsultationTypeInPerson:
	default:
		return fmt.Errorf("invalid consultation type %q", c.ConsultationType)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if c.StartTime != nil && c.EndTime != nil && c.EndTime.Before(*c.StartTime) {
		return fmt.Errorf("end time must not precede start time")
	}
	return nil
}

type InitiateConsultationRequest struct {
	PatientID        string `json:"patient_id" validate:"required"`
	DoctorID         string `json:"doctor_id" validate:"required"`
	ConsultationType string `json:"consultation_type" validate:"required,oneof=video audio chat in_person"`
	Duration         int    `json:"duration" validate:"omitempty,min=5,max=240"`
	AppointmentID    string `json:"appointment_id"`
	ChiefComplaint   string `json:"chief_complaint"`
	IsEmergency      bool   `json:"is_emergency"`
}

type ConsultationNotesRequest struct {
	ClinicalNotes    string      `json:"clinical_notes"`
	Assessment       string      `json:"assessment"`
	Plan             string      `json:"plan"`
	Diagnosis        string      `json:"diagnosis"`
	Recommendations  []string    `json:"recommendations"`
	VitalSigns       *VitalSigns `json:"vital_signs"`
	FollowUpRequired *bool       `json:"follow_up_required"`
	FollowUpDate     *time.Time  `json:"follow_up_date"`
}

// AttachLabResultRequest records a lab report written by the external
// storage collaborator; only its location and checksum are kept.
type AttachLabResultRequest struct {
	TestName       string `json:"test_name" validate:"required"`
	Result         string `json:"result"`
	ReferenceRange string `json:"reference_range"`
	Unit           string `json:"unit"`
	IsAbnormal     bool   `json:"is_abnormal"`
	ReportLocation string `json:"report_location"`
	ReportChecksum string `json:"report_checksum"`
	ContentType    string `json:"content_type"`
	SizeBytes      int64  `json:"size_bytes"`
}

type ConsultationStatusRequest struct {
	Status ConsultationStatus `json:"status" validate:"required"`
	Reason string             `json:"reason"`
}

// ConsultationSummary is the read view returned by the summary endpoint.
type ConsultationSummary struct {
	Consultation *Consultation `json:"consultation"`
	Prescription *Prescription `json:"prescription,omitempty"`
	Appointment  *Appointment  `json:"appointment,omitempty"`
}
