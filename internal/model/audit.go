package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusFailed  AuditStatus = "FAILED"
)

// AuditLog is an append-only record of security- and state-relevant
// events. Entries are never updated or deleted.
type AuditLog struct {
	ID         string                 `json:"id" bson:"_id"`
	Action     string                 `json:"action" bson:"action"`
	Resource   string                 `json:"resource" bson:"resource"`
	ResourceID string                 `json:"resource_id" bson:"resource_id"`
	UserID     string                 `json:"user_id,omitempty" bson:"user_id,omitempty"`
	UserRole   string                 `json:"user_role,omitempty" bson:"user_role,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty" bson:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	Status     AuditStatus            `json:"status" bson:"status"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
}

func NewAuditLog(action, resource, resourceID string) *AuditLog {
	return &AuditLog{
		ID:         uuid.NewString(),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Status:     AuditStatusSuccess,
		CreatedAt:  time.Now().UTC(),
	}
}

const (
	// Action types
	AuditAppointmentCreated     = "APPOINTMENT_CREATED"
	AuditAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	AuditAppointmentCheckedIn   = "APPOINTMENT_CHECKED_IN"
	AuditAppointmentStarted     = "APPOINTMENT_STARTED"
	AuditAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	AuditAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	AuditAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	AuditAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	AuditConsultationInitiated  = "CONSULTATION_INITIATED"
	AuditConsultationJoined     = "CONSULTATION_JOINED"
	AuditConsultationEnded      = "CONSULTATION_ENDED"
	AuditConsultationCancelled  = "CONSULTATION_CANCELLED"
	AuditPrescriptionCreated    = "PRESCRIPTION_CREATED"
	AuditMedicalRecordCreated   = "MEDICAL_RECORD_CREATED"
	AuditLabResultAttached      = "LAB_RESULT_ATTACHED"
	AuditPaymentCompleted       = "PAYMENT_COMPLETED"
	AuditPaymentFailed          = "PAYMENT_FAILED"
	AuditPaymentRefunded        = "PAYMENT_REFUNDED"
	AuditNotificationFailed     = "NOTIFICATION_FAILED"

	// Resource types
	AuditResourceAppointment   = "appointment"
	AuditResourceConsultation  = "consultation"
	AuditResourcePayment       = "payment"
	AuditResourcePrescription  = "prescription"
	AuditResourceMedicalRecord = "medical_record"
	AuditResourceLabResult     = "lab_result"
	AuditResourceUser          = "user"
)

type AuditFilters struct {
	Resource   string     `form:"resource"`
	ResourceID string     `form:"resourceId"`
	UserID     string     `form:"userId"`
	From       *time.Time `form:"from"`
	To         *time.Time `form:"to"`
	Pagination
}
