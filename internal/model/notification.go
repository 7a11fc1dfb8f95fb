package model

import "time"

// Outbox event types consumed by the notification worker.
const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentConfirmed = "appointment.confirmed"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentReminder  = "appointment.reminder"
	EventConsultationCreated  = "consultation.created"
	EventConsultationStarted  = "consultation.started"
	EventConsultationEnded    = "consultation.ended"
	EventPaymentCompleted     = "payment.completed"
	EventPaymentRefunded      = "payment.refunded"
)

// AppointmentEventPayload is the outbox payload for appointment
// lifecycle events.
type AppointmentEventPayload struct {
	AppointmentID     string            `json:"appointment_id"`
	AppointmentNumber string            `json:"appointment_number"`
	PatientID         string            `json:"patient_id"`
	DoctorID          string            `json:"doctor_id"`
	Status            AppointmentStatus `json:"status"`
	ScheduledAt       time.Time         `json:"scheduled_at"`
	Reason            string            `json:"reason,omitempty"`
	ReminderWindow    ReminderWindow    `json:"reminder_window,omitempty"`
}

// ConsultationEventPayload is the outbox payload for consultation
// lifecycle events.
type ConsultationEventPayload struct {
	ConsultationID     string             `json:"consultation_id"`
	ConsultationNumber string             `json:"consultation_number"`
	RoomID             string             `json:"room_id"`
	PatientID          string             `json:"patient_id"`
	DoctorID           string             `json:"doctor_id"`
	Status             ConsultationStatus `json:"status"`
}

// PaymentEventPayload is the outbox payload for payment events.
type PaymentEventPayload struct {
	PaymentID     string        `json:"payment_id"`
	AppointmentID string        `json:"appointment_id"`
	PatientID     string        `json:"patient_id"`
	Status        PaymentStatus `json:"status"`
	Amount        float64       `json:"amount"`
	TransactionID string        `json:"transaction_id,omitempty"`
}
