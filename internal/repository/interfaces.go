package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
)

// Sentinels surfaced by every store implementation.
var (
	// ErrNotFound means the referenced identifier is absent.
	ErrNotFound = errors.New("not found")
	// ErrStaleRevision means a conditional write observed a revision
	// that was no longer current; the caller re-reads and retries.
	ErrStaleRevision = errors.New("stale revision")
	// ErrDuplicateKey means a unique index rejected the write.
	ErrDuplicateKey = errors.New("duplicate key")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

type DoctorRepository interface {
	GetProfile(ctx context.Context, doctorID string) (*model.DoctorProfile, error)
	UpdateProfile(ctx context.Context, profile *model.DoctorProfile) error
	CreateProfile(ctx context.Context, profile *model.DoctorProfile) error
	// MarkOverrideSlot flips the booked flag of a per-date override slot.
	MarkOverrideSlot(ctx context.Context, doctorID string, date time.Time, startTime string, appointmentID string, booked bool) error
}

type PatientRepository interface {
	GetProfile(ctx context.Context, patientID string) (*model.PatientProfile, error)
	CreateProfile(ctx context.Context, profile *model.PatientProfile) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, apt *model.Appointment) error
	Get(ctx context.Context, id string) (*model.Appointment, error)
	// Update performs a revision compare-and-set write.
	Update(ctx context.Context, apt *model.Appointment) error
	List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error)
	// ListForDoctorDay returns every appointment on the doctor's
	// calendar date, any status.
	ListForDoctorDay(ctx context.Context, doctorID string, date time.Time) ([]*model.Appointment, error)
	// HasAnyRelationship reports whether the pair share any
	// appointment in any state.
	HasAnyRelationship(ctx context.Context, patientID, doctorID string) (bool, error)
	// ListDueReminders finds appointments in {scheduled, confirmed}
	// whose window trigger has passed and whose flag is unset.
	ListDueReminders(ctx context.Context, window model.ReminderWindow, now time.Time, limit int) ([]*model.Appointment, error)
	SetReminderSent(ctx context.Context, id string, window model.ReminderWindow) error
	SoftDelete(ctx context.Context, id, deletedBy string) error
}

type ConsultationRepository interface {
	Create(ctx context.Context, c *model.Consultation) error
	Get(ctx context.Context, id string) (*model.Consultation, error)
	// Update performs a revision compare-and-set write; the
	// participant ledger appends ride on the same discipline.
	Update(ctx context.Context, c *model.Consultation) error
	// FindOpenForUser returns a consultation in {scheduled, active,
	// waiting} where the user is patient or doctor, or ErrNotFound.
	FindOpenForUser(ctx context.Context, userID string) (*model.Consultation, error)
	GetByAppointment(ctx context.Context, appointmentID string) (*model.Consultation, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	Get(ctx context.Context, id string) (*model.Payment, error)
	GetByAppointment(ctx context.Context, appointmentID string) (*model.Payment, error)
	// Update performs a revision compare-and-set write.
	Update(ctx context.Context, p *model.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *model.Prescription) error
	Get(ctx context.Context, id string) (*model.Prescription, error)
}

type MedicalRecordRepository interface {
	Create(ctx context.Context, r *model.MedicalRecord) error
	Get(ctx context.Context, id string) (*model.MedicalRecord, error)
	ListByPatient(ctx context.Context, patientID string, p model.Pagination) ([]*model.MedicalRecord, error)
}

type LabResultRepository interface {
	Create(ctx context.Context, r *model.LabResult) error
	Get(ctx context.Context, id string) (*model.LabResult, error)
	ListByPatient(ctx context.Context, patientID string, p model.Pagination) ([]*model.LabResult, error)
}

type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error)
	// DeleteOlderThan prunes entries past the retention horizon.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// ClaimPending atomically claims up to limit pending rows for the
	// given worker.
	ClaimPending(ctx context.Context, workerID string, limit int) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string, retryAt *time.Time) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

type CounterRepository interface {
	// Next returns the next value of a named monotonic sequence.
	Next(ctx context.Context, name string) (int64, error)
}
