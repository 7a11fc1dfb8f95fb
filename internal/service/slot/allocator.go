package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/locker"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const lockTTL = 10 * time.Second

// ReservedSlot is the allocator's grant. The caller must insert the
// appointment and then call Release; the lock bounds the critical
// section between the conflict check and the insert.
type ReservedSlot struct {
	DoctorID    string
	Date        time.Time
	StartMinute int
	Duration    int
	release     func()
}

// Release frees the doctor-day lock. Safe to call once.
func (r *ReservedSlot) Release() {
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// Allocator serializes slot reservations per (doctor, date).
type Allocator interface {
	// Reserve acquires the doctor-day lock and verifies no non-terminal
	// appointment overlaps the requested window. On conflict it returns
	// a Conflict error and performs no write.
	Reserve(ctx context.Context, doctorID string, date time.Time, startMinute, duration int) (*ReservedSlot, error)
}

type allocator struct {
	appointments repository.AppointmentRepository
	locks        locker.Locker
	metrics      *metrics.Metrics
}

func NewAllocator(appointments repository.AppointmentRepository, locks locker.Locker, m *metrics.Metrics) Allocator {
	return &allocator{appointments: appointments, locks: locks, metrics: m}
}

func lockKey(doctorID string, date time.Time) string {
	return "slot:" + doctorID + "|" + model.DateOnly(date).Format("2006-01-02")
}

func (a *allocator) Reserve(ctx context.Context, doctorID string, date time.Time, startMinute, duration int) (*ReservedSlot, error) {
	release, err := a.locks.Acquire(ctx, lockKey(doctorID, date), lockTTL)
	if err != nil {
		return nil, apperrors.Locked("slot allocation is busy, retry shortly")
	}

	existing, err := a.appointments.ListForDoctorDay(ctx, doctorID, date)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load day appointments: %w", err)
	}
	for _, apt := range existing {
		if !apt.BlocksSlot() {
			continue
		}
		if apt.Overlaps(startMinute, duration) {
			release()
			if a.metrics != nil {
				a.metrics.SlotConflicts.Inc()
				a.metrics.SlotReservations.WithLabelValues("conflict").Inc()
			}
			return nil, apperrors.Conflict("slot taken", nil)
		}
	}

	if a.metrics != nil {
		a.metrics.SlotReservations.WithLabelValues("reserved").Inc()
	}
	return &ReservedSlot{
		DoctorID:    doctorID,
		Date:        model.DateOnly(date),
		StartMinute: startMinute,
		Duration:    duration,
		release:     release,
	}, nil
}
