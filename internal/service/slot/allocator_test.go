package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/locker"
)

var testDate = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type fakeAppointmentRepo struct {
	mu    sync.Mutex
	items []*model.Appointment
}

func (f *fakeAppointmentRepo) add(apt *model.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, apt)
}

func (f *fakeAppointmentRepo) ListForDoctorDay(context.Context, string, time.Time) ([]*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Appointment, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeAppointmentRepo) Create(context.Context, *model.Appointment) error { return nil }
func (f *fakeAppointmentRepo) Get(context.Context, string) (*model.Appointment, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAppointmentRepo) Update(context.Context, *model.Appointment) error { return nil }
func (f *fakeAppointmentRepo) List(context.Context, *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	return nil, 0, nil
}
func (f *fakeAppointmentRepo) HasAnyRelationship(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f *fakeAppointmentRepo) ListDueReminders(context.Context, model.ReminderWindow, time.Time, int) ([]*model.Appointment, error) {
	return nil, nil
}
func (f *fakeAppointmentRepo) SetReminderSent(context.Context, string, model.ReminderWindow) error {
	return nil
}
func (f *fakeAppointmentRepo) SoftDelete(context.Context, string, string) error { return nil }

func TestReserveConflict(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	repo.add(&model.Appointment{
		Base:        model.Base{ID: "apt-1"},
		StartMinute: 9 * 60,
		Duration:    30,
		Status:      model.AppointmentStatusScheduled,
	})
	alloc := NewAllocator(repo, locker.NewMemoryLocker(), nil)

	_, err := alloc.Reserve(context.Background(), "doc-1", testDate, 9*60+15, 30)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	reserved, err := alloc.Reserve(context.Background(), "doc-1", testDate, 9*60+30, 30)
	require.NoError(t, err, "adjacent window is free under the half-open predicate")
	reserved.Release()
}

func TestReserveIgnoresFreedSlots(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	repo.add(&model.Appointment{
		Base:        model.Base{ID: "apt-1"},
		StartMinute: 9 * 60,
		Duration:    30,
		Status:      model.AppointmentStatusCancelled,
	})
	alloc := NewAllocator(repo, locker.NewMemoryLocker(), nil)

	reserved, err := alloc.Reserve(context.Background(), "doc-1", testDate, 9*60, 30)
	require.NoError(t, err)
	reserved.Release()
}

func TestReserveSingleWinnerUnderContention(t *testing.T) {
	repo := &fakeAppointmentRepo{}
	alloc := NewAllocator(repo, locker.NewMemoryLocker(), nil)

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	conflicts := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reserved, err := alloc.Reserve(context.Background(), "doc-1", testDate, 10*60, 30)
			if err != nil {
				mu.Lock()
				conflicts++
				mu.Unlock()
				return
			}
			// Insert while the lock is held, as the booking service does.
			repo.add(&model.Appointment{
				Base:        model.NewBase(time.Now()),
				StartMinute: reserved.StartMinute,
				Duration:    reserved.Duration,
				Status:      model.AppointmentStatusScheduled,
			})
			reserved.Release()
			mu.Lock()
			winners++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, racers-1, conflicts)
}

func TestReleaseIdempotent(t *testing.T) {
	alloc := NewAllocator(&fakeAppointmentRepo{}, locker.NewMemoryLocker(), nil)
	reserved, err := alloc.Reserve(context.Background(), "doc-1", testDate, 10*60, 30)
	require.NoError(t, err)
	reserved.Release()
	reserved.Release()

	// The lock is free again after release.
	again, err := alloc.Reserve(context.Background(), "doc-2", testDate, 10*60, 30)
	require.NoError(t, err)
	again.Release()
}
