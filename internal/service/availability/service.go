package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

const (
	cacheTTL     = 30 * time.Second
	cacheCleanup = 5 * time.Minute
)

// Service computes the bookable slots of a doctor's calendar day.
type Service interface {
	ListSlots(ctx context.Context, doctorID string, date time.Time) (*model.DailyAvailability, error)
	// Invalidate drops the cached day after a reservation or a status
	// transition that frees a slot.
	Invalidate(doctorID string, date time.Time)
	// InvalidateDoctor drops every cached day for the doctor after a
	// schedule change.
	InvalidateDoctor(doctorID string)
}

type service struct {
	doctors      repository.DoctorRepository
	appointments repository.AppointmentRepository
	cache        *gocache.Cache
}

func NewService(doctors repository.DoctorRepository, appointments repository.AppointmentRepository) Service {
	return &service{
		doctors:      doctors,
		appointments: appointments,
		cache:        gocache.New(cacheTTL, cacheCleanup),
	}
}

func cacheKey(doctorID string, date time.Time) string {
	return doctorID + "|" + model.DateOnly(date).Format("2006-01-02")
}

func (s *service) ListSlots(ctx context.Context, doctorID string, date time.Time) (*model.DailyAvailability, error) {
	key := cacheKey(doctorID, date)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.DailyAvailability), nil
	}

	profile, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to load doctor profile: %w", err)
	}

	day := &model.DailyAvailability{
		DoctorID: doctorID,
		Date:     model.DateOnly(date),
	}

	if profile.UnavailableOn(date) {
		s.cache.Set(key, day, cacheTTL)
		return day, nil
	}

	// Per-date overrides replace the generated walk entirely.
	if override := profile.OverrideFor(date); override != nil {
		for _, slot := range override.Slots {
			day.Slots = append(day.Slots, model.Slot{
				Start:     slot.StartTime,
				End:       slot.EndTime,
				Available: !slot.IsBooked,
			})
			if slot.IsBooked && slot.AppointmentID != "" {
				day.BookedAppointmentIDs = append(day.BookedAppointmentIDs, slot.AppointmentID)
			}
		}
		s.cache.Set(key, day, cacheTTL)
		return day, nil
	}

	template := profile.TemplateFor(date.Weekday())
	if template == nil {
		s.cache.Set(key, day, cacheTTL)
		return day, nil
	}

	booked, err := s.appointments.ListForDoctorDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load day appointments: %w", err)
	}

	startMin, err := model.ParseClock(template.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid template start time: %w", err)
	}
	endMin, err := model.ParseClock(template.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid template end time: %w", err)
	}

	step := template.AppointmentDuration + profile.AppointmentBufferTime
	for cursor := startMin; cursor+template.AppointmentDuration <= endMin; cursor += step {
		slot := model.Slot{
			Start:     model.FormatClock(cursor),
			End:       model.FormatClock(cursor + template.AppointmentDuration),
			Available: true,
		}
		for _, apt := range booked {
			if !apt.BlocksSlot() {
				continue
			}
			if apt.Overlaps(cursor, template.AppointmentDuration) {
				slot.Available = false
				day.BookedAppointmentIDs = append(day.BookedAppointmentIDs, apt.ID)
				break
			}
		}
		day.Slots = append(day.Slots, slot)
	}

	s.cache.Set(key, day, cacheTTL)
	return day, nil
}

func (s *service) Invalidate(doctorID string, date time.Time) {
	s.cache.Delete(cacheKey(doctorID, date))
}

func (s *service) InvalidateDoctor(doctorID string) {
	prefix := doctorID + "|"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}
