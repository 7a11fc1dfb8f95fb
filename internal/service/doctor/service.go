package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/service/audit"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

// Service owns the doctor profile: the recurring weekly templates and
// the per-date overrides the availability walk consumes.
type Service struct {
	repo         repository.DoctorRepository
	availability availability.Service
	auditor      audit.Service
	now          func() time.Time
}

func NewService(repo repository.DoctorRepository, avail availability.Service, auditor audit.Service) *Service {
	return &Service{
		repo:         repo,
		availability: avail,
		auditor:      auditor,
		now:          time.Now,
	}
}

func (s *Service) CreateProfile(ctx context.Context, req *model.CreateDoctorProfileRequest) (*model.DoctorProfile, error) {
	profile := &model.DoctorProfile{
		Base:                  model.NewBase(s.now().UTC()),
		UserID:                req.UserID,
		Specialization:        req.Specialization,
		MedicalLicense:        req.MedicalLicense,
		Qualification:         req.Qualification,
		Department:            req.Department,
		ConsultationFee:       req.ConsultationFee,
		FollowUpFee:           req.FollowUpFee,
		Schedule:              req.Schedule,
		IsAvailable:           true,
		AppointmentBufferTime: req.AppointmentBufferTime,
		Timezone:              req.Timezone,
	}
	if err := profile.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}

	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		if err == repository.ErrDuplicateKey {
			return nil, apperrors.Conflict("doctor profile already exists", err)
		}
		return nil, fmt.Errorf("failed to create doctor profile: %w", err)
	}

	s.auditor.Record(ctx, model.NewAuditLog("DOCTOR_PROFILE_CREATED", model.AuditResourceUser, profile.UserID))
	return profile, nil
}

func (s *Service) GetProfile(ctx context.Context, doctorID string) (*model.DoctorProfile, error) {
	profile, err := s.repo.GetProfile(ctx, doctorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, err
	}
	return profile, nil
}

// UpdateSchedule replaces the templates and overrides, re-validating
// the whole profile so duplicate-weekday and overlapping-override
// submissions are rejected before any write.
func (s *Service) UpdateSchedule(ctx context.Context, doctorID string, req *model.UpdateScheduleRequest) (*model.DoctorProfile, error) {
	profile, err := s.GetProfile(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if req.Schedule != nil {
		profile.Schedule = req.Schedule
	}
	if req.Availability != nil {
		profile.Availability = req.Availability
	}
	if req.IsAvailable != nil {
		profile.IsAvailable = *req.IsAvailable
	}
	if req.UnavailableUntil != nil {
		profile.UnavailableUntil = req.UnavailableUntil
	}
	if req.AppointmentBufferTime != nil {
		profile.AppointmentBufferTime = *req.AppointmentBufferTime
	}
	if req.Timezone != nil {
		profile.Timezone = *req.Timezone
	}
	profile.Touch(s.now())

	if err := profile.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}
	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update doctor profile: %w", err)
	}

	s.availability.InvalidateDoctor(doctorID)
	s.auditor.Record(ctx, model.NewAuditLog("DOCTOR_SCHEDULE_UPDATED", model.AuditResourceUser, doctorID))
	return profile, nil
}
