package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	mongorepo "github.com/jwalitptl/consult-api/internal/repository/mongo"
	"github.com/jwalitptl/consult-api/internal/service/audit"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

const (
	mrnPrefix         = "MRN-"
	numberMaxAttempts = 3
)

// Service owns the patient profile and the read side of the patient's
// clinical history.
type Service struct {
	repo     repository.PatientRepository
	records  repository.MedicalRecordRepository
	labs     repository.LabResultRepository
	counters repository.CounterRepository
	auditor  audit.Service
	now      func() time.Time
}

func NewService(
	repo repository.PatientRepository,
	records repository.MedicalRecordRepository,
	labs repository.LabResultRepository,
	counters repository.CounterRepository,
	auditor audit.Service,
) *Service {
	return &Service{
		repo:     repo,
		records:  records,
		labs:     labs,
		counters: counters,
		auditor:  auditor,
		now:      time.Now,
	}
}

// CreateProfile assigns a medical record number and stores the profile.
func (s *Service) CreateProfile(ctx context.Context, req *model.CreatePatientProfileRequest) (*model.PatientProfile, error) {
	profile := &model.PatientProfile{
		Base:                  model.NewBase(s.now().UTC()),
		UserID:                req.UserID,
		BloodGroup:            req.BloodGroup,
		Allergies:             req.Allergies,
		ChronicConditions:     req.ChronicConditions,
		HeightCM:              req.HeightCM,
		WeightKG:              req.WeightKG,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
	}

	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		seq, err := s.counters.Next(ctx, mongorepo.SeqPatient)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate medical record number: %w", err)
		}
		profile.MedicalRecordNumber = mongorepo.FormatNumber(mrnPrefix, seq)
		if err := profile.Validate(); err != nil {
			return nil, apperrors.Validation(err.Error(), err)
		}
		err = s.repo.CreateProfile(ctx, profile)
		if err == nil {
			entry := model.NewAuditLog("PATIENT_PROFILE_CREATED", model.AuditResourceUser, profile.UserID)
			s.auditor.Record(ctx, entry)
			return profile, nil
		}
		if err != repository.ErrDuplicateKey {
			return nil, fmt.Errorf("failed to create patient profile: %w", err)
		}
		// A duplicate user_id is a real conflict; a duplicate MRN just
		// means taking the next sequence value.
		if existing, lookupErr := s.repo.GetProfile(ctx, req.UserID); lookupErr == nil && existing != nil {
			return nil, apperrors.Conflict("patient profile already exists", err)
		}
	}
	return nil, apperrors.Conflict("failed to allocate a unique medical record number", repository.ErrDuplicateKey)
}

func (s *Service) GetProfile(ctx context.Context, patientID string) (*model.PatientProfile, error) {
	profile, err := s.repo.GetProfile(ctx, patientID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("patient profile", err)
		}
		return nil, err
	}
	return profile, nil
}

func (s *Service) ListMedicalRecords(ctx context.Context, patientID string, p model.Pagination) ([]*model.MedicalRecord, error) {
	return s.records.ListByPatient(ctx, patientID, p)
}

func (s *Service) ListLabResults(ctx context.Context, patientID string, p model.Pagination) ([]*model.LabResult, error) {
	return s.labs.ListByPatient(ctx, patientID, p)
}

func (s *Service) GetMedicalRecord(ctx context.Context, patientID, recordID string) (*model.MedicalRecord, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("medical record", err)
		}
		return nil, err
	}
	if record.PatientID != patientID {
		return nil, apperrors.NotFound("medical record", repository.ErrNotFound)
	}
	return record, nil
}
