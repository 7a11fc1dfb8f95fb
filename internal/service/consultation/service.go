package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	mongorepo "github.com/jwalitptl/consult-api/internal/repository/mongo"
	"github.com/jwalitptl/consult-api/internal/service/audit"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const (
	defaultDuration     = 30
	consultationsPrefix = "CONS-"
	prescriptionsPrefix = "RX-"
	labResultsPrefix    = "LAB-"
	numberMaxAttempts   = 3
)

// AppointmentTransitioner mirrors bound-session transitions onto the
// appointment. Implemented by the appointment service.
type AppointmentTransitioner interface {
	ChangeStatus(ctx context.Context, id string, req *model.StatusChangeRequest) (*model.Appointment, error)
}

type Service struct {
	repo          repository.ConsultationRepository
	appointments  repository.AppointmentRepository
	doctors       repository.DoctorRepository
	prescriptions repository.PrescriptionRepository
	records       repository.MedicalRecordRepository
	labs          repository.LabResultRepository
	counters      repository.CounterRepository
	transitioner  AppointmentTransitioner
	enqueuer      notification.Enqueuer
	auditor       audit.Service
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(
	repo repository.ConsultationRepository,
	appointments repository.AppointmentRepository,
	doctors repository.DoctorRepository,
	prescriptions repository.PrescriptionRepository,
	records repository.MedicalRecordRepository,
	labs repository.LabResultRepository,
	counters repository.CounterRepository,
	transitioner AppointmentTransitioner,
	enqueuer notification.Enqueuer,
	auditor audit.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:          repo,
		appointments:  appointments,
		doctors:       doctors,
		prescriptions: prescriptions,
		records:       records,
		labs:          labs,
		counters:      counters,
		transitioner:  transitioner,
		enqueuer:      enqueuer,
		auditor:       auditor,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
	}
}

// SetNow overrides the clock in tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

func (s *Service) Initiate(ctx context.Context, req *model.InitiateConsultationRequest) (*model.Consultation, error) {
	profile, err := s.doctors.GetProfile(ctx, req.DoctorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("doctor", err)
		}
		return nil, fmt.Errorf("failed to load doctor profile: %w", err)
	}
	now := s.now().UTC()
	if profile.UnavailableOn(now) {
		return nil, apperrors.Locked("doctor is currently unavailable")
	}

	for _, userID := range []string{req.PatientID, req.DoctorID} {
		open, err := s.repo.FindOpenForUser(ctx, userID)
		if err != nil && err != repository.ErrNotFound {
			return nil, fmt.Errorf("failed to check open consultations: %w", err)
		}
		if open != nil {
			return nil, apperrors.Conflict("participant already has an open consultation", nil)
		}
	}

	related, err := s.appointments.HasAnyRelationship(ctx, req.PatientID, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check appointment relationship: %w", err)
	}
	if !related {
		return nil, apperrors.Forbidden("no prior appointment relationship between patient and doctor")
	}

	if req.AppointmentID != "" {
		apt, err := s.appointments.Get(ctx, req.AppointmentID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, apperrors.NotFound("appointment", err)
			}
			return nil, err
		}
		if apt.PatientID != req.PatientID || apt.DoctorID != req.DoctorID {
			return nil, apperrors.Validation("appointment does not belong to the given participants", nil)
		}
	}

	duration := req.Duration
	if duration == 0 {
		duration = defaultDuration
	}

	c := &model.Consultation{
		Base:             model.NewBase(now),
		RoomID:           fmt.Sprintf("room-%s-%s-%d", req.DoctorID, req.PatientID, now.Unix()),
		PatientID:        req.PatientID,
		DoctorID:         req.DoctorID,
		AppointmentID:    req.AppointmentID,
		ConsultationType: model.ConsultationType(req.ConsultationType),
		Status:           model.ConsultationStatusScheduled,
		Priority:         model.PriorityRoutine,
		IsEmergency:      req.IsEmergency,
		Duration:         duration,
		ChiefComplaint:   req.ChiefComplaint,
	}
	if req.IsEmergency {
		c.Priority = model.PriorityEmergency
	}
	if err := c.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}

	if err := s.insertNumbered(ctx, c); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, model.AuditConsultationInitiated, c, nil)
	s.notifyBestEffort(ctx, model.EventConsultationCreated, c)
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues("consultation", string(c.Status)).Inc()
	}
	return c, nil
}

func (s *Service) insertNumbered(ctx context.Context, c *model.Consultation) error {
	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		seq, err := s.counters.Next(ctx, mongorepo.SeqConsultation)
		if err != nil {
			return fmt.Errorf("failed to allocate consultation number: %w", err)
		}
		c.ConsultationNumber = mongorepo.FormatNumber(consultationsPrefix, seq)
		err = s.repo.Create(ctx, c)
		if err == nil {
			return nil
		}
		if err != repository.ErrDuplicateKey {
			return fmt.Errorf("failed to create consultation: %w", err)
		}
	}
	return apperrors.Conflict("failed to allocate a unique consultation number", repository.ErrDuplicateKey)
}

// Join appends the caller to the participant ledger. The first join
// activates the session and mirrors the bound appointment into
// in-progress. Re-joining is idempotent per user.
func (s *Service) Join(ctx context.Context, id, userID string) (*model.Consultation, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		role := c.RoleOf(userID)
		if role == "" {
			return nil, apperrors.Forbidden("only the patient or the doctor may join")
		}
		if c.IsClosed() {
			return nil, apperrors.Conflict("consultation is closed", nil)
		}
		if c.HasJoined(userID) && c.Status == model.ConsultationStatusActive {
			return c, nil
		}

		now := s.now().UTC()
		if !c.HasJoined(userID) {
			c.Participants = append(c.Participants, model.Participant{
				UserID:   userID,
				Role:     role,
				JoinTime: now,
			})
		}
		activated := false
		if c.Status != model.ConsultationStatusActive {
			c.Status = model.ConsultationStatusActive
			c.StartTime = &now
			activated = true
		}
		c.Touch(now)

		if err := s.repo.Update(ctx, c); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}

		if activated {
			if err := s.mirror(ctx, c, model.AppointmentStatusInProgress, ""); err != nil {
				return nil, err
			}
			s.notifyBestEffort(ctx, model.EventConsultationStarted, c)
			if s.metrics != nil {
				s.metrics.TransitionsTotal.WithLabelValues("consultation", string(c.Status)).Inc()
			}
		}
		s.recordAudit(ctx, model.AuditConsultationJoined, c, map[string]interface{}{"user_id": userID})
		return c, nil
	}
	return nil, apperrors.Conflict("consultation was modified concurrently", repository.ErrStaleRevision)
}

// AttachNotes updates the clinical fields. Only the bound doctor may
// write, and only while the session is open.
func (s *Service) AttachNotes(ctx context.Context, id, doctorID string, req *model.ConsultationNotesRequest) (*model.Consultation, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.DoctorID != doctorID {
			return nil, apperrors.Forbidden("only the consulting doctor may attach notes")
		}
		if c.IsClosed() {
			return nil, apperrors.Conflict("consultation is closed", nil)
		}

		if req.ClinicalNotes != "" {
			c.ClinicalNotes = req.ClinicalNotes
		}
		if req.Assessment != "" {
			c.Assessment = req.Assessment
		}
		if req.Plan != "" {
			c.Plan = req.Plan
		}
		if req.Diagnosis != "" {
			c.Diagnosis = req.Diagnosis
		}
		if len(req.Recommendations) > 0 {
			c.Recommendations = req.Recommendations
		}
		if req.VitalSigns != nil {
			c.VitalSigns = *req.VitalSigns
		}
		if req.FollowUpRequired != nil {
			c.FollowUpRequired = *req.FollowUpRequired
		}
		if req.FollowUpDate != nil {
			c.FollowUpDate = req.FollowUpDate
		}
		c.Touch(s.now())

		if err := s.repo.Update(ctx, c); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}
		return c, nil
	}
	return nil, apperrors.Conflict("consultation was modified concurrently", repository.ErrStaleRevision)
}

// CreatePrescription writes an active prescription and links it on the
// session.
func (s *Service) CreatePrescription(ctx context.Context, id, doctorID string, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.DoctorID != doctorID {
		return nil, apperrors.Forbidden("only the consulting doctor may prescribe")
	}
	if c.IsClosed() {
		return nil, apperrors.Conflict("consultation is closed", nil)
	}

	now := s.now().UTC()
	p := &model.Prescription{
		Base:           model.NewBase(now),
		ConsultationID: c.ID,
		AppointmentID:  c.AppointmentID,
		PatientID:      c.PatientID,
		DoctorID:       c.DoctorID,
		Medications:    req.Medications,
		Diagnosis:      req.Diagnosis,
		Instructions:   req.Instructions,
		Refills:        req.Refills,
		Status:         model.PrescriptionStatusActive,
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}

	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		seq, err := s.counters.Next(ctx, mongorepo.SeqPrescription)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate prescription number: %w", err)
		}
		p.PrescriptionNumber = mongorepo.FormatNumber(prescriptionsPrefix, seq)
		err = s.prescriptions.Create(ctx, p)
		if err == nil {
			break
		}
		if err != repository.ErrDuplicateKey {
			return nil, fmt.Errorf("failed to create prescription: %w", err)
		}
		if attempt == numberMaxAttempts-1 {
			return nil, apperrors.Conflict("failed to allocate a unique prescription number", err)
		}
	}

	c.PrescriptionID = p.ID
	c.Touch(now)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to link prescription: %w", err)
	}

	entry := model.NewAuditLog(model.AuditPrescriptionCreated, model.AuditResourcePrescription, p.ID)
	entry.UserID = doctorID
	entry.Details = map[string]interface{}{"consultation_id": c.ID}
	s.auditor.Record(ctx, entry)
	return p, nil
}

// AttachLabResult records a lab report for the session's patient. The
// report file itself lives with the external storage collaborator;
// only its location and checksum are kept. Lab reports may arrive
// after the session has ended, so only cancellation blocks them.
func (s *Service) AttachLabResult(ctx context.Context, id, doctorID string, req *model.AttachLabResultRequest) (*model.LabResult, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.DoctorID != doctorID {
		return nil, apperrors.Forbidden("only the consulting doctor may attach lab results")
	}
	if c.Status == model.ConsultationStatusCancelled {
		return nil, apperrors.Conflict("consultation was cancelled", nil)
	}

	now := s.now().UTC()
	lab := &model.LabResult{
		Base:           model.NewBase(now),
		PatientID:      c.PatientID,
		OrderedBy:      doctorID,
		ConsultationID: c.ID,
		TestName:       req.TestName,
		Result:         req.Result,
		ReferenceRange: req.ReferenceRange,
		Unit:           req.Unit,
		IsAbnormal:     req.IsAbnormal,
		Status:         model.LabResultStatusOrdered,
	}
	if req.Result != "" {
		lab.Status = model.LabResultStatusReported
		lab.ReportedAt = &now
	}
	if req.ReportLocation != "" {
		lab.Report = &model.Attachment{
			Location:    req.ReportLocation,
			Checksum:    req.ReportChecksum,
			ContentType: req.ContentType,
			SizeBytes:   req.SizeBytes,
		}
	}
	if err := lab.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}

	for attempt := 0; attempt < numberMaxAttempts; attempt++ {
		seq, err := s.counters.Next(ctx, mongorepo.SeqLabResult)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate lab number: %w", err)
		}
		lab.LabNumber = mongorepo.FormatNumber(labResultsPrefix, seq)
		err = s.labs.Create(ctx, lab)
		if err == nil {
			break
		}
		if err != repository.ErrDuplicateKey {
			return nil, fmt.Errorf("failed to create lab result: %w", err)
		}
		if attempt == numberMaxAttempts-1 {
			return nil, apperrors.Conflict("failed to allocate a unique lab number", err)
		}
	}

	entry := model.NewAuditLog(model.AuditLabResultAttached, model.AuditResourceLabResult, lab.ID)
	entry.UserID = doctorID
	entry.Details = map[string]interface{}{"consultation_id": c.ID, "test_name": lab.TestName}
	s.auditor.Record(ctx, entry)
	return lab, nil
}

// archiveRecord derives a medical record from a completed session's
// clinical fields and links it. Best-effort; the session close has
// already committed.
func (s *Service) archiveRecord(ctx context.Context, c *model.Consultation) {
	if c.Diagnosis == "" && c.ClinicalNotes == "" && c.Assessment == "" {
		return
	}
	now := s.now().UTC()
	record := &model.MedicalRecord{
		Base:           model.NewBase(now),
		PatientID:      c.PatientID,
		DoctorID:       c.DoctorID,
		ConsultationID: c.ID,
		RecordType:     "consultation_summary",
		Title:          "Consultation " + c.ConsultationNumber,
		Summary:        c.Diagnosis,
	}
	if record.Summary == "" {
		record.Summary = c.Assessment
	}
	if err := s.records.Create(ctx, record); err != nil {
		s.logger.Error(err, "failed to archive consultation record", map[string]interface{}{
			"consultation_id": c.ID,
		})
		return
	}

	c.MedicalRecordID = record.ID
	c.Touch(now)
	if err := s.repo.Update(ctx, c); err != nil {
		s.logger.Error(err, "failed to link medical record", map[string]interface{}{
			"consultation_id":   c.ID,
			"medical_record_id": record.ID,
		})
		return
	}

	entry := model.NewAuditLog(model.AuditMedicalRecordCreated, model.AuditResourceMedicalRecord, record.ID)
	entry.UserID = c.DoctorID
	entry.Details = map[string]interface{}{"consultation_id": c.ID}
	s.auditor.Record(ctx, entry)
}

// End closes the session as completed and mirrors the bound
// appointment.
func (s *Service) End(ctx context.Context, id, reason string) (*model.Consultation, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.IsClosed() {
			return nil, apperrors.Conflict("consultation is closed", nil)
		}

		now := s.now().UTC()
		c.EndTime = &now
		if c.StartTime != nil {
			c.ActualDuration = int(now.Sub(*c.StartTime).Minutes())
		}
		c.Status = model.ConsultationStatusCompleted
		c.Touch(now)

		if err := s.repo.Update(ctx, c); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}

		if err := s.mirror(ctx, c, model.AppointmentStatusCompleted, reason); err != nil {
			return nil, err
		}
		s.archiveRecord(ctx, c)
		s.recordAudit(ctx, model.AuditConsultationEnded, c, map[string]interface{}{"reason": reason})
		s.notifyBestEffort(ctx, model.EventConsultationEnded, c)
		if s.metrics != nil {
			s.metrics.TransitionsTotal.WithLabelValues("consultation", string(c.Status)).Inc()
		}
		return c, nil
	}
	return nil, apperrors.Conflict("consultation was modified concurrently", repository.ErrStaleRevision)
}

// Cancel closes an open session with a mandatory reason and mirrors
// the bound appointment.
func (s *Service) Cancel(ctx context.Context, id, reason string, by model.CancelledBy) (*model.Consultation, error) {
	if reason == "" {
		return nil, apperrors.Validation("cancellation requires a reason", nil)
	}
	if by == "" {
		by = model.CancelledBySystem
	}
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !c.IsOpen() {
			return nil, apperrors.IllegalTransition("consultation", string(c.Status), string(model.ConsultationStatusCancelled))
		}

		now := s.now().UTC()
		c.Status = model.ConsultationStatusCancelled
		c.CancellationReason = reason
		c.Touch(now)

		if err := s.repo.Update(ctx, c); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}

		if err := s.mirrorEvent(ctx, c, &model.StatusChangeRequest{
			Status:      model.AppointmentStatusCancelled,
			Reason:      reason,
			By:          by,
			OperationID: "consultation:" + c.ID + ":cancelled",
		}); err != nil {
			return nil, err
		}
		s.recordAudit(ctx, model.AuditConsultationCancelled, c, map[string]interface{}{"reason": reason})
		if s.metrics != nil {
			s.metrics.TransitionsTotal.WithLabelValues("consultation", string(c.Status)).Inc()
		}
		return c, nil
	}
	return nil, apperrors.Conflict("consultation was modified concurrently", repository.ErrStaleRevision)
}

// UpdateStatus dispatches a transport-level status change to the
// matching operation.
func (s *Service) UpdateStatus(ctx context.Context, id string, req *model.ConsultationStatusRequest) (*model.Consultation, error) {
	switch req.Status {
	case model.ConsultationStatusCompleted, model.ConsultationStatusEnded:
		return s.End(ctx, id, req.Reason)
	case model.ConsultationStatusCancelled:
		return s.Cancel(ctx, id, req.Reason, "")
	case model.ConsultationStatusWaiting:
		return s.markWaiting(ctx, id)
	default:
		c, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.IllegalTransition("consultation", string(c.Status), string(req.Status))
	}
}

func (s *Service) markWaiting(ctx context.Context, id string) (*model.Consultation, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.Status != model.ConsultationStatusScheduled {
			return nil, apperrors.IllegalTransition("consultation", string(c.Status), string(model.ConsultationStatusWaiting))
		}
		c.Status = model.ConsultationStatusWaiting
		c.Touch(s.now())
		if err := s.repo.Update(ctx, c); err != nil {
			if err == repository.ErrStaleRevision {
				continue
			}
			return nil, err
		}
		return c, nil
	}
	return nil, apperrors.Conflict("consultation was modified concurrently", repository.ErrStaleRevision)
}

// Summary assembles the read view: session, linked prescription and
// bound appointment.
func (s *Service) Summary(ctx context.Context, id string) (*model.ConsultationSummary, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := &model.ConsultationSummary{Consultation: c}
	if c.PrescriptionID != "" {
		p, err := s.prescriptions.Get(ctx, c.PrescriptionID)
		if err != nil && err != repository.ErrNotFound {
			return nil, err
		}
		summary.Prescription = p
	}
	if c.AppointmentID != "" {
		apt, err := s.appointments.Get(ctx, c.AppointmentID)
		if err != nil && err != repository.ErrNotFound {
			return nil, err
		}
		summary.Appointment = apt
	}
	return summary, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Consultation, error) {
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("consultation", err)
		}
		return nil, err
	}
	return c, nil
}

// mirror propagates a bound-session transition onto the appointment.
func (s *Service) mirror(ctx context.Context, c *model.Consultation, to model.AppointmentStatus, reason string) error {
	return s.mirrorEvent(ctx, c, &model.StatusChangeRequest{
		Status:      to,
		Reason:      reason,
		OperationID: "consultation:" + c.ID + ":" + string(to),
	})
}

// mirrorEvent applies the request to the bound appointment. A guard
// rejection means the appointment already diverged (for instance a
// session ended before anyone joined); it is logged, not fatal.
func (s *Service) mirrorEvent(ctx context.Context, c *model.Consultation, req *model.StatusChangeRequest) error {
	if c.AppointmentID == "" {
		return nil
	}
	_, err := s.transitioner.ChangeStatus(ctx, c.AppointmentID, req)
	if err != nil && apperrors.Is(err, apperrors.ErrIllegalTransition) {
		s.logger.Warn("skipped appointment mirror", map[string]interface{}{
			"consultation_id": c.ID,
			"appointment_id":  c.AppointmentID,
			"to":              string(req.Status),
			"error":           err.Error(),
		})
		return nil
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, action string, c *model.Consultation, details map[string]interface{}) {
	entry := model.NewAuditLog(action, model.AuditResourceConsultation, c.ID)
	entry.Details = details
	s.auditor.Record(ctx, entry)
}

func (s *Service) notifyBestEffort(ctx context.Context, eventType string, c *model.Consultation) {
	if err := s.enqueuer.EnqueueConsultationEvent(ctx, eventType, c); err != nil {
		s.logger.Error(err, "failed to enqueue consultation event", map[string]interface{}{
			"consultation_id": c.ID,
			"event_type":      eventType,
		})
	}
}
