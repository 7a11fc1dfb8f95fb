package consultation

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

var testNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

type memConsultationRepo struct {
	mu    sync.Mutex
	items map[string]*model.Consultation
}

func newMemConsultationRepo() *memConsultationRepo {
	return &memConsultationRepo{items: map[string]*model.Consultation{}}
}

func (r *memConsultationRepo) Create(_ context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *memConsultationRepo) Get(_ context.Context, id string) (*model.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memConsultationRepo) Update(_ context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Revision != c.Revision {
		return repository.ErrStaleRevision
	}
	c.Revision++
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *memConsultationRepo) FindOpenForUser(_ context.Context, userID string) (*model.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.IsOpen() && (c.PatientID == userID || c.DoctorID == userID) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memConsultationRepo) GetByAppointment(_ context.Context, appointmentID string) (*model.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.AppointmentID == appointmentID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type stubAppointmentRepo struct {
	appointments map[string]*model.Appointment
	related      bool
}

func (s *stubAppointmentRepo) Get(_ context.Context, id string) (*model.Appointment, error) {
	apt, ok := s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return apt, nil
}

func (s *stubAppointmentRepo) HasAnyRelationship(context.Context, string, string) (bool, error) {
	return s.related, nil
}

func (s *stubAppointmentRepo) Create(context.Context, *model.Appointment) error { return nil }
func (s *stubAppointmentRepo) Update(context.Context, *model.Appointment) error { return nil }
func (s *stubAppointmentRepo) List(context.Context, *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	return nil, 0, nil
}
func (s *stubAppointmentRepo) ListForDoctorDay(context.Context, string, time.Time) ([]*model.Appointment, error) {
	return nil, nil
}
func (s *stubAppointmentRepo) ListDueReminders(context.Context, model.ReminderWindow, time.Time, int) ([]*model.Appointment, error) {
	return nil, nil
}
func (s *stubAppointmentRepo) SetReminderSent(context.Context, string, model.ReminderWindow) error {
	return nil
}
func (s *stubAppointmentRepo) SoftDelete(context.Context, string, string) error { return nil }

type stubDoctorRepo struct {
	profile *model.DoctorProfile
}

func (s *stubDoctorRepo) GetProfile(_ context.Context, doctorID string) (*model.DoctorProfile, error) {
	if s.profile == nil || s.profile.UserID != doctorID {
		return nil, repository.ErrNotFound
	}
	return s.profile, nil
}
func (s *stubDoctorRepo) UpdateProfile(context.Context, *model.DoctorProfile) error { return nil }
func (s *stubDoctorRepo) CreateProfile(context.Context, *model.DoctorProfile) error { return nil }
func (s *stubDoctorRepo) MarkOverrideSlot(context.Context, string, time.Time, string, string, bool) error {
	return nil
}

type memPrescriptionRepo struct {
	items map[string]*model.Prescription
}

func (r *memPrescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	if r.items == nil {
		r.items = map[string]*model.Prescription{}
	}
	r.items[p.ID] = p
	return nil
}

func (r *memPrescriptionRepo) Get(_ context.Context, id string) (*model.Prescription, error) {
	p, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type memRecordRepo struct {
	items []*model.MedicalRecord
	err   error
}

func (r *memRecordRepo) Create(_ context.Context, rec *model.MedicalRecord) error {
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, rec)
	return nil
}

func (r *memRecordRepo) Get(_ context.Context, id string) (*model.MedicalRecord, error) {
	for _, rec := range r.items {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRecordRepo) ListByPatient(_ context.Context, patientID string, _ model.Pagination) ([]*model.MedicalRecord, error) {
	var out []*model.MedicalRecord
	for _, rec := range r.items {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memLabRepo struct {
	items []*model.LabResult
}

func (r *memLabRepo) Create(_ context.Context, l *model.LabResult) error {
	r.items = append(r.items, l)
	return nil
}

func (r *memLabRepo) Get(_ context.Context, id string) (*model.LabResult, error) {
	for _, l := range r.items {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memLabRepo) ListByPatient(_ context.Context, patientID string, _ model.Pagination) ([]*model.LabResult, error) {
	var out []*model.LabResult
	for _, l := range r.items {
		if l.PatientID == patientID {
			out = append(out, l)
		}
	}
	return out, nil
}

type stubCounterRepo struct {
	seqs map[string]int64
}

func (s *stubCounterRepo) Next(_ context.Context, name string) (int64, error) {
	if s.seqs == nil {
		s.seqs = map[string]int64{}
	}
	s.seqs[name]++
	return s.seqs[name], nil
}

type mirrorCall struct {
	appointmentID string
	status        model.AppointmentStatus
	operationID   string
}

type stubTransitioner struct {
	calls []mirrorCall
	err   error
}

func (s *stubTransitioner) ChangeStatus(_ context.Context, id string, req *model.StatusChangeRequest) (*model.Appointment, error) {
	s.calls = append(s.calls, mirrorCall{appointmentID: id, status: req.Status, operationID: req.OperationID})
	if s.err != nil {
		return nil, s.err
	}
	return &model.Appointment{Base: model.Base{ID: id}, Status: req.Status}, nil
}

type stubEnqueuer struct {
	events []string
}

func (s *stubEnqueuer) EnqueueAppointmentEvent(_ context.Context, eventType string, _ *model.Appointment, _ string) error {
	s.events = append(s.events, eventType)
	return nil
}
func (s *stubEnqueuer) EnqueueReminderEvent(context.Context, *model.Appointment, model.ReminderWindow) error {
	return nil
}
func (s *stubEnqueuer) EnqueueConsultationEvent(_ context.Context, eventType string, _ *model.Consultation) error {
	s.events = append(s.events, eventType)
	return nil
}
func (s *stubEnqueuer) EnqueuePaymentEvent(_ context.Context, eventType string, _ *model.Payment) error {
	s.events = append(s.events, eventType)
	return nil
}

type stubAuditor struct {
	actions []string
}

func (s *stubAuditor) Record(_ context.Context, entry *model.AuditLog) {
	s.actions = append(s.actions, entry.Action)
}
func (s *stubAuditor) List(context.Context, *model.AuditFilters) ([]*model.AuditLog, error) {
	return nil, nil
}

type fixture struct {
	svc           *Service
	repo          *memConsultationRepo
	appointments  *stubAppointmentRepo
	prescriptions *memPrescriptionRepo
	records       *memRecordRepo
	labs          *memLabRepo
	transitioner  *stubTransitioner
	enqueuer      *stubEnqueuer
	auditor       *stubAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: newMemConsultationRepo(),
		appointments: &stubAppointmentRepo{
			appointments: map[string]*model.Appointment{},
			related:      true,
		},
		prescriptions: &memPrescriptionRepo{},
		records:       &memRecordRepo{},
		labs:          &memLabRepo{},
		transitioner:  &stubTransitioner{},
		enqueuer:      &stubEnqueuer{},
		auditor:       &stubAuditor{},
	}
	doctors := &stubDoctorRepo{profile: &model.DoctorProfile{
		Base:           model.NewBase(testNow),
		UserID:         "doc-1",
		Specialization: "cardiology",
		MedicalLicense: "LIC-1",
		IsAvailable:    true,
	}}
	f.svc = NewService(
		f.repo, f.appointments, doctors, f.prescriptions, f.records, f.labs,
		&stubCounterRepo{}, f.transitioner, f.enqueuer, f.auditor, testLogger(), nil,
	)
	f.svc.SetNow(func() time.Time { return testNow })
	return f
}

func initiateRequest() *model.InitiateConsultationRequest {
	return &model.InitiateConsultationRequest{
		PatientID:        "patient-1",
		DoctorID:         "doc-1",
		ConsultationType: "video",
	}
}

func (f *fixture) initiate(t *testing.T) *model.Consultation {
	t.Helper()
	c, err := f.svc.Initiate(context.Background(), initiateRequest())
	require.NoError(t, err)
	return c
}

func TestInitiate(t *testing.T) {
	f := newFixture(t)

	c := f.initiate(t)
	assert.Equal(t, "CONS-000001", c.ConsultationNumber)
	assert.Equal(t, model.ConsultationStatusScheduled, c.Status)
	assert.Equal(t, model.PriorityRoutine, c.Priority)
	assert.Equal(t, 30, c.Duration)
	assert.NotEmpty(t, c.RoomID)
	assert.Contains(t, f.auditor.actions, model.AuditConsultationInitiated)
	assert.Contains(t, f.enqueuer.events, model.EventConsultationCreated)
}

func TestInitiateEmergencyPriority(t *testing.T) {
	f := newFixture(t)
	req := initiateRequest()
	req.IsEmergency = true

	c, err := f.svc.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityEmergency, c.Priority)
}

func TestInitiateNoRelationship(t *testing.T) {
	f := newFixture(t)
	f.appointments.related = false

	_, err := f.svc.Initiate(context.Background(), initiateRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestInitiateOpenSessionConflict(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	req := initiateRequest()
	req.PatientID = "patient-2"
	_, err := f.svc.Initiate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict), "doctor already has an open session")
}

func TestInitiateAppointmentParticipantMismatch(t *testing.T) {
	f := newFixture(t)
	f.appointments.appointments["apt-1"] = &model.Appointment{
		Base:      model.Base{ID: "apt-1"},
		PatientID: "someone-else",
		DoctorID:  "doc-1",
	}
	req := initiateRequest()
	req.AppointmentID = "apt-1"

	_, err := f.svc.Initiate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestInitiateUnavailableDoctor(t *testing.T) {
	f := newFixture(t)
	until := testNow.Add(24 * time.Hour)
	f.svc.doctors.(*stubDoctorRepo).profile.UnavailableUntil = &until

	_, err := f.svc.Initiate(context.Background(), initiateRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrLocked))
}

func boundFixture(t *testing.T) (*fixture, *model.Consultation) {
	t.Helper()
	f := newFixture(t)
	f.appointments.appointments["apt-1"] = &model.Appointment{
		Base:      model.Base{ID: "apt-1"},
		PatientID: "patient-1",
		DoctorID:  "doc-1",
		Status:    model.AppointmentStatusConfirmed,
	}
	req := initiateRequest()
	req.AppointmentID = "apt-1"
	c, err := f.svc.Initiate(context.Background(), req)
	require.NoError(t, err)
	return f, c
}

func TestJoinActivatesAndMirrors(t *testing.T) {
	f, c := boundFixture(t)

	got, err := f.svc.Join(context.Background(), c.ID, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusActive, got.Status)
	require.NotNil(t, got.StartTime)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, model.ParticipantPatient, got.Participants[0].Role)

	require.Len(t, f.transitioner.calls, 1)
	assert.Equal(t, "apt-1", f.transitioner.calls[0].appointmentID)
	assert.Equal(t, model.AppointmentStatusInProgress, f.transitioner.calls[0].status)
	assert.Equal(t, "consultation:"+c.ID+":in-progress", f.transitioner.calls[0].operationID)
	assert.Contains(t, f.enqueuer.events, model.EventConsultationStarted)
}

func TestJoinSecondParticipantNoSecondActivation(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Join(context.Background(), c.ID, "patient-1")
	require.NoError(t, err)

	got, err := f.svc.Join(context.Background(), c.ID, "doc-1")
	require.NoError(t, err)
	require.Len(t, got.Participants, 2)
	assert.Len(t, f.transitioner.calls, 1, "only the first join mirrors")
}

func TestJoinIdempotentPerUser(t *testing.T) {
	f, c := boundFixture(t)
	first, err := f.svc.Join(context.Background(), c.ID, "patient-1")
	require.NoError(t, err)

	again, err := f.svc.Join(context.Background(), c.ID, "patient-1")
	require.NoError(t, err)
	assert.Len(t, again.Participants, 1)
	assert.Equal(t, first.Revision, again.Revision, "no write on re-join")
}

func TestJoinOutsiderForbidden(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Join(context.Background(), c.ID, "stranger")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestEndArchivesRecordAndMirrors(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Join(context.Background(), c.ID, "patient-1")
	require.NoError(t, err)
	_, err = f.svc.AttachNotes(context.Background(), c.ID, "doc-1", &model.ConsultationNotesRequest{
		Diagnosis:     "seasonal allergy",
		ClinicalNotes: "mild symptoms",
	})
	require.NoError(t, err)
	f.transitioner.calls = nil

	ended, err := f.svc.End(context.Background(), c.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCompleted, ended.Status)
	require.NotNil(t, ended.EndTime)

	require.Len(t, f.transitioner.calls, 1)
	assert.Equal(t, model.AppointmentStatusCompleted, f.transitioner.calls[0].status)

	require.Len(t, f.records.items, 1)
	record := f.records.items[0]
	assert.Equal(t, "seasonal allergy", record.Summary)
	assert.Equal(t, "consultation_summary", record.RecordType)
	assert.Equal(t, c.ID, record.ConsultationID)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, stored.MedicalRecordID)
	assert.Contains(t, f.auditor.actions, model.AuditMedicalRecordCreated)
	assert.Contains(t, f.auditor.actions, model.AuditConsultationEnded)
}

func TestEndWithoutClinicalFieldsSkipsRecord(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Join(context.Background(), c.ID, "patient-1")
	require.NoError(t, err)

	_, err = f.svc.End(context.Background(), c.ID, "")
	require.NoError(t, err)
	assert.Empty(t, f.records.items)
}

func TestEndClosedConflict(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.End(context.Background(), c.ID, "")
	require.NoError(t, err)

	_, err = f.svc.End(context.Background(), c.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCancelRequiresReason(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Cancel(context.Background(), c.ID, "", model.CancelledByPatient)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestCancelMirrorsWithActor(t *testing.T) {
	f, c := boundFixture(t)

	got, err := f.svc.Cancel(context.Background(), c.ID, "no longer needed", model.CancelledByPatient)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusCancelled, got.Status)
	assert.Equal(t, "no longer needed", got.CancellationReason)

	require.Len(t, f.transitioner.calls, 1)
	assert.Equal(t, model.AppointmentStatusCancelled, f.transitioner.calls[0].status)
}

func TestCancelToleratesDivergedAppointment(t *testing.T) {
	f, c := boundFixture(t)
	f.transitioner.err = apperrors.IllegalTransition("appointment", "completed", "cancelled")

	got, err := f.svc.Cancel(context.Background(), c.ID, "stale session", model.CancelledBySystem)
	require.NoError(t, err, "a diverged appointment does not block the cancellation")
	assert.Equal(t, model.ConsultationStatusCancelled, got.Status)
}

func TestAttachNotesOnlyDoctor(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.AttachNotes(context.Background(), c.ID, "patient-1", &model.ConsultationNotesRequest{
		ClinicalNotes: "self-diagnosis",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestCreatePrescription(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Join(context.Background(), c.ID, "doc-1")
	require.NoError(t, err)

	p, err := f.svc.CreatePrescription(context.Background(), c.ID, "doc-1", &model.CreatePrescriptionRequest{
		Medications: []model.Medication{{Name: "cetirizine", Dosage: "10mg", Frequency: "daily", Duration: "7 days"}},
		Diagnosis:   "seasonal allergy",
	})
	require.NoError(t, err)
	assert.Equal(t, "RX-000001", p.PrescriptionNumber)
	assert.Equal(t, model.PrescriptionStatusActive, p.Status)
	assert.Equal(t, "patient-1", p.PatientID)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.PrescriptionID)
	assert.Contains(t, f.auditor.actions, model.AuditPrescriptionCreated)
}

func TestAttachLabResult(t *testing.T) {
	f, c := boundFixture(t)

	ordered, err := f.svc.AttachLabResult(context.Background(), c.ID, "doc-1", &model.AttachLabResultRequest{
		TestName: "CBC",
	})
	require.NoError(t, err)
	assert.Equal(t, "LAB-000001", ordered.LabNumber)
	assert.Equal(t, model.LabResultStatusOrdered, ordered.Status)
	assert.Nil(t, ordered.ReportedAt)

	reported, err := f.svc.AttachLabResult(context.Background(), c.ID, "doc-1", &model.AttachLabResultRequest{
		TestName:       "HbA1c",
		Result:         "5.4",
		Unit:           "%",
		ReferenceRange: "4.0-5.6",
		ReportLocation: "s3://labs/hba1c.pdf",
		ReportChecksum: "abc123",
		ContentType:    "application/pdf",
		SizeBytes:      2048,
	})
	require.NoError(t, err)
	assert.Equal(t, model.LabResultStatusReported, reported.Status)
	require.NotNil(t, reported.ReportedAt)
	require.NotNil(t, reported.Report)
	assert.Equal(t, "s3://labs/hba1c.pdf", reported.Report.Location)
	assert.Contains(t, f.auditor.actions, model.AuditLabResultAttached)
}

func TestAttachLabResultAfterEndAllowed(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.End(context.Background(), c.ID, "")
	require.NoError(t, err)

	_, err = f.svc.AttachLabResult(context.Background(), c.ID, "doc-1", &model.AttachLabResultRequest{TestName: "CBC"})
	assert.NoError(t, err, "lab reports may arrive after the session ends")
}

func TestAttachLabResultCancelledBlocked(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Cancel(context.Background(), c.ID, "gone", model.CancelledByPatient)
	require.NoError(t, err)

	_, err = f.svc.AttachLabResult(context.Background(), c.ID, "doc-1", &model.AttachLabResultRequest{TestName: "CBC"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestUpdateStatusWaiting(t *testing.T) {
	f, c := boundFixture(t)

	got, err := f.svc.UpdateStatus(context.Background(), c.ID, &model.ConsultationStatusRequest{
		Status: model.ConsultationStatusWaiting,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusWaiting, got.Status)

	_, err = f.svc.UpdateStatus(context.Background(), c.ID, &model.ConsultationStatusRequest{
		Status: model.ConsultationStatusWaiting,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIllegalTransition))
}

func TestSummary(t *testing.T) {
	f, c := boundFixture(t)
	_, err := f.svc.Join(context.Background(), c.ID, "doc-1")
	require.NoError(t, err)
	p, err := f.svc.CreatePrescription(context.Background(), c.ID, "doc-1", &model.CreatePrescriptionRequest{
		Medications: []model.Medication{{Name: "cetirizine", Dosage: "10mg", Frequency: "daily", Duration: "7 days"}},
	})
	require.NoError(t, err)

	summary, err := f.svc.Summary(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.Prescription)
	assert.Equal(t, p.ID, summary.Prescription.ID)
	require.NotNil(t, summary.Appointment)
	assert.Equal(t, "apt-1", summary.Appointment.ID)
}
