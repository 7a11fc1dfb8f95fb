package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type outboxRepoStub struct {
	pending   []*model.OutboxEvent
	processed []string
	failed    []failedMark
}

type failedMark struct {
	id      string
	retryAt *time.Time
}

func (s *outboxRepoStub) Create(_ context.Context, event *model.OutboxEvent) error {
	s.pending = append(s.pending, event)
	return nil
}

func (s *outboxRepoStub) ClaimPending(_ context.Context, _ string, limit int) ([]*model.OutboxEvent, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *outboxRepoStub) MarkProcessed(_ context.Context, id string) error {
	s.processed = append(s.processed, id)
	return nil
}

func (s *outboxRepoStub) MarkFailed(_ context.Context, id string, _ string, retryAt *time.Time) error {
	s.failed = append(s.failed, failedMark{id: id, retryAt: retryAt})
	return nil
}

func (s *outboxRepoStub) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type userRepoStub struct {
	users map[string]*model.User
}

func (s *userRepoStub) Create(context.Context, *model.User) error { return nil }
func (s *userRepoStub) Get(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}
func (s *userRepoStub) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, repository.ErrNotFound
}
func (s *userRepoStub) Update(context.Context, *model.User) error { return nil }

type brokerStub struct {
	published []string
	err       error
}

func (b *brokerStub) Publish(_ context.Context, channel string, _ interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, channel)
	return nil
}

func (b *brokerStub) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *brokerStub) Close() error { return nil }

type emailStub struct {
	sent []string
}

func (e *emailStub) SendAppointmentCreated(_ context.Context, to, number, _ string) error {
	e.sent = append(e.sent, "created:"+to+":"+number)
	return nil
}
func (e *emailStub) SendAppointmentConfirmed(_ context.Context, to, number, _ string) error {
	e.sent = append(e.sent, "confirmed:"+to+":"+number)
	return nil
}
func (e *emailStub) SendAppointmentCancelled(_ context.Context, to, number, _ string) error {
	e.sent = append(e.sent, "cancelled:"+to+":"+number)
	return nil
}
func (e *emailStub) SendAppointmentReminder(_ context.Context, to, number, _, window string) error {
	e.sent = append(e.sent, "reminder:"+to+":"+number+":"+window)
	return nil
}
func (e *emailStub) SendCustom(_ context.Context, to, subject, _ string) error {
	e.sent = append(e.sent, "custom:"+to+":"+subject)
	return nil
}

func outboxFixture(outbox *outboxRepoStub, broker *brokerStub, emails *emailStub) *OutboxProcessor {
	users := &userRepoStub{users: map[string]*model.User{
		"patient-1": {Base: model.Base{ID: "patient-1"}, Email: "asha@example.com"},
	}}
	cfg := OutboxConfig{PollInterval: time.Second, BatchSize: 50, MaxRetries: 3, RetryBackoff: 30 * time.Second}
	return NewOutboxProcessor(cfg, outbox, users, broker, emails, testLogger(), nil)
}

func appointmentEvent(t *testing.T, eventType string) *model.OutboxEvent {
	t.Helper()
	event, err := model.NewOutboxEvent(eventType, model.AppointmentEventPayload{
		AppointmentID:     "apt-1",
		AppointmentNumber: "APT-000001",
		PatientID:         "patient-1",
		ScheduledAt:       testNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return event
}

func TestProcessBatchPublishesAndMails(t *testing.T) {
	outbox := &outboxRepoStub{}
	broker := &brokerStub{}
	emails := &emailStub{}
	event := appointmentEvent(t, model.EventAppointmentConfirmed)
	outbox.pending = []*model.OutboxEvent{event}

	outboxFixture(outbox, broker, emails).processBatch(context.Background())

	assert.Equal(t, []string{model.EventAppointmentConfirmed}, broker.published)
	assert.Equal(t, []string{"confirmed:asha@example.com:APT-000001"}, emails.sent)
	assert.Equal(t, []string{event.ID}, outbox.processed)
	assert.Empty(t, outbox.failed)
}

func TestProcessBatchSkipsEmailForOtherEvents(t *testing.T) {
	outbox := &outboxRepoStub{}
	broker := &brokerStub{}
	emails := &emailStub{}
	event, err := model.NewOutboxEvent(model.EventPaymentCompleted, model.PaymentEventPayload{PaymentID: "pay-1"})
	require.NoError(t, err)
	outbox.pending = []*model.OutboxEvent{event}

	outboxFixture(outbox, broker, emails).processBatch(context.Background())

	assert.Equal(t, []string{model.EventPaymentCompleted}, broker.published)
	assert.Empty(t, emails.sent)
	assert.Equal(t, []string{event.ID}, outbox.processed)
}

func TestProcessBatchUnknownRecipientStillProcessed(t *testing.T) {
	outbox := &outboxRepoStub{}
	broker := &brokerStub{}
	emails := &emailStub{}
	event, err := model.NewOutboxEvent(model.EventAppointmentCreated, model.AppointmentEventPayload{
		AppointmentID: "apt-1",
		PatientID:     "ghost",
	})
	require.NoError(t, err)
	outbox.pending = []*model.OutboxEvent{event}

	outboxFixture(outbox, broker, emails).processBatch(context.Background())

	assert.Empty(t, emails.sent)
	assert.Equal(t, []string{event.ID}, outbox.processed)
}

func TestProcessBatchBrokerFailureSchedulesRetry(t *testing.T) {
	outbox := &outboxRepoStub{}
	broker := &brokerStub{err: errors.New("redis down")}
	emails := &emailStub{}
	event := appointmentEvent(t, model.EventAppointmentCreated)
	outbox.pending = []*model.OutboxEvent{event}

	outboxFixture(outbox, broker, emails).processBatch(context.Background())

	assert.Empty(t, outbox.processed)
	require.Len(t, outbox.failed, 1)
	assert.Equal(t, event.ID, outbox.failed[0].id)
	require.NotNil(t, outbox.failed[0].retryAt, "first failure schedules a retry")
}

func TestProcessBatchExhaustedRetriesStopRescheduling(t *testing.T) {
	outbox := &outboxRepoStub{}
	broker := &brokerStub{err: errors.New("redis down")}
	emails := &emailStub{}
	event := appointmentEvent(t, model.EventAppointmentCreated)
	event.RetryCount = 2 // MaxRetries is 3; next failure is the last.
	outbox.pending = []*model.OutboxEvent{event}

	outboxFixture(outbox, broker, emails).processBatch(context.Background())

	require.Len(t, outbox.failed, 1)
	assert.Nil(t, outbox.failed[0].retryAt, "no further retries after the budget is spent")
}
