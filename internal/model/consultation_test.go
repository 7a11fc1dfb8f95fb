package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsultationOpenClosed(t *testing.T) {
	c := &Consultation{}
	open := []ConsultationStatus{ConsultationStatusScheduled, ConsultationStatusActive, ConsultationStatusWaiting}
	for _, st := range open {
		c.Status = st
		assert.True(t, c.IsOpen(), "status %s", st)
		assert.False(t, c.IsClosed(), "status %s", st)
	}
	closed := []ConsultationStatus{ConsultationStatusCompleted, ConsultationStatusCancelled, ConsultationStatusEnded}
	for _, st := range closed {
		c.Status = st
		assert.True(t, c.IsClosed(), "status %s", st)
		assert.False(t, c.IsOpen(), "status %s", st)
	}
}

func TestConsultationRoleOf(t *testing.T) {
	c := &Consultation{PatientID: "p1", DoctorID: "d1"}
	assert.Equal(t, ParticipantPatient, c.RoleOf("p1"))
	assert.Equal(t, ParticipantDoctor, c.RoleOf("d1"))
	assert.Empty(t, c.RoleOf("stranger"))
}

func TestConsultationHasJoined(t *testing.T) {
	c := &Consultation{
		Participants: []Participant{{UserID: "p1", Role: ParticipantPatient, JoinTime: time.Now()}},
	}
	assert.True(t, c.HasJoined("p1"))
	assert.False(t, c.HasJoined("d1"))
}

func TestConsultationValidate(t *testing.T) {
	c := &Consultation{
		PatientID:        "p1",
		DoctorID:         "d1",
		ConsultationType: ConsultationTypeVideo,
		Duration:         30,
	}
	assert.NoError(t, c.Validate())

	c.ConsultationType = "hologram"
	assert.Error(t, c.Validate())

	c.ConsultationType = ConsultationTypeChat
	start := time.Now()
	end := start.Add(-time.Minute)
	c.StartTime = &start
	c.EndTime = &end
	assert.Error(t, c.Validate(), "end precedes start")
}
