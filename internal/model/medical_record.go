package model

import "fmt"

// Attachment points at a file written by the external storage
// collaborator; only location and checksum are stored here.
type Attachment struct {
	Location    string `json:"location" bson:"location"`
	Checksum    string `json:"checksum" bson:"checksum"`
	ContentType string `json:"content_type,omitempty" bson:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty" bson:"size_bytes,omitempty"`
}

type MedicalRecord struct {
	Base
	PatientID      string       `json:"patient_id" bson:"patient_id"`
	DoctorID       string       `json:"doctor_id" bson:"doctor_id"`
	ConsultationID string       `json:"consultation_id,omitempty" bson:"consultation_id,omitempty"`
	RecordType     string       `json:"record_type" bson:"record_type"`
	Title          string       `json:"title" bson:"title"`
	Summary        string       `json:"summary,omitempty" bson:"summary,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty" bson:"attachments,omitempty"`
}

func (m *MedicalRecord) Validate() error {
	if m.PatientID == "" {
		return fmt.Errorf("patient id is required")
	}
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}
