package model

import "fmt"

type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "active"
	PrescriptionStatusCompleted PrescriptionStatus = "completed"
	PrescriptionStatusCancelled PrescriptionStatus = "cancelled"
)

type Medication struct {
	Name      string `json:"name" bson:"name"`
	Dosage    string `json:"dosage" bson:"dosage"`
	Frequency string `json:"frequency" bson:"frequency"`
	Duration  string `json:"duration,omitempty" bson:"duration,omitempty"`
	Quantity  int    `json:"quantity,omitempty" bson:"quantity,omitempty"`
	Notes     string `json:"notes,omitempty" bson:"notes,omitempty"`
}

type Prescription struct {
	Base
	PrescriptionNumber string             `json:"prescription_number" bson:"prescription_number"`
	ConsultationID     string             `json:"consultation_id,omitempty" bson:"consultation_id,omitempty"`
	AppointmentID      string             `json:"appointment_id,omitempty" bson:"appointment_id,omitempty"`
	PatientID          string             `json:"patient_id" bson:"patient_id"`
	DoctorID           string             `json:"doctor_id" bson:"doctor_id"`
	Medications        []Medication       `json:"medications" bson:"medications"`
	Diagnosis          string             `json:"diagnosis,omitempty" bson:"diagnosis,omitempty"`
	Instructions       string             `json:"instructions,omitempty" bson:"instructions,omitempty"`
	Refills            int                `json:"refills" bson:"refills"`
	Status             PrescriptionStatus `json:"status" bson:"status"`
}

func (p *Prescription) Validate() error {
	if p.PatientID == "" || p.DoctorID == "" {
		return fmt.Errorf("patient and doctor ids are required")
	}
	if len(p.Medications) == 0 {
		return fmt.Errorf("at least one medication is required")
	}
	for i, m := range p.Medications {
		if m.Name == "" || m.Dosage == "" || m.Frequency == "" {
			return fmt.Errorf("medication %d: name, dosage and frequency are required", i)
		}
	}
	if p.Refills < 0 {
		return fmt.Errorf("refills must not be negative")
	}
	return nil
}

type CreatePrescriptionRequest struct {
	Medications  []Medication `json:"medications" validate:"required,min=1,dive"`
	Diagnosis    string       `json:"diagnosis"`
	Instructions string       `json:"instructions"`
	Refills      int          `json:"refills" validate:"min=0"`
}
