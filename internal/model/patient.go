package model

import "fmt"

// PatientProfile is owned 1:1 by a patient user. MedicalRecordNumber is
// the patient's stable human-readable identifier (MRN), unique globally.
type PatientProfile struct {
	Base
	UserID              string  `json:"user_id" bson:"user_id"`
	MedicalRecordNumber string  `json:"medical_record_number" bson:"medical_record_number"`
	BloodGroup          string  `json:"blood_group,omitempty" bson:"blood_group,omitempty"`
	Allergies           []string `json:"allergies,omitempty" bson:"allergies,omitempty"`
	ChronicConditions   []string `json:"chronic_conditions,omitempty" bson:"chronic_conditions,omitempty"`
	HeightCM            float64 `json:"height_cm,omitempty" bson:"height_cm,omitempty"`
	WeightKG            float64 `json:"weight_kg,omitempty" bson:"weight_kg,omitempty"`

	EmergencyContactName  string `json:"emergency_contact_name,omitempty" bson:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty" bson:"emergency_contact_phone,omitempty"`
}

func (p *PatientProfile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if p.MedicalRecordNumber == "" {
		return fmt.Errorf("medical record number is required")
	}
	return nil
}

type CreatePatientProfileRequest struct {
	UserID                string   `json:"user_id" validate:"required"`
	BloodGroup            string   `json:"blood_group"`
	Allergies             []string `json:"allergies"`
	ChronicConditions     []string `json:"chronic_conditions"`
	HeightCM              float64  `json:"height_cm" validate:"omitempty,gt=0"`
	WeightKG              float64  `json:"weight_kg" validate:"omitempty,gt=0"`
	EmergencyContactName  string   `json:"emergency_contact_name"`
	EmergencyContactPhone string   `json:"emergency_contact_phone"`
}

// BMI is computed on read from stored primitives; never persisted.
func (p *PatientProfile) BMI() float64 {
	if p.HeightCM <= 0 || p.WeightKG <= 0 {
		return 0
	}
	meters := p.HeightCM / 100
	return p.WeightKG / (meters * meters)
}
