package model

import (
	"fmt"
	"time"
)

type LabResultStatus string

const (
	LabResultStatusOrdered   LabResultStatus = "ordered"
	LabResultStatusCollected LabResultStatus = "collected"
	LabResultStatusReported  LabResultStatus = "reported"
	LabResultStatusCancelled LabResultStatus = "cancelled"
)

type LabResult struct {
	Base
	LabNumber      string          `json:"lab_number" bson:"lab_number"`
	PatientID      string          `json:"patient_id" bson:"patient_id"`
	OrderedBy      string          `json:"ordered_by" bson:"ordered_by"`
	ConsultationID string          `json:"consultation_id,omitempty" bson:"consultation_id,omitempty"`
	TestName       string          `json:"test_name" bson:"test_name"`
	Result         string          `json:"result,omitempty" bson:"result,omitempty"`
	ReferenceRange string          `json:"reference_range,omitempty" bson:"reference_range,omitempty"`
	Unit           string          `json:"unit,omitempty" bson:"unit,omitempty"`
	IsAbnormal     bool            `json:"is_abnormal,omitempty" bson:"is_abnormal,omitempty"`
	Status         LabResultStatus `json:"status" bson:"status"`
	ReportedAt     *time.Time      `json:"reported_at,omitempty" bson:"reported_at,omitempty"`
	Report         *Attachment     `json:"report,omitempty" bson:"report,omitempty"`
}

func (l *LabResult) Validate() error {
	if l.PatientID == "" {
		return fmt.Errorf("patient id is required")
	}
	if l.TestName == "" {
		return fmt.Errorf("test name is required")
	}
	return nil
}
