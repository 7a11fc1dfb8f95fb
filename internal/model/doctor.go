package model

import (
	"fmt"
	"time"
)

const (
	MinAppointmentDuration = 15
	MaxAppointmentDuration = 120
	MaxBufferMinutes       = 60
)

// WeeklySchedule is a recurring availability template for one weekday.
type WeeklySchedule struct {
	DayOfWeek           int    `json:"day_of_week" bson:"day_of_week"`
	StartTime           string `json:"start_time" bson:"start_time"`
	EndTime             string `json:"end_time" bson:"end_time"`
	AppointmentDuration int    `json:"appointment_duration" bson:"appointment_duration"`
	MaxPatients         int    `json:"max_patients" bson:"max_patients"`
}

// OverrideSlot is one per-date exception entry. When overrides exist
// for a date they fully replace the slots generated from the weekly
// template for that date.
type OverrideSlot struct {
	StartTime     string `json:"start_time" bson:"start_time"`
	EndTime       string `json:"end_time" bson:"end_time"`
	IsBooked      bool   `json:"is_booked" bson:"is_booked"`
	AppointmentID string `json:"appointment_id,omitempty" bson:"appointment_id,omitempty"`
}

// AvailabilityOverride groups the override slots for a single date.
type AvailabilityOverride struct {
	Date  time.Time      `json:"date" bson:"date"`
	Slots []OverrideSlot `json:"slots" bson:"slots"`
}

// DoctorProfile is owned 1:1 by a doctor user.
type DoctorProfile struct {
	Base
	UserID          string  `json:"user_id" bson:"user_id"`
	Specialization  string  `json:"specialization" bson:"specialization"`
	MedicalLicense  string  `json:"medical_license" bson:"medical_license"`
	Qualification   string  `json:"qualification,omitempty" bson:"qualification,omitempty"`
	Department      string  `json:"department,omitempty" bson:"department,omitempty"`
	ConsultationFee float64 `json:"consultation_fee" bson:"consultation_fee"`
	FollowUpFee     float64 `json:"follow_up_fee" bson:"follow_up_fee"`

	Schedule     []WeeklySchedule       `json:"schedule" bson:"schedule"`
	Availability []AvailabilityOverride `json:"availability,omitempty" bson:"availability,omitempty"`

	IsAvailable      bool       `json:"is_available" bson:"is_available"`
	UnavailableUntil *time.Time `json:"unavailable_until,omitempty" bson:"unavailable_until,omitempty"`

	// Buffer minutes between consecutive slots; authoritative over any
	// per-template value.
	AppointmentBufferTime int `json:"appointment_buffer_time" bson:"appointment_buffer_time"`

	// IANA zone of the schedule wall-clock strings. Defaults to UTC.
	Timezone string `json:"timezone,omitempty" bson:"timezone,omitempty"`
}

// Location resolves the profile timezone, falling back to UTC.
func (d *DoctorProfile) Location() *time.Location {
	if d.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TemplateFor returns the first weekly template matching the weekday.
// When duplicates exist the earliest-defined one wins.
func (d *DoctorProfile) TemplateFor(weekday time.Weekday) *WeeklySchedule {
	for i := range d.Schedule {
		if d.Schedule[i].DayOfWeek == int(weekday) {
			return &d.Schedule[i]
		}
	}
	return nil
}

// OverrideFor returns the per-date override entry for the date, if any.
func (d *DoctorProfile) OverrideFor(date time.Time) *AvailabilityOverride {
	want := DateOnly(date)
	for i := range d.Availability {
		if DateOnly(d.Availability[i].Date).Equal(want) {
			return &d.Availability[i]
		}
	}
	return nil
}

// UnavailableOn reports whether the doctor must be treated as
// unavailable for the whole date.
func (d *DoctorProfile) UnavailableOn(date time.Time) bool {
	if !d.IsAvailable {
		return true
	}
	return d.UnavailableUntil != nil && d.UnavailableUntil.After(DateOnly(date))
}

type CreateDoctorProfileRequest struct {
	UserID          string  `json:"user_id" validate:"required"`
	Specialization  string  `json:"specialization" validate:"required"`
	MedicalLicense  string  `json:"medical_license" validate:"required"`
	Qualification   string  `json:"qualification"`
	Department      string  `json:"department"`
	ConsultationFee float64 `json:"consultation_fee" validate:"gte=0"`
	FollowUpFee     float64 `json:"follow_up_fee" validate:"gte=0"`
	Timezone        string  `json:"timezone"`

	Schedule              []WeeklySchedule `json:"schedule"`
	AppointmentBufferTime int              `json:"appointment_buffer_time" validate:"gte=0,lte=60"`
}

// UpdateScheduleRequest replaces the recurring templates and per-date
// overrides wholesale; nil pointer fields keep their stored values.
type UpdateScheduleRequest struct {
	Schedule              []WeeklySchedule       `json:"schedule"`
	Availability          []AvailabilityOverride `json:"availability"`
	IsAvailable           *bool                  `json:"is_available"`
	UnavailableUntil      *time.Time             `json:"unavailable_until"`
	AppointmentBufferTime *int                   `json:"appointment_buffer_time"`
	Timezone              *string                `json:"timezone"`
}

func (s *WeeklySchedule) validate() error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be in 0..6, got %d", s.DayOfWeek)
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start time %s must be before end time %s", s.StartTime, s.EndTime)
	}
	if s.AppointmentDuration < MinAppointmentDuration || s.AppointmentDuration > MaxAppointmentDuration {
		return fmt.Errorf("appointment duration must be between %d and %d minutes", MinAppointmentDuration, MaxAppointmentDuration)
	}
	if s.MaxPatients < 1 {
		return fmt.Errorf("max patients must be at least 1")
	}
	return nil
}

// Validate fully checks the profile invariants: valid templates, one
// template per weekday, non-overlapping override slots per date, and
// the buffer range.
func (d *DoctorProfile) Validate() error {
	if d.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if d.ConsultationFee < 0 || d.FollowUpFee < 0 {
		return fmt.Errorf("fees must not be negative")
	}
	if d.AppointmentBufferTime < 0 || d.AppointmentBufferTime > MaxBufferMinutes {
		return fmt.Errorf("appointment buffer must be between 0 and %d minutes", MaxBufferMinutes)
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", d.Timezone, err)
		}
	}

	seen := make(map[int]bool, len(d.Schedule))
	for i := range d.Schedule {
		if err := d.Schedule[i].validate(); err != nil {
			return fmt.Errorf("schedule entry %d: %w", i, err)
		}
		if seen[d.Schedule[i].DayOfWeek] {
			return fmt.Errorf("duplicate schedule template for weekday %d", d.Schedule[i].DayOfWeek)
		}
		seen[d.Schedule[i].DayOfWeek] = true
	}

	for _, ov := range d.Availability {
		type window struct{ start, end int }
		windows := make([]window, 0, len(ov.Slots))
		for _, slot := range ov.Slots {
			start, err := ParseClock(slot.StartTime)
			if err != nil {
				return err
			}
			end, err := ParseClock(slot.EndTime)
			if err != nil {
				return err
			}
			if start >= end {
				return fmt.Errorf("override slot %s-%s on %s is empty", slot.StartTime, slot.EndTime, ov.Date.Format("2006-01-02"))
			}
			for _, w := range windows {
				if start < w.end && w.start < end {
					return fmt.Errorf("overlapping override slots on %s", ov.Date.Format("2006-01-02"))
				}
			}
			windows = append(windows, window{start, end})
		}
	}
	return nil
}
