package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/consult-api/pkg/security"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	RoleNurse   Role = "nurse"
	RoleStaff   Role = "staff"
)

const (
	// Account lockout after consecutive failed authentications.
	MaxLoginAttempts = 5
	LockoutDuration  = 15 * time.Minute
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

type User struct {
	Base
	FirstName     string `json:"first_name" bson:"first_name"`
	LastName      string `json:"last_name" bson:"last_name"`
	Email         string `json:"email" bson:"email"`
	Phone         string `json:"phone,omitempty" bson:"phone,omitempty"`
	PasswordHash  string `json:"-" bson:"password_hash"`
	Role          Role   `json:"role" bson:"role"`
	IsActive      bool   `json:"is_active" bson:"is_active"`
	EmailVerified bool   `json:"email_verified" bson:"email_verified"`
	PhoneVerified bool   `json:"phone_verified" bson:"phone_verified"`

	// Patient-only fields.
	DateOfBirth *time.Time `json:"date_of_birth,omitempty" bson:"date_of_birth,omitempty"`
	Gender      Gender     `json:"gender,omitempty" bson:"gender,omitempty"`

	// Doctor-only fields.
	Specialization  string  `json:"specialization,omitempty" bson:"specialization,omitempty"`
	MedicalLicense  string  `json:"medical_license,omitempty" bson:"medical_license,omitempty"`
	Qualification   string  `json:"qualification,omitempty" bson:"qualification,omitempty"`
	Department      string  `json:"department,omitempty" bson:"department,omitempty"`
	ConsultationFee float64 `json:"consultation_fee,omitempty" bson:"consultation_fee,omitempty"`

	LoginAttempts int        `json:"-" bson:"login_attempts"`
	LockedUntil   *time.Time `json:"-" bson:"locked_until,omitempty"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty" bson:"last_login_at,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SetPassword stores the bcrypt hash of the plaintext secret.
func (u *User) SetPassword(password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword reports whether the plaintext secret matches the
// stored hash.
func (u *User) CheckPassword(password string) bool {
	return security.VerifyPassword(u.PasswordHash, password)
}

// Validate fully checks the user's invariants, including the
// role-conditional required fields.
func (u *User) Validate() error {
	if u.FirstName == "" {
		return fmt.Errorf("first name is required")
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email %q", u.Email)
	}
	switch u.Role {
	case RolePatient:
		if u.DateOfBirth == nil {
			return fmt.Errorf("date of birth is required for patients")
		}
		if u.Gender != GenderMale && u.Gender != GenderFemale && u.Gender != GenderOther {
			return fmt.Errorf("invalid gender %q", u.Gender)
		}
	case RoleDoctor:
		if u.Specialization == "" {
			return fmt.Errorf("specialization is required for doctors")
		}
		if u.MedicalLicense == "" {
			return fmt.Errorf("medical license is required for doctors")
		}
		if u.ConsultationFee < 0 {
			return fmt.Errorf("consultation fee must not be negative")
		}
	case RoleAdmin, RoleNurse, RoleStaff:
	default:
		return fmt.Errorf("invalid role %q", u.Role)
	}
	return nil
}

// NormalizedEmail lower-cases the address; email uniqueness is
// case-insensitive.
func (u *User) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(u.Email))
}

// IsLocked reports whether the account is in its lockout cooldown.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RegisterFailedLogin bumps the attempt counter and locks the account
// once MaxLoginAttempts consecutive failures accumulate.
func (u *User) RegisterFailedLogin(now time.Time) {
	u.LoginAttempts++
	if u.LoginAttempts >= MaxLoginAttempts {
		until := now.Add(LockoutDuration)
		u.LockedUntil = &until
	}
}

func (u *User) ResetLoginAttempts(now time.Time) {
	u.LoginAttempts = 0
	u.LockedUntil = nil
	t := now
	u.LastLoginAt = &t
}

// Age computes the patient's age on read; never persisted.
func (u *User) Age(now time.Time) int {
	if u.DateOfBirth == nil {
		return 0
	}
	years := now.Year() - u.DateOfBirth.Year()
	if now.YearDay() < u.DateOfBirth.YearDay() {
		years--
	}
	return years
}
