package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPatientUser() *User {
	dob := time.Date(1990, 5, 15, 0, 0, 0, 0, time.UTC)
	return &User{
		Base:        NewBase(time.Now()),
		FirstName:   "Asha",
		LastName:    "Rao",
		Email:       "asha@example.com",
		Role:        RolePatient,
		DateOfBirth: &dob,
		Gender:      GenderFemale,
	}
}

func TestUserValidateRoleConditional(t *testing.T) {
	assert.NoError(t, validPatientUser().Validate())

	noDOB := validPatientUser()
	noDOB.DateOfBirth = nil
	assert.Error(t, noDOB.Validate())

	doctor := validPatientUser()
	doctor.Role = RoleDoctor
	assert.Error(t, doctor.Validate(), "doctor without license or specialization")

	doctor.Specialization = "dermatology"
	doctor.MedicalLicense = "LIC-9"
	assert.NoError(t, doctor.Validate())

	admin := validPatientUser()
	admin.Role = RoleAdmin
	admin.DateOfBirth = nil
	admin.Gender = ""
	assert.NoError(t, admin.Validate(), "admin has no conditional fields")

	badRole := validPatientUser()
	badRole.Role = "superuser"
	assert.Error(t, badRole.Validate())

	badEmail := validPatientUser()
	badEmail.Email = "not-an-email"
	assert.Error(t, badEmail.Validate())
}

func TestUserPassword(t *testing.T) {
	u := validPatientUser()
	require.NoError(t, u.SetPassword("s3cret-passphrase"))
	assert.NotEqual(t, "s3cret-passphrase", u.PasswordHash)
	assert.True(t, u.CheckPassword("s3cret-passphrase"))
	assert.False(t, u.CheckPassword("wrong"))
}

func TestUserLockout(t *testing.T) {
	now := time.Now()
	u := validPatientUser()

	for i := 0; i < MaxLoginAttempts-1; i++ {
		u.RegisterFailedLogin(now)
		assert.False(t, u.IsLocked(now), "attempt %d", i+1)
	}
	u.RegisterFailedLogin(now)
	assert.True(t, u.IsLocked(now))
	assert.True(t, u.IsLocked(now.Add(LockoutDuration-time.Second)))
	assert.False(t, u.IsLocked(now.Add(LockoutDuration+time.Second)))

	u.ResetLoginAttempts(now)
	assert.False(t, u.IsLocked(now))
	assert.Zero(t, u.LoginAttempts)
	require.NotNil(t, u.LastLoginAt)
}

func TestUserAge(t *testing.T) {
	u := validPatientUser()
	now := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 35, u.Age(now))
	assert.Equal(t, 34, u.Age(now.AddDate(0, 0, -1)), "day before birthday")

	u.DateOfBirth = nil
	assert.Zero(t, u.Age(now))
}

func TestNormalizedEmail(t *testing.T) {
	u := validPatientUser()
	u.Email = "  Asha@Example.COM "
	assert.Equal(t, "asha@example.com", u.NormalizedEmail())
}
