package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func completedPayment(now time.Time) *Payment {
	completed := now.Add(-time.Hour)
	return &Payment{
		Base:          NewBase(now),
		UserID:        "patient-1",
		PatientID:     "patient-1",
		AppointmentID: "apt-1",
		Amount:        500,
		TotalAmount:   500,
		Status:        PaymentStatusCompleted,
		CompletedAt:   &completed,
	}
}

func TestPaymentValidateTotals(t *testing.T) {
	now := time.Now()
	p := completedPayment(now)
	assert.NoError(t, p.Validate())

	p.TaxAmount = 90
	p.DiscountAmount = 40
	p.TotalAmount = 550
	assert.NoError(t, p.Validate(), "amount + tax - discount")

	p.TotalAmount = 560
	assert.Error(t, p.Validate(), "total drifted off the identity")

	p = completedPayment(now)
	p.Refunds = []Refund{{Amount: 600, RefundedAt: now}}
	assert.Error(t, p.Validate(), "refunds exceed total")

	p = completedPayment(now)
	p.Amount = -1
	p.TotalAmount = -1
	assert.Error(t, p.Validate())
}

func TestPaymentRefundable(t *testing.T) {
	now := time.Now()
	p := completedPayment(now)
	assert.True(t, p.Refundable(now))

	pending := completedPayment(now)
	pending.Status = PaymentStatusPending
	assert.False(t, pending.Refundable(now))

	expired := completedPayment(now)
	past := now.Add(-RefundWindow - time.Hour)
	expired.CompletedAt = &past
	assert.False(t, expired.Refundable(now), "past the refund window")

	drained := completedPayment(now)
	drained.Status = PaymentStatusPartiallyRefunded
	drained.Refunds = []Refund{{Amount: 500, RefundedAt: now}}
	assert.False(t, drained.Refundable(now), "nothing left to refund")

	partial := completedPayment(now)
	partial.Status = PaymentStatusPartiallyRefunded
	partial.Refunds = []Refund{{Amount: 200, RefundedAt: now}}
	assert.True(t, partial.Refundable(now))
	assert.InDelta(t, 300, partial.RemainingRefundable(), 0.001)
}

func TestPaymentCanTransition(t *testing.T) {
	p := &Payment{Status: PaymentStatusPending}
	assert.True(t, p.CanTransition(PaymentStatusProcessing))
	assert.True(t, p.CanTransition(PaymentStatusCompleted))
	assert.True(t, p.CanTransition(PaymentStatusFailed))
	assert.False(t, p.CanTransition(PaymentStatusRefunded))

	p.Status = PaymentStatusProcessing
	assert.True(t, p.CanTransition(PaymentStatusCompleted))
	assert.False(t, p.CanTransition(PaymentStatusPending))

	p.Status = PaymentStatusCompleted
	assert.True(t, p.CanTransition(PaymentStatusRefunded))
	assert.True(t, p.CanTransition(PaymentStatusPartiallyRefunded))
	assert.False(t, p.CanTransition(PaymentStatusProcessing))

	p.Status = PaymentStatusPartiallyRefunded
	assert.True(t, p.CanTransition(PaymentStatusRefunded))
	assert.True(t, p.CanTransition(PaymentStatusPartiallyRefunded))

	for _, terminal := range []PaymentStatus{PaymentStatusFailed, PaymentStatusRefunded} {
		p.Status = terminal
		for _, to := range []PaymentStatus{
			PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
			PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusPartiallyRefunded,
		} {
			assert.False(t, p.CanTransition(to), "%s -> %s", terminal, to)
		}
	}
}
