package model

import (
	"fmt"
	"math"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially-refunded"
)

// RefundWindow bounds how long after completion a payment stays
// refundable.
const RefundWindow = 90 * 24 * time.Hour

const amountEpsilon = 0.005

type Refund struct {
	Amount        float64   `json:"amount" bson:"amount"`
	Reason        string    `json:"reason,omitempty" bson:"reason,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	RefundedAt    time.Time `json:"refunded_at" bson:"refunded_at"`
}

type LineItem struct {
	Description string  `json:"description" bson:"description"`
	Quantity    int     `json:"quantity" bson:"quantity"`
	UnitPrice   float64 `json:"unit_price" bson:"unit_price"`
	Total       float64 `json:"total" bson:"total"`
}

type Invoice struct {
	InvoiceNumber string     `json:"invoice_number" bson:"invoice_number"`
	InvoiceDate   time.Time  `json:"invoice_date" bson:"invoice_date"`
	DueDate       *time.Time `json:"due_date,omitempty" bson:"due_date,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty" bson:"line_items,omitempty"`
}

type Payment struct {
	Base
	UserID        string `json:"user_id" bson:"user_id"`
	PatientID     string `json:"patient_id" bson:"patient_id"`
	AppointmentID string `json:"appointment_id" bson:"appointment_id"`

	Amount         float64 `json:"amount" bson:"amount"`
	TaxAmount      float64 `json:"tax_amount" bson:"tax_amount"`
	DiscountAmount float64 `json:"discount_amount" bson:"discount_amount"`
	TotalAmount    float64 `json:"total_amount" bson:"total_amount"`

	Status        PaymentStatus `json:"status" bson:"status"`
	TransactionID string        `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Method        string        `json:"method,omitempty" bson:"method,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`

	Refunds []Refund `json:"refunds,omitempty" bson:"refunds,omitempty"`
	Invoice Invoice  `json:"invoice" bson:"invoice"`
}

// RefundedTotal sums all recorded refunds.
func (p *Payment) RefundedTotal() float64 {
	var sum float64
	for _, r := range p.Refunds {
		sum += r.Amount
	}
	return sum
}

// RemainingRefundable is the amount still eligible for refund.
func (p *Payment) RemainingRefundable() float64 {
	return p.TotalAmount - p.RefundedTotal()
}

// Refundable reports whether a refund may still be recorded at now.
func (p *Payment) Refundable(now time.Time) bool {
	if p.Status != PaymentStatusCompleted && p.Status != PaymentStatusPartiallyRefunded {
		return false
	}
	if p.CompletedAt == nil {
		return false
	}
	return now.Sub(*p.CompletedAt) <= RefundWindow && p.RemainingRefundable() > amountEpsilon
}

func (p *Payment) Validate() error {
	if p.UserID == "" || p.PatientID == "" {
		return fmt.Errorf("payer and patient ids are required")
	}
	if p.Amount < 0 || p.TaxAmount < 0 || p.DiscountAmount < 0 {
		return fmt.Errorf("amounts must not be negative")
	}
	if p.TotalAmount < 0 {
		return fmt.Errorf("total amount must not be negative")
	}
	if math.Abs(p.TotalAmount-(p.Amount+p.TaxAmount-p.DiscountAmount)) > amountEpsilon {
		return fmt.Errorf("total amount must equal amount + tax - discount")
	}
	if p.RefundedTotal() > p.TotalAmount+amountEpsilon {
		return fmt.Errorf("refunds exceed total amount")
	}
	return nil
}

// paymentTransitions is the single monotonic state chart per payment.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusProcessing:        {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:         {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusFailed:            {},
	PaymentStatusRefunded:          {},
}

// CanTransition reports whether the chart permits from -> to.
func (p *Payment) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[p.Status] {
		if next == to {
			return true
		}
	}
	return false
}

type RefundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason" validate:"required"`
}
