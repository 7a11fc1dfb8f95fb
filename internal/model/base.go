package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all persisted entities. Entities are
// soft-deleted only: DeletedAt/DeletedBy are set and the record stays
// addressable for audit.
type Base struct {
	ID        string     `json:"id" bson:"_id"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty" bson:"deleted_by,omitempty"`

	// Revision backs the compare-and-set discipline: every conditional
	// write targets the observed revision and stores revision+1.
	Revision int64 `json:"revision" bson:"revision"`
}

// NewBase initializes identity, timestamps and the first revision.
func NewBase(now time.Time) Base {
	return Base{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Revision:  1,
	}
}

func (b *Base) Touch(now time.Time) {
	b.UpdatedAt = now.UTC()
}

// Pagination represents common pagination parameters
type Pagination struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
}

// SortOrder represents sorting parameters
type SortOrder struct {
	Field string `json:"sort_by" form:"sort_by"`
	Dir   string `json:"sort_order" form:"sort_order"`
}
