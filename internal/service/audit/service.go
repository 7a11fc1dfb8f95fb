package audit

import (
	"context"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Service appends entries to the append-only audit trail. Recording is
// best effort: a failed append is logged and never fails the operation
// that produced it.
type Service interface {
	Record(ctx context.Context, entry *model.AuditLog)
	List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error)
}

type service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (s *service) Record(ctx context.Context, entry *model.AuditLog) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error(err, "failed to record audit entry", map[string]interface{}{
			"action":      entry.Action,
			"resource":    entry.Resource,
			"resource_id": entry.ResourceID,
		})
	}
}

func (s *service) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, filters)
}
