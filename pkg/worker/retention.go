package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

type RetentionConfig struct {
	AuditRetention time.Duration `envconfig:"AUDIT_RETENTION" default:"17520h"`
	SweepInterval  time.Duration `envconfig:"AUDIT_SWEEP_INTERVAL" default:"24h"`
}

// AuditRetention prunes audit entries past the retention horizon. The
// log is append-only for its lifetime; only expiry removes rows.
type AuditRetention struct {
	cfg    RetentionConfig
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewAuditRetention(cfg RetentionConfig, repo repository.AuditRepository, logger *logger.Logger) *AuditRetention {
	return &AuditRetention{cfg: cfg, repo: repo, logger: logger}
}

// Start blocks until ctx is cancelled.
func (w *AuditRetention) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	w.logger.Info("audit retention sweeper started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *AuditRetention) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.cfg.AuditRetention)
	deleted, err := w.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "failed to prune audit entries")
		return
	}
	if deleted > 0 {
		w.logger.Info("pruned expired audit entries", map[string]interface{}{
			"deleted": deleted,
			"cutoff":  cutoff,
		})
	}
}
