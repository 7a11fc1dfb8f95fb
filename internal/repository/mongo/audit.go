package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type auditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) repository.AuditRepository {
	return &auditRepository{coll: db.Collection(collAuditLogs)}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	filter := bson.M{}
	if filters.Resource != "" {
		filter["resource"] = filters.Resource
	}
	if filters.ResourceID != "" {
		filter["resource_id"] = filters.ResourceID
	}
	if filters.UserID != "" {
		filter["user_id"] = filters.UserID
	}
	timeRange := bson.M{}
	if filters.From != nil {
		timeRange["$gte"] = *filters.From
	}
	if filters.To != nil {
		timeRange["$lte"] = *filters.To
	}
	if len(timeRange) > 0 {
		filter["created_at"] = timeRange
	}

	filters.Pagination.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(int64((filters.Page - 1) * filters.Limit)).
		SetLimit(int64(filters.Limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cur.Close(ctx)

	var entries []*model.AuditLog
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}
