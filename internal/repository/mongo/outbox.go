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

// claimTimeout bounds how long a crashed worker keeps rows claimed.
const claimTimeout = 5 * time.Minute

type outboxRepository struct {
	coll *mongo.Collection
}

func NewOutboxRepository(db *mongo.Database) repository.OutboxRepository {
	return &outboxRepository{coll: db.Collection(collOutboxEvents)}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if _, err := r.coll.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// ClaimPending claims rows one at a time with FindOneAndUpdate so two
// workers never process the same event.
func (r *outboxRepository) ClaimPending(ctx context.Context, workerID string, limit int) ([]*model.OutboxEvent, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"status": model.OutboxStatusPending,
		"$and": []bson.M{
			{"$or": []bson.M{
				{"retry_at": bson.M{"$exists": false}},
				{"retry_at": nil},
				{"retry_at": bson.M{"$lte": now}},
			}},
			{"$or": []bson.M{
				{"locked_at": bson.M{"$exists": false}},
				{"locked_at": nil},
				{"locked_at": bson.M{"$lte": now.Add(-claimTimeout)}},
			}},
		},
	}
	update := bson.M{"$set": bson.M{
		"locked_by":  workerID,
		"locked_at":  now,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var events []*model.OutboxEvent
	for i := 0; i < limit; i++ {
		var ev model.OutboxEvent
		err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&ev)
		if err == mongo.ErrNoDocuments {
			break
		}
		if err != nil {
			return events, fmt.Errorf("failed to claim outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":       model.OutboxStatusProcessed,
		"processed_at": now,
		"updated_at":   now,
		"locked_by":    "",
		"locked_at":    nil,
	}})
	if err != nil {
		return fmt.Errorf("failed to mark outbox event processed: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, errMsg string, retryAt *time.Time) error {
	now := time.Now().UTC()
	set := bson.M{
		"error_message": errMsg,
		"updated_at":    now,
		"locked_by":     "",
		"locked_at":     nil,
	}
	if retryAt != nil {
		// Still pending, retried after backoff.
		set["status"] = model.OutboxStatusPending
		set["retry_at"] = *retryAt
	} else {
		set["status"] = model.OutboxStatusFailed
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": set,
		"$inc": bson.M{"retry_count": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{
		"status":       model.OutboxStatusProcessed,
		"processed_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	return res.DeletedCount, nil
}
