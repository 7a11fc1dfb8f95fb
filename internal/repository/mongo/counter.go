package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/consult-api/internal/repository"
)

// Sequence names for the human-readable domain numbers.
const (
	SeqAppointment  = "appointment"
	SeqConsultation = "consultation"
	SeqPrescription = "prescription"
	SeqLabResult    = "lab_result"
	SeqInvoice      = "invoice"
	SeqPatient      = "patient"
)

type counterRepository struct {
	coll *mongo.Collection
}

func NewCounterRepository(db *mongo.Database) repository.CounterRepository {
	return &counterRepository{coll: db.Collection(collCounters)}
}

// Next atomically increments and returns the named sequence. The
// upsert seeds the counter on first use.
func (r *counterRepository) Next(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return doc.Seq, nil
}

// FormatNumber renders a sequence value as a zero-padded domain number,
// e.g. APT-000042 or INV000042.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%06d", prefix, seq)
}
