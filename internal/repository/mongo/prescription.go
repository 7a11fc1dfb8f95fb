package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type prescriptionRepository struct {
	coll *mongo.Collection
}

func NewPrescriptionRepository(db *mongo.Database) repository.PrescriptionRepository {
	return &prescriptionRepository{coll: db.Collection(collPrescriptions)}
}

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id string) (*model.Prescription, error) {
	var p model.Prescription
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
