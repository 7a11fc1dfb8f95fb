package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type patientRepository struct {
	coll *mongo.Collection
}

func NewPatientRepository(db *mongo.Database) repository.PatientRepository {
	return &patientRepository{coll: db.Collection(collPatientProfiles)}
}

func (r *patientRepository) CreateProfile(ctx context.Context, profile *model.PatientProfile) error {
	if _, err := r.coll.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create patient profile: %w", err)
	}
	return nil
}

func (r *patientRepository) GetProfile(ctx context.Context, patientID string) (*model.PatientProfile, error) {
	var p model.PatientProfile
	if err := r.coll.FindOne(ctx, notDeleted(bson.M{"user_id": patientID})).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
