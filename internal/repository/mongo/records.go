package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type medicalRecordRepository struct {
	coll *mongo.Collection
}

func NewMedicalRecordRepository(db *mongo.Database) repository.MedicalRecordRepository {
	return &medicalRecordRepository{coll: db.Collection(collMedicalRecords)}
}

func (r *medicalRecordRepository) Create(ctx context.Context, rec *model.MedicalRecord) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to create medical record: %w", err)
	}
	return nil
}

func (r *medicalRecordRepository) Get(ctx context.Context, id string) (*model.MedicalRecord, error) {
	var rec model.MedicalRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID string, p model.Pagination) ([]*model.MedicalRecord, error) {
	p.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((p.Page - 1) * p.Limit)).
		SetLimit(int64(p.Limit))
	cur, err := r.coll.Find(ctx, notDeleted(bson.M{"patient_id": patientID}), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list medical records: %w", err)
	}
	defer cur.Close(ctx)

	var records []*model.MedicalRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode medical records: %w", err)
	}
	return records, nil
}

type labResultRepository struct {
	coll *mongo.Collection
}

func NewLabResultRepository(db *mongo.Database) repository.LabResultRepository {
	return &labResultRepository{coll: db.Collection(collLabResults)}
}

func (r *labResultRepository) Create(ctx context.Context, res *model.LabResult) error {
	if _, err := r.coll.InsertOne(ctx, res); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create lab result: %w", err)
	}
	return nil
}

func (r *labResultRepository) Get(ctx context.Context, id string) (*model.LabResult, error) {
	var res model.LabResult
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&res); err != nil {
		return nil, translate(err)
	}
	return &res, nil
}

func (r *labResultRepository) ListByPatient(ctx context.Context, patientID string, p model.Pagination) ([]*model.LabResult, error) {
	p.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((p.Page - 1) * p.Limit)).
		SetLimit(int64(p.Limit))
	cur, err := r.coll.Find(ctx, notDeleted(bson.M{"patient_id": patientID}), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab results: %w", err)
	}
	defer cur.Close(ctx)

	var results []*model.LabResult
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode lab results: %w", err)
	}
	return results, nil
}
