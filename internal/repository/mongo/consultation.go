package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type consultationRepository struct {
	coll *mongo.Collection
}

func NewConsultationRepository(db *mongo.Database) repository.ConsultationRepository {
	return &consultationRepository{coll: db.Collection(collConsultations)}
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id string) (*model.Consultation, error) {
	var c model.Consultation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	oldRevision := c.Revision
	c.Revision++
	c.UpdatedAt = time.Now().UTC()
	if err := casReplace(ctx, r.coll, c.ID, oldRevision, c); err != nil {
		c.Revision = oldRevision
		return err
	}
	return nil
}

func (r *consultationRepository) FindOpenForUser(ctx context.Context, userID string) (*model.Consultation, error) {
	openStates := []model.ConsultationStatus{
		model.ConsultationStatusScheduled,
		model.ConsultationStatusActive,
		model.ConsultationStatusWaiting,
	}
	filter := notDeleted(bson.M{
		"status": bson.M{"$in": openStates},
		"$or": []bson.M{
			{"patient_id": userID},
			{"doctor_id": userID},
		},
	})
	var c model.Consultation
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *consultationRepository) GetByAppointment(ctx context.Context, appointmentID string) (*model.Consultation, error) {
	var c model.Consultation
	if err := r.coll.FindOne(ctx, notDeleted(bson.M{"appointment_id": appointmentID})).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}
