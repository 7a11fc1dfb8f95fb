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

type paymentRepository struct {
	coll *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) repository.PaymentRepository {
	return &paymentRepository{coll: db.Collection(collPayments)}
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*model.Payment, error) {
	var p model.Payment
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *paymentRepository) GetByAppointment(ctx context.Context, appointmentID string) (*model.Payment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var p model.Payment
	if err := r.coll.FindOne(ctx, bson.M{"appointment_id": appointmentID}, opts).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	oldRevision := p.Revision
	p.Revision++
	p.UpdatedAt = time.Now().UTC()
	if err := casReplace(ctx, r.coll, p.ID, oldRevision, p); err != nil {
		p.Revision = oldRevision
		return err
	}
	return nil
}

func (r *paymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	var p model.Payment
	if err := r.coll.FindOne(ctx, bson.M{"transaction_id": transactionID}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
