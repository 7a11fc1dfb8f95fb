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

func mongoUpdateWithArrayFilters(filters []interface{}) *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetArrayFilters(options.ArrayFilters{Filters: filters})
}

type doctorRepository struct {
	coll *mongo.Collection
}

func NewDoctorRepository(db *mongo.Database) repository.DoctorRepository {
	return &doctorRepository{coll: db.Collection(collDoctorProfiles)}
}

func (r *doctorRepository) CreateProfile(ctx context.Context, profile *model.DoctorProfile) error {
	if _, err := r.coll.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create doctor profile: %w", err)
	}
	return nil
}

func (r *doctorRepository) GetProfile(ctx context.Context, doctorID string) (*model.DoctorProfile, error) {
	var p model.DoctorProfile
	if err := r.coll.FindOne(ctx, notDeleted(bson.M{"user_id": doctorID})).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *doctorRepository) UpdateProfile(ctx context.Context, profile *model.DoctorProfile) error {
	oldRevision := profile.Revision
	profile.Revision++
	profile.UpdatedAt = time.Now().UTC()
	if err := casReplace(ctx, r.coll, profile.ID, oldRevision, profile); err != nil {
		profile.Revision = oldRevision
		return err
	}
	return nil
}

// MarkOverrideSlot flips the booked flag on the matching per-date
// override entry via positional array filters.
func (r *doctorRepository) MarkOverrideSlot(ctx context.Context, doctorID string, date time.Time, startTime string, appointmentID string, booked bool) error {
	filter := bson.M{
		"user_id": doctorID,
		"availability": bson.M{"$elemMatch": bson.M{
			"date":             model.DateOnly(date),
			"slots.start_time": startTime,
		}},
	}
	set := bson.M{
		"availability.$[ov].slots.$[slot].is_booked": booked,
		"updated_at": time.Now().UTC(),
	}
	if booked {
		set["availability.$[ov].slots.$[slot].appointment_id"] = appointmentID
	} else {
		set["availability.$[ov].slots.$[slot].appointment_id"] = ""
	}

	arrayFilters := []interface{}{
		bson.M{"ov.date": model.DateOnly(date)},
		bson.M{"slot.start_time": startTime},
	}
	res := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": set, "$inc": bson.M{"revision": 1}},
		mongoUpdateWithArrayFilters(arrayFilters),
	)
	if err := res.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			// No override entry for this date; the weekly template
			// governs and there is nothing to flip.
			return nil
		}
		return fmt.Errorf("failed to mark override slot: %w", err)
	}
	return nil
}
