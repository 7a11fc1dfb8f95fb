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

type appointmentRepository struct {
	coll *mongo.Collection
}

func NewAppointmentRepository(db *mongo.Database) repository.AppointmentRepository {
	return &appointmentRepository{coll: db.Collection(collAppointments)}
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	if _, err := r.coll.InsertOne(ctx, apt); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id string) (*model.Appointment, error) {
	var apt model.Appointment
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&apt); err != nil {
		return nil, translate(err)
	}
	return &apt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	oldRevision := apt.Revision
	apt.Revision++
	apt.UpdatedAt = time.Now().UTC()
	if err := casReplace(ctx, r.coll, apt.ID, oldRevision, apt); err != nil {
		apt.Revision = oldRevision
		return err
	}
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	filter := notDeleted(bson.M{})

	if filters.Status != "" {
		filter["status"] = filters.Status
	}
	if filters.DoctorID != "" {
		filter["doctor_id"] = filters.DoctorID
	}
	if filters.PatientID != "" {
		filter["patient_id"] = filters.PatientID
	}
	if filters.Priority != "" {
		filter["priority"] = filters.Priority
	}
	if filters.AppointmentType != "" {
		filter["appointment_type"] = filters.AppointmentType
	}
	if filters.Date != "" {
		if d, err := time.Parse("2006-01-02", filters.Date); err == nil {
			filter["appointment_date"] = d
		}
	} else {
		dateRange := bson.M{}
		if filters.DateFrom != "" {
			if d, err := time.Parse("2006-01-02", filters.DateFrom); err == nil {
				dateRange["$gte"] = d
			}
		}
		if filters.DateTo != "" {
			if d, err := time.Parse("2006-01-02", filters.DateTo); err == nil {
				dateRange["$lte"] = d
			}
		}
		if len(dateRange) > 0 {
			filter["appointment_date"] = dateRange
		}
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	filters.Pagination.Normalize()
	sortField := "appointment_date"
	if filters.SortOrder.Field != "" {
		sortField = filters.SortOrder.Field
	}
	sortDir := 1
	if filters.SortOrder.Dir == "desc" {
		sortDir = -1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: sortDir}, {Key: "start_minute", Value: sortDir}}).
		SetSkip(int64((filters.Page - 1) * filters.Limit)).
		SetLimit(int64(filters.Limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer cur.Close(ctx)

	var appointments []*model.Appointment
	if err := cur.All(ctx, &appointments); err != nil {
		return nil, 0, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) ListForDoctorDay(ctx context.Context, doctorID string, date time.Time) ([]*model.Appointment, error) {
	filter := notDeleted(bson.M{
		"doctor_id":        doctorID,
		"appointment_date": model.DateOnly(date),
	})
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_minute", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list doctor appointments: %w", err)
	}
	defer cur.Close(ctx)

	var appointments []*model.Appointment
	if err := cur.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode doctor appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) HasAnyRelationship(ctx context.Context, patientID, doctorID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"patient_id": patientID,
		"doctor_id":  doctorID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check appointment relationship: %w", err)
	}
	return n > 0, nil
}

func (r *appointmentRepository) ListDueReminders(ctx context.Context, window model.ReminderWindow, now time.Time, limit int) ([]*model.Appointment, error) {
	flag := map[model.ReminderWindow]string{
		model.Reminder24H: "reminders_sent.h24",
		model.Reminder2H:  "reminders_sent.h2",
		model.Reminder30M: "reminders_sent.m30",
	}[window]
	if flag == "" {
		return nil, fmt.Errorf("unknown reminder window %q", window)
	}

	filter := notDeleted(bson.M{
		"status":       bson.M{"$in": []model.AppointmentStatus{model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed}},
		flag:           false,
		"scheduled_at": bson.M{"$lte": now.Add(window.Offset()), "$gte": now},
	})

	cur, err := r.coll.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer cur.Close(ctx)

	var appointments []*model.Appointment
	if err := cur.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode due reminders: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) SetReminderSent(ctx context.Context, id string, window model.ReminderWindow) error {
	flag := map[model.ReminderWindow]string{
		model.Reminder24H: "reminders_sent.h24",
		model.Reminder2H:  "reminders_sent.h2",
		model.Reminder30M: "reminders_sent.m30",
	}[window]
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{flag: true, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"revision": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to set reminder flag: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *appointmentRepository) SoftDelete(ctx context.Context, id, deletedBy string) error {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, notDeleted(bson.M{"_id": id}), bson.M{
		"$set": bson.M{"deleted_at": now, "deleted_by": deletedBy, "updated_at": now},
		"$inc": bson.M{"revision": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to soft-delete appointment: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
