package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/consult-api/internal/repository"
)

// Collection names, one per entity.
const (
	collUsers           = "users"
	collDoctorProfiles  = "doctor_profiles"
	collPatientProfiles = "patient_profiles"
	collAppointments    = "appointments"
	collConsultations   = "consultations"
	collPayments        = "payments"
	collPrescriptions   = "prescriptions"
	collMedicalRecords  = "medical_records"
	collLabResults      = "lab_results"
	collAuditLogs       = "audit_logs"
	collOutboxEvents    = "outbox_events"
	collCounters        = "counters"
)

type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// NewDB connects to the document store and verifies the connection.
func NewDB(ctx context.Context, cfg Config) (*mongo.Database, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client.Database(cfg.Database), nil
}

// EnsureIndexes creates the uniqueness and query indexes the services
// rely on. Idempotent; called at startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type spec struct {
		coll    string
		indexes []mongo.IndexModel
	}

	unique := options.Index().SetUnique(true)
	sparseUnique := options.Index().SetUnique(true).SetSparse(true)

	specs := []spec{
		{collUsers, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "medical_license", Value: 1}}, Options: sparseUnique},
		}},
		{collDoctorProfiles, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique},
		}},
		{collPatientProfiles, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "medical_record_number", Value: 1}}, Options: unique},
		}},
		{collAppointments, []mongo.IndexModel{
			{Keys: bson.D{{Key: "appointment_number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "appointment_date", Value: 1}}},
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "appointment_date", Value: -1}}},
			// Backs the slot allocator: only one non-terminal
			// appointment per doctor, date and start minute.
			{
				Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "appointment_date", Value: 1}, {Key: "start_minute", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": []string{"scheduled", "confirmed", "checked-in", "in-progress", "completed"}},
				}),
			},
		}},
		{collConsultations, []mongo.IndexModel{
			{Keys: bson.D{{Key: "consultation_number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "appointment_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		}},
		{collPayments, []mongo.IndexModel{
			{Keys: bson.D{{Key: "transaction_id", Value: 1}}, Options: sparseUnique},
			{Keys: bson.D{{Key: "invoice.invoice_number", Value: 1}}, Options: sparseUnique},
			{Keys: bson.D{{Key: "appointment_id", Value: 1}}},
		}},
		{collPrescriptions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "prescription_number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "patient_id", Value: 1}}},
		}},
		{collMedicalRecords, []mongo.IndexModel{
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		}},
		{collLabResults, []mongo.IndexModel{
			{Keys: bson.D{{Key: "lab_number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		}},
		{collAuditLogs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		}},
		{collOutboxEvents, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "retry_at", Value: 1}}},
		}},
	}

	for _, s := range specs {
		if _, err := db.Collection(s.coll).Indexes().CreateMany(ctx, s.indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", s.coll, err)
		}
	}
	return nil
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case err == mongo.ErrNoDocuments:
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return repository.ErrDuplicateKey
	}
	return err
}

// casReplace writes doc only when the stored revision still matches
// oldRevision, distinguishing a stale write from a missing document.
func casReplace(ctx context.Context, coll *mongo.Collection, id string, oldRevision int64, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "revision": oldRevision}, doc)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrStaleRevision
	}
	return nil
}

// notDeleted filters out soft-deleted documents.
func notDeleted(filter bson.M) bson.M {
	filter["deleted_at"] = bson.M{"$exists": false}
	return filter
}
