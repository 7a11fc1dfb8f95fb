package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type userRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) repository.UserRepository {
	return &userRepository{coll: db.Collection(collUsers)}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	user.Email = user.NormalizedEmail()
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.coll.FindOne(ctx, notDeleted(bson.M{"_id": id})).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	filter := notDeleted(bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	oldRevision := user.Revision
	user.Revision++
	user.UpdatedAt = time.Now().UTC()
	if err := casReplace(ctx, r.coll, user.ID, oldRevision, user); err != nil {
		user.Revision = oldRevision
		return err
	}
	return nil
}
