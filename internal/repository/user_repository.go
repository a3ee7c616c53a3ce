package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/marketplace-chat/internal/models"
)

var userProjection = bson.M{"_id": 1, "name": 1, "email": 1, "avatar": 1}

// UserRepository is a read-only view over the users collection owned by the
// account service.
type UserRepository struct {
	base
}

// userKeys matches user ids stored as ObjectIDs (the account service's
// default) as well as plain string ids.
func userKeys(ids []string) bson.A {
	keys := make(bson.A, 0, len(ids)*2)
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			keys = append(keys, oid)
		}
		keys = append(keys, id)
	}
	return keys
}

func NewUserRepository(coll *mongo.Collection, timeout time.Duration) *UserRepository {
	return &UserRepository{base{coll: coll, timeout: timeout}}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	var u models.User
	err := r.coll.FindOne(ctx, bson.M{"_id": bson.M{"$in": userKeys([]string{id})}}, options.FindOne().SetProjection(userProjection)).Decode(&u)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": userKeys(ids)}}, options.Find().SetProjection(userProjection))
	if err != nil {
		return nil, classify(err)
	}
	out, err := decodeAll[models.User](ctx, cur)
	return out, classify(err)
}
