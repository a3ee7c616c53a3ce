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

type ChatRepository struct {
	base
}

func NewChatRepository(coll *mongo.Collection, timeout time.Duration) *ChatRepository {
	return &ChatRepository{base{coll: coll, timeout: timeout}}
}

// EnsureIndexes creates the unique direct-pair index and the membership index.
func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("pair_key_unique"),
		},
		{
			Keys:    bson.D{{Key: "users", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("users_updated_idx"),
		},
	})
	return classify(err)
}

func (r *ChatRepository) Insert(ctx context.Context, c *models.Chat) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, c)
	return classify(err)
}

func (r *ChatRepository) FindByID(ctx context.Context, id string) (*models.Chat, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	var c models.Chat
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (r *ChatRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Chat, error) {
	if len(ids) == 0 {
		return []models.Chat{}, nil
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classify(err)
	}
	out, err := decodeAll[models.Chat](ctx, cur)
	return out, classify(err)
}

func (r *ChatRepository) FindDirect(ctx context.Context, pairKey string) (*models.Chat, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	var c models.Chat
	err := r.coll.FindOne(ctx, bson.M{"pair_key": pairKey, "is_group_chat": false}).Decode(&c)
	if err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

// ListByUser returns every chat containing userID, most recently updated first.
func (r *ChatRepository) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"users": userID}, opts)
	if err != nil {
		return nil, classify(err)
	}
	out, err := decodeAll[models.Chat](ctx, cur)
	return out, classify(err)
}

func (r *ChatRepository) update(ctx context.Context, filter bson.M, update bson.M) (*models.Chat, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var c models.Chat
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (r *ChatRepository) Rename(ctx context.Context, id, name string) (*models.Chat, error) {
	return r.update(ctx,
		bson.M{"_id": id, "is_group_chat": true},
		bson.M{"$set": bson.M{"chat_name": name, "updated_at": time.Now().UTC()}},
	)
}

func (r *ChatRepository) AddMembers(ctx context.Context, id string, userIDs []string) (*models.Chat, error) {
	return r.update(ctx,
		bson.M{"_id": id, "is_group_chat": true},
		bson.M{
			"$addToSet": bson.M{"users": bson.M{"$each": userIDs}},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
}

// RemoveMember pulls userID from a group unless userID is its admin.
func (r *ChatRepository) RemoveMember(ctx context.Context, id, userID string) (*models.Chat, error) {
	return r.update(ctx,
		bson.M{"_id": id, "is_group_chat": true, "group_admin": bson.M{"$ne": userID}},
		bson.M{
			"$pull": bson.M{"users": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
}

func (r *ChatRepository) SetLatestMessage(ctx context.Context, id, messageID string, at time.Time) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"latest_message": messageID, "updated_at": at}},
	)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
