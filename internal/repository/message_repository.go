package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/marketplace-chat/internal/models"
)

type MessageRepository struct {
	base
}

func NewMessageRepository(coll *mongo.Collection, timeout time.Duration) *MessageRepository {
	return &MessageRepository{base{coll: coll, timeout: timeout}}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("chat_created_idx"),
	})
	return classify(err)
}

func (r *MessageRepository) Insert(ctx context.Context, m *models.Message) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return classify(err)
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, classify(err)
	}
	return &m, nil
}

func (r *MessageRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classify(err)
	}
	out, err := decodeAll[models.Message](ctx, cur)
	return out, classify(err)
}

// ListByChat returns messages in creation order; _id breaks timestamp ties.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"chat": chatID}, opts)
	if err != nil {
		return nil, classify(err)
	}
	out, err := decodeAll[models.Message](ctx, cur)
	return out, classify(err)
}

// AddReader adds userID to read_by. When userID is already a reader the
// stored message is returned untouched.
func (r *MessageRepository) AddReader(ctx context.Context, id, userID string) (*models.Message, error) {
	cctx, cancel := r.ctx(ctx)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Message
	err := r.coll.FindOneAndUpdate(cctx,
		bson.M{"_id": id, "read_by": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"read_by": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
		opts,
	).Decode(&m)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, classify(err)
	}
	return r.FindByID(ctx, id)
}

func (r *MessageRepository) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	res, err := r.coll.DeleteMany(ctx, bson.M{"chat": chatID})
	if err != nil {
		return 0, classify(err)
	}
	return res.DeletedCount, nil
}
