package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/fathima-sithara/marketplace-chat/internal/apperr"
	"github.com/fathima-sithara/marketplace-chat/internal/models"
)

func messageDoc(id, chat, sender string, readBy ...string) bson.D {
	rb := bson.A{}
	for _, r := range readBy {
		rb = append(rb, r)
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "sender", Value: sender},
		{Key: "content", Value: "hi"},
		{Key: "chat", Value: chat},
		{Key: "attachments", Value: bson.A{}},
		{Key: "read_by", Value: rb},
		{Key: "created_at", Value: time.Now().UTC()},
		{Key: "updated_at", Value: time.Now().UTC()},
	}
}

func TestMessageRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert normalises empty sets", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		m := &models.Message{Sender: "a", Content: "hello", Chat: "c1"}
		req.NoError(repo.Insert(ctx, m))
		req.NotEmpty(m.ID)
		req.NotNil(m.Attachments)
		req.NotNil(m.ReadBy)
	})

	mt.Run("list by chat", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			messageDoc("m1", "c1", "a"), messageDoc("m2", "c1", "b")))

		msgs, err := repo.ListByChat(ctx, "c1")
		req.NoError(err)
		req.Len(msgs, 2)
		req.Equal("m1", msgs[0].ID)
		req.Equal("b", msgs[1].Sender)
	})

	mt.Run("list by chat empty", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		msgs, err := repo.ListByChat(ctx, "c1")
		req.NoError(err)
		req.NotNil(msgs)
		req.Empty(msgs)
	})

	mt.Run("add reader", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: messageDoc("m1", "c1", "a", "b")}))

		m, err := repo.AddReader(ctx, "m1", "b")
		req.NoError(err)
		req.Equal([]string{"b"}, m.ReadBy)
	})

	mt.Run("add reader already present", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, messageDoc("m1", "c1", "a", "b")),
		)

		m, err := repo.AddReader(ctx, "m1", "b")
		req.NoError(err)
		req.Equal([]string{"b"}, m.ReadBy)
	})

	mt.Run("add reader unknown message", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)

		_, err := repo.AddReader(ctx, "nope", "b")
		require.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("delete by chat", func(mt *mtest.T) {
		req := require.New(mt)
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		n, err := repo.DeleteByChat(ctx, "c1")
		req.NoError(err)
		req.EqualValues(3, n)
	})

	mt.Run("network failure is transient", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(networkFailure(), networkFailure())

		_, err := repo.ListByChat(ctx, "c1")
		require.ErrorIs(mt, err, apperr.ErrTransient)
	})

	mt.Run("network failure on insert is transient", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, time.Second)
		mt.AddMockResponses(networkFailure(), networkFailure())

		err := repo.Insert(ctx, &models.Message{Sender: "a", Content: "hi", Chat: "c1"})
		require.ErrorIs(mt, err, apperr.ErrTransient)
	})
}
