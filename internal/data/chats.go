package data

import (
	"context"
	"errors"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ChatsStore provides chat database operations.
type ChatsStore struct {
	// coll is the "chats" collection; pairKey carries a unique index
	coll *mongo.Collection
}

var _ ChatStore = (*ChatsStore)(nil)

// NewChatsStore returns a ChatsStore using given collection.
func NewChatsStore(coll *mongo.Collection) *ChatsStore {
	return &ChatsStore{coll: coll}
}

// FindOrCreate looks the pair up first and only inserts when nothing matched.
// A concurrent insert for the same pair loses on the unique pairKey index and
// falls back to reading the winner.
func (c *ChatsStore) FindOrCreate(ctx context.Context, initiator, other string, now time.Time) (*Chat, error) {
	initiator, other = normalize.Email(initiator), normalize.Email(other)
	key := normalize.PairKey(initiator, other)

	chat, err := c.unhide(ctx, key, initiator)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	doc := &Chat{
		Users:       []string{initiator, other},
		PairKey:     key,
		LastMessage: "",
		HiddenFor:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.unhide(ctx, key, initiator)
		}
		return nil, upstream("insert chat", err)
	}
	doc.ID = result.InsertedID.(bson.ObjectID)
	return doc, nil
}

// unhide pulls email out of hiddenFor on the chat with the given pair key and
// returns the updated document.
func (c *ChatsStore) unhide(ctx context.Context, key, email string) (*Chat, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var chat Chat
	err := c.coll.FindOneAndUpdate(ctx,
		bson.M{"pairKey": key},
		bson.M{"$pull": bson.M{"hiddenFor": email}},
		opts,
	).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, upstream("find chat", err)
	}
	return &chat, nil
}

// Find returns the chat between a and b without modifying it.
func (c *ChatsStore) Find(ctx context.Context, a, b string) (*Chat, error) {
	return c.findOne(ctx, bson.M{"pairKey": normalize.PairKey(a, b)})
}

// Get returns a chat by id.
func (c *ChatsStore) Get(ctx context.Context, id bson.ObjectID) (*Chat, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

func (c *ChatsStore) findOne(ctx context.Context, filter bson.M) (*Chat, error) {
	var chat Chat
	if err := c.coll.FindOne(ctx, filter).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, upstream("find chat", err)
	}
	return &chat, nil
}

// Touch records the latest message summary. Concurrent touches are
// last-write-wins.
func (c *ChatsStore) Touch(ctx context.Context, id bson.ObjectID, summary string, at time.Time) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"lastMessage": summary, "updatedAt": at},
	})
	if err != nil {
		return upstream("touch chat", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// HideFor adds email to the chat's hiddenFor set.
func (c *ChatsStore) HideFor(ctx context.Context, id bson.ObjectID, email string) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$addToSet": bson.M{"hiddenFor": normalize.Email(email)},
	})
	if err != nil {
		return upstream("hide chat", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFor returns the chats email participates in, most recently updated first.
func (c *ChatsStore) ListFor(ctx context.Context, email string) ([]*Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	// users is an array field, so equality matches any element
	cursor, err := c.coll.Find(ctx, bson.M{"users": normalize.Email(email)}, opts)
	if err != nil {
		return nil, upstream("find chats", err)
	}
	defer cursor.Close(ctx)

	chats := []*Chat{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, upstream("decode chats", err)
	}
	return chats, nil
}
