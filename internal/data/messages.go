package data

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/chatsync/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	// coll is the "messages" collection; set once in NewMessagesStore
	coll *mongo.Collection
}

var _ MessageStore = (*MessagesStore)(nil)

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// Insert stores msg and returns it with its generated id. DeletedFor starts
// empty regardless of what the caller set.
func (m *MessagesStore) Insert(ctx context.Context, msg *Message) (*Message, error) {
	doc := *msg
	doc.ID = bson.NilObjectID
	doc.Sender = normalize.Email(doc.Sender)
	doc.DeletedFor = []string{}
	doc.RedactedFor = nil

	result, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, upstream("insert message", err)
	}

	// MongoDB generates the _id; this is the id clients de-duplicate on
	doc.ID = result.InsertedID.(bson.ObjectID)
	return &doc, nil
}

// Get returns one message by id.
func (m *MessagesStore) Get(ctx context.Context, id bson.ObjectID) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, upstream("find message", err)
	}
	return &msg, nil
}

// ListByChat returns all messages of a chat, oldest first.
func (m *MessagesStore) ListByChat(ctx context.Context, chatID bson.ObjectID) ([]*Message, error) {
	// createdAt is authoritative; _id breaks ties since ObjectIDs grow with
	// insertion order
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.coll.Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, upstream("find messages", err)
	}
	defer cursor.Close(ctx)

	messages := []*Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, upstream("decode messages", err)
	}
	return messages, nil
}

// AddDeletedFor adds emails to one message's deletedFor set.
func (m *MessagesStore) AddDeletedFor(ctx context.Context, id bson.ObjectID, emails ...string) error {
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$addToSet": bson.M{"deletedFor": bson.M{"$each": normalizeAll(emails)}},
	})
	if err != nil {
		return upstream("update message", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddDeletedForChat adds email to deletedFor on every message of a chat and
// drops it from any tombstone's redactedFor.
func (m *MessagesStore) AddDeletedForChat(ctx context.Context, chatID bson.ObjectID, email string) error {
	email = normalize.Email(email)
	_, err := m.coll.UpdateMany(ctx, bson.M{"chatId": chatID}, bson.M{
		"$addToSet": bson.M{"deletedFor": email},
		"$pull":     bson.M{"redactedFor": email},
	})
	if err != nil {
		return upstream("update chat messages", err)
	}
	return nil
}

// Tombstone overwrites the message content with placeholder, flips its type to
// MsgDeleted and records every participant in deletedFor and redactedFor.
func (m *MessagesStore) Tombstone(ctx context.Context, id bson.ObjectID, placeholder string, participants []string) (*Message, error) {
	update := bson.M{
		"$set": bson.M{
			"msgType":      MsgDeleted,
			"text":         placeholder,
			"resourceType": "",
			"fileName":     "",
			"redactedFor":  normalizeAll(participants),
		},
		"$addToSet": bson.M{"deletedFor": bson.M{"$each": normalizeAll(participants)}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg Message
	if err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, upstream("tombstone message", err)
	}
	return &msg, nil
}

func normalizeAll(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = normalize.Email(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
