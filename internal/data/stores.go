// Package data provides the durable models and the stores that persist them.
//
// Each store has a MongoDB implementation used in production and an in-memory
// implementation used by tests and by STORAGE=memory. The stores persist
// exactly what they are told; per-user visibility is applied by the caller
// through package visibility.
package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MessageStore persists messages. ListByChat returns every message of the
// chat in createdAt order with ties broken by insertion order.
type MessageStore interface {
	Insert(ctx context.Context, msg *Message) (*Message, error)
	Get(ctx context.Context, id bson.ObjectID) (*Message, error)
	ListByChat(ctx context.Context, chatID bson.ObjectID) ([]*Message, error)
	AddDeletedFor(ctx context.Context, id bson.ObjectID, emails ...string) error
	AddDeletedForChat(ctx context.Context, chatID bson.ObjectID, email string) error
	Tombstone(ctx context.Context, id bson.ObjectID, placeholder string, participants []string) (*Message, error)
}

// ChatStore persists two-party chats.
type ChatStore interface {
	// FindOrCreate returns the chat for the pair, creating it when absent.
	// An existing chat has initiator removed from its hidden set.
	FindOrCreate(ctx context.Context, initiator, other string, now time.Time) (*Chat, error)
	// Find returns the chat for the pair without creating or unhiding it.
	Find(ctx context.Context, a, b string) (*Chat, error)
	Get(ctx context.Context, id bson.ObjectID) (*Chat, error)
	Touch(ctx context.Context, id bson.ObjectID, summary string, at time.Time) error
	HideFor(ctx context.Context, id bson.ObjectID, email string) error
	// ListFor returns every chat email participates in, newest first.
	ListFor(ctx context.Context, email string) ([]*Chat, error)
}

// UserStore persists user profiles.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, hashedPassword, profileImageURL string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error)
	GetUsersByEmail(ctx context.Context, emails []string) ([]*User, error)
	FindByName(ctx context.Context, name string) ([]*User, error)
	UserExists(ctx context.Context, email string) (bool, error)
	SetLastSeen(ctx context.Context, email string, at time.Time) error
	SetProfileImage(ctx context.Context, email, url string) error
}

// DefaultProfileImage is assigned to new accounts until they upload their own.
const DefaultProfileImage = "/static/default-avatar.jpg"

// ParseID parses a hex object id, reporting ErrValidation when malformed.
func ParseID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, Validation("invalid id " + hex)
	}
	return id, nil
}
