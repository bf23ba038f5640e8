package data

import (
	"context" // Used for cancellation and timeouts
	"errors"  // Error handling
	"time"    // Timestamps

	"github.com/PaulBabatuyi/chatsync/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"  // MongoDB document queries
	"go.mongodb.org/mongo-driver/v2/mongo" // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	coll *mongo.Collection
}

var _ UserStore = (*UsersStore)(nil)

// withoutPassword is applied to every read that leaves the auth path.
var withoutPassword = bson.M{"password": 0}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document with hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, name, email, hashedPassword, profileImageURL string) (*User, error) {
	now := time.Now()
	user := &User{
		Name:            name,
		Email:           normalize.Email(email),
		Password:        hashedPassword, // already hashed by auth.HashPassword()
		ProfileImageURL: profileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// unique index on email turns a second signup into a duplicate key error
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, upstream("insert user", err)
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email. The password hash is included so the
// login path can verify it.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, upstream("find user", err)
	}
	return &user, nil
}

// GetUserByID returns the profile with the given id, without the password
// hash.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	opts := options.FindOne().SetProjection(withoutPassword)
	if err := u.coll.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, upstream("find user by id", err)
	}
	return &user, nil
}

// GetUsersByEmail returns the profiles for the given emails, without password
// hashes. Unknown emails are skipped.
func (u *UsersStore) GetUsersByEmail(ctx context.Context, emails []string) ([]*User, error) {
	opts := options.Find().SetProjection(withoutPassword)
	cursor, err := u.coll.Find(ctx, bson.M{"email": bson.M{"$in": normalizeAll(emails)}}, opts)
	if err != nil {
		return nil, upstream("find users", err)
	}
	defer cursor.Close(ctx)

	users := []*User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, upstream("decode users", err)
	}
	return users, nil
}

// FindByName returns users whose name matches exactly.
func (u *UsersStore) FindByName(ctx context.Context, name string) ([]*User, error) {
	opts := options.Find().SetProjection(withoutPassword)
	cursor, err := u.coll.Find(ctx, bson.M{"name": name}, opts)
	if err != nil {
		return nil, upstream("find users", err)
	}
	defer cursor.Close(ctx)

	users := []*User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, upstream("decode users", err)
	}
	return users, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	// CountDocuments is cheaper than FindOne when only existence matters
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, upstream("count users", err)
	}
	return count > 0, nil
}

// SetLastSeen records the moment a user went offline.
func (u *UsersStore) SetLastSeen(ctx context.Context, email string, at time.Time) error {
	return u.set(ctx, email, bson.M{"lastSeen": at})
}

// SetProfileImage replaces the user's profile image URL.
func (u *UsersStore) SetProfileImage(ctx context.Context, email, url string) error {
	return u.set(ctx, email, bson.M{"profileImageUrl": url, "updatedAt": time.Now()})
}

func (u *UsersStore) set(ctx context.Context, email string, fields bson.M) error {
	res, err := u.coll.UpdateOne(ctx, bson.M{"email": normalize.Email(email)}, bson.M{"$set": fields})
	if err != nil {
		return upstream("update user", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
