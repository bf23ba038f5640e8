package data

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/normalize"
	"github.com/PaulBabatuyi/chatsync/internal/visibility"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryMessages is an in-process MessageStore. Records are copied on the way
// in and out so callers never share state with the store.
type MemoryMessages struct {
	mu    sync.RWMutex
	order []bson.ObjectID // insertion order
	byID  map[bson.ObjectID]*Message
}

var _ MessageStore = (*MemoryMessages)(nil)

// NewMemoryMessages returns an empty MemoryMessages.
func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{byID: make(map[bson.ObjectID]*Message)}
}

func (s *MemoryMessages) Insert(_ context.Context, msg *Message) (*Message, error) {
	doc := *msg
	doc.ID = bson.NewObjectID()
	doc.Sender = normalize.Email(doc.Sender)
	doc.DeletedFor = []string{}
	doc.RedactedFor = nil

	s.mu.Lock()
	s.byID[doc.ID] = &doc
	s.order = append(s.order, doc.ID)
	s.mu.Unlock()

	return copyMessage(&doc), nil
}

func (s *MemoryMessages) Get(_ context.Context, id bson.ObjectID) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *MemoryMessages) ListByChat(_ context.Context, chatID bson.ObjectID) ([]*Message, error) {
	s.mu.RLock()
	out := []*Message{}
	for _, id := range s.order {
		if m := s.byID[id]; m.ChatID == chatID {
			out = append(out, copyMessage(m))
		}
	}
	s.mu.RUnlock()

	// stable sort keeps insertion order among equal timestamps
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryMessages) AddDeletedFor(_ context.Context, id bson.ObjectID, emails ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.DeletedFor = addToSet(m.DeletedFor, emails...)
	return nil
}

func (s *MemoryMessages) AddDeletedForChat(_ context.Context, chatID bson.ObjectID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.ChatID == chatID {
			m.DeletedFor = addToSet(m.DeletedFor, email)
			if len(m.RedactedFor) > 0 {
				redacted := visibility.NewSet(m.RedactedFor...)
				redacted.Remove(email)
				m.RedactedFor = redacted.Slice()
			}
		}
	}
	return nil
}

func (s *MemoryMessages) Tombstone(_ context.Context, id bson.ObjectID, placeholder string, participants []string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.MsgType = MsgDeleted
	m.Text = placeholder
	m.ResourceType = ""
	m.FileName = ""
	m.DeletedFor = addToSet(m.DeletedFor, participants...)
	m.RedactedFor = addToSet(nil, participants...)
	return copyMessage(m), nil
}

// MemoryChats is an in-process ChatStore.
type MemoryChats struct {
	mu     sync.RWMutex
	byID   map[bson.ObjectID]*Chat
	byPair map[string]bson.ObjectID
}

var _ ChatStore = (*MemoryChats)(nil)

// NewMemoryChats returns an empty MemoryChats.
func NewMemoryChats() *MemoryChats {
	return &MemoryChats{
		byID:   make(map[bson.ObjectID]*Chat),
		byPair: make(map[string]bson.ObjectID),
	}
}

func (s *MemoryChats) FindOrCreate(_ context.Context, initiator, other string, now time.Time) (*Chat, error) {
	initiator, other = normalize.Email(initiator), normalize.Email(other)
	key := normalize.PairKey(initiator, other)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[key]; ok {
		c := s.byID[id]
		hidden := visibility.NewSet(c.HiddenFor...)
		hidden.Remove(initiator)
		c.HiddenFor = hidden.Slice()
		return copyChat(c), nil
	}

	c := &Chat{
		ID:        bson.NewObjectID(),
		Users:     []string{initiator, other},
		PairKey:   key,
		HiddenFor: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[c.ID] = c
	s.byPair[key] = c.ID
	return copyChat(c), nil
}

func (s *MemoryChats) Find(_ context.Context, a, b string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[normalize.PairKey(a, b)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChat(s.byID[id]), nil
}

func (s *MemoryChats) Get(_ context.Context, id bson.ObjectID) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChat(c), nil
}

func (s *MemoryChats) Touch(_ context.Context, id bson.ObjectID, summary string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.LastMessage = summary
	c.UpdatedAt = at
	return nil
}

func (s *MemoryChats) HideFor(_ context.Context, id bson.ObjectID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.HiddenFor = addToSet(c.HiddenFor, email)
	return nil
}

func (s *MemoryChats) ListFor(_ context.Context, email string) ([]*Chat, error) {
	s.mu.RLock()
	out := []*Chat{}
	for _, c := range s.byID {
		if visibility.Participant(email, c.Users) {
			out = append(out, copyChat(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// MemoryUsers is an in-process UserStore.
type MemoryUsers struct {
	mu      sync.RWMutex
	byEmail map[string]*User
}

var _ UserStore = (*MemoryUsers)(nil)

// NewMemoryUsers returns an empty MemoryUsers.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byEmail: make(map[string]*User)}
}

func (s *MemoryUsers) CreateUser(_ context.Context, name, email, hashedPassword, profileImageURL string) (*User, error) {
	email = normalize.Email(email)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, ErrConflict
	}
	u := &User{
		ID:              bson.NewObjectID(),
		Name:            name,
		Email:           email,
		Password:        hashedPassword,
		ProfileImageURL: profileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.byEmail[email] = u
	out := *u
	return &out, nil
}

func (s *MemoryUsers) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[normalize.Email(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryUsers) GetUserByID(_ context.Context, id bson.ObjectID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byEmail {
		if u.ID == id {
			out := *u
			out.Password = ""
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUsers) GetUsersByEmail(_ context.Context, emails []string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*User{}
	for _, e := range emails {
		if u, ok := s.byEmail[normalize.Email(e)]; ok {
			p := *u
			p.Password = ""
			out = append(out, &p)
		}
	}
	return out, nil
}

func (s *MemoryUsers) FindByName(_ context.Context, name string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*User{}
	for _, u := range s.byEmail {
		if u.Name == name {
			p := *u
			p.Password = ""
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *MemoryUsers) UserExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[normalize.Email(email)]
	return ok, nil
}

func (s *MemoryUsers) SetLastSeen(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[normalize.Email(email)]
	if !ok {
		return ErrNotFound
	}
	u.LastSeen = &at
	return nil
}

func (s *MemoryUsers) SetProfileImage(_ context.Context, email, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[normalize.Email(email)]
	if !ok {
		return ErrNotFound
	}
	u.ProfileImageURL = url
	u.UpdatedAt = time.Now()
	return nil
}

func addToSet(list []string, emails ...string) []string {
	set := visibility.NewSet(list...)
	for _, e := range emails {
		set.Add(e)
	}
	return set.Slice()
}

func copyMessage(m *Message) *Message {
	out := *m
	out.DeletedFor = append([]string{}, m.DeletedFor...)
	if m.RedactedFor != nil {
		out.RedactedFor = append([]string{}, m.RedactedFor...)
	}
	return &out
}

func copyChat(c *Chat) *Chat {
	out := *c
	out.Users = append([]string{}, c.Users...)
	out.HiddenFor = append([]string{}, c.HiddenFor...)
	return &out
}
