package data

import (
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/visibility"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MsgType is the kind of content a message carries.
type MsgType string

const (
	MsgText    MsgType = "text"
	MsgImage   MsgType = "image"
	MsgVideo   MsgType = "video"
	MsgPDF     MsgType = "pdf"
	MsgDoc     MsgType = "doc"
	MsgVoice   MsgType = "voice"
	MsgDeleted MsgType = "deleted" // tombstone left by delete-for-everyone
)

// Valid reports whether t can be used when sending. The tombstone type is
// only ever produced by the server.
func (t MsgType) Valid() bool {
	switch t {
	case MsgText, MsgImage, MsgVideo, MsgPDF, MsgDoc, MsgVoice:
		return true
	}
	return false
}

// Summary is the chat-list preview for a message: the text itself for text
// messages, the type tag otherwise.
func (t MsgType) Summary(text string) string {
	if t == MsgText {
		return text
	}
	return string(t)
}

// User maps to the users collection.
type User struct {
	ID              bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string        `bson:"name" json:"name"`
	Email           string        `bson:"email" json:"email"`
	Password        string        `bson:"password" json:"-"`
	ProfileImageURL string        `bson:"profileImageUrl" json:"profileImageUrl"`
	LastSeen        *time.Time    `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Chat maps to the chats collection. Users is fixed at creation; PairKey is
// the order-independent key that keeps one chat per pair.
type Chat struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Users       []string      `bson:"users" json:"users"`
	PairKey     string        `bson:"pairKey" json:"-"`
	LastMessage string        `bson:"lastMessage" json:"lastMessage"`
	HiddenFor   []string      `bson:"hiddenFor" json:"hiddenFor"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// View projects the chat onto the fields the visibility policy reads.
func (c *Chat) View() visibility.ChatView {
	return visibility.ChatView{Users: c.Users, HiddenFor: visibility.NewSet(c.HiddenFor...)}
}

// Partner returns the participant that is not email, or "" if email is not
// a participant.
func (c *Chat) Partner(email string) string {
	if !visibility.Participant(email, c.Users) {
		return ""
	}
	self := visibility.NewSet(email)
	for _, u := range c.Users {
		if !self.Contains(u) {
			return u
		}
	}
	return ""
}

// Message maps to the messages collection.
type Message struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID       bson.ObjectID `bson:"chatId" json:"chatId"`
	Sender       string        `bson:"sender" json:"sender"`
	MsgType      MsgType       `bson:"msgType" json:"msgType"`
	Text         string        `bson:"text" json:"text"`
	ResourceType string        `bson:"resourceType,omitempty" json:"resourceType,omitempty"`
	FileName     string        `bson:"fileName,omitempty" json:"fileName,omitempty"`
	DeletedFor   []string      `bson:"deletedFor" json:"-"`
	RedactedFor  []string      `bson:"redactedFor,omitempty" json:"-"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
}

// View projects the message onto the fields the visibility policy reads.
func (m *Message) View() visibility.MessageView {
	return visibility.MessageView{
		Tombstone:   m.MsgType == MsgDeleted,
		DeletedFor:  visibility.NewSet(m.DeletedFor...),
		RedactedFor: visibility.NewSet(m.RedactedFor...),
	}
}

// Redacted returns a copy with the content replaced by the placeholder and
// media metadata cleared.
func (m *Message) Redacted() *Message {
	out := *m
	out.MsgType = MsgDeleted
	out.Text = visibility.Placeholder
	out.ResourceType = ""
	out.FileName = ""
	out.DeletedFor = nil
	out.RedactedFor = nil
	return &out
}

// ChatPartner is one row of a user's chat list: the partner's profile merged
// with the chat summary.
type ChatPartner struct {
	ChatID          bson.ObjectID `json:"chatId"`
	Email           string        `json:"email"`
	Name            string        `json:"name"`
	ProfileImageURL string        `json:"profileImageUrl"`
	LastMessage     string        `json:"lastMessage"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}
