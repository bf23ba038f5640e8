// Package chat implements the chat and message operations on top of the
// durable stores, applying participant checks and per-user visibility.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/normalize"
	"github.com/PaulBabatuyi/chatsync/internal/visibility"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

// DefaultDeleteWindow is how long after sending a message may still be
// deleted for everyone.
const DefaultDeleteWindow = 60 * time.Minute

// Service coordinates the chat, message and user stores.
type Service struct {
	chats  data.ChatStore
	msgs   data.MessageStore
	users  data.UserStore
	log    *zap.Logger
	now    func() time.Time
	window time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now; tests use it to age messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDeleteWindow overrides DefaultDeleteWindow.
func WithDeleteWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// NewService returns a Service over the given stores.
func NewService(chats data.ChatStore, msgs data.MessageStore, users data.UserStore, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		chats:  chats,
		msgs:   msgs,
		users:  users,
		log:    log,
		now:    time.Now,
		window: DefaultDeleteWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendInput is the payload of a send-message request.
type SendInput struct {
	ChatID       string
	MsgType      data.MsgType
	Text         string
	ResourceType string
	FileName     string
}

// StartChat finds or creates the chat between requester and other. If the
// requester had hidden the chat it reappears in their list.
func (s *Service) StartChat(ctx context.Context, requester, other string) (*data.Chat, error) {
	requester, other = normalize.Email(requester), normalize.Email(other)
	if !normalize.ValidEmail(other) {
		return nil, data.Validation("invalid email for other user")
	}
	if requester == other {
		return nil, data.Validation("cannot start a chat with yourself")
	}
	exists, err := s.users.UserExists(ctx, other)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("user %s: %w", other, data.ErrNotFound)
	}
	return s.chats.FindOrCreate(ctx, requester, other, s.now())
}

// LookupChat returns the existing chat between requester and other without
// creating or unhiding it.
func (s *Service) LookupChat(ctx context.Context, requester, other string) (*data.Chat, error) {
	if !normalize.ValidEmail(other) {
		return nil, data.Validation("invalid email for other user")
	}
	return s.chats.Find(ctx, requester, other)
}

// SendMessage appends a message to a chat the requester participates in and
// refreshes the chat summary. The returned message is the canonical persisted
// record, and the chat is returned so the caller can address the partner.
//
// A failed summary update is logged and swallowed: the message is already
// durable and the next successful send repairs the preview.
func (s *Service) SendMessage(ctx context.Context, requester string, in SendInput) (*data.Message, *data.Chat, error) {
	if in.ChatID == "" || in.MsgType == "" || strings.TrimSpace(in.Text) == "" {
		return nil, nil, data.Validation("invalid message data")
	}
	if !in.MsgType.Valid() {
		return nil, nil, data.Validation("unknown message type " + string(in.MsgType))
	}
	chatID, err := data.ParseID(in.ChatID)
	if err != nil {
		return nil, nil, err
	}
	chat, err := s.participantChat(ctx, chatID, requester)
	if err != nil {
		return nil, nil, err
	}

	// stored verbatim; escaping is the renderer's job
	text := in.Text
	now := s.now()
	msg, err := s.msgs.Insert(ctx, &data.Message{
		ChatID:       chat.ID,
		Sender:       requester,
		MsgType:      in.MsgType,
		Text:         text,
		ResourceType: in.ResourceType,
		FileName:     in.FileName,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, nil, err
	}

	summary := in.MsgType.Summary(text)
	if err := s.chats.Touch(ctx, chat.ID, summary, now); err != nil {
		s.log.Warn("chat summary update failed; message kept",
			zap.String("chat_id", chat.ID.Hex()),
			zap.String("message_id", msg.ID.Hex()),
			zap.Error(err))
	} else {
		chat.LastMessage = summary
		chat.UpdatedAt = now
	}
	return msg, chat, nil
}

// History returns the chat's messages as the requester should see them,
// oldest first. It never writes.
func (s *Service) History(ctx context.Context, chatIDHex, requester string) ([]*data.Message, error) {
	chatID, err := data.ParseID(chatIDHex)
	if err != nil {
		return nil, err
	}
	if _, err := s.participantChat(ctx, chatID, requester); err != nil {
		return nil, err
	}
	all, err := s.msgs.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	out := make([]*data.Message, 0, len(all))
	for _, m := range all {
		switch visibility.Message(requester, m.View()) {
		case visibility.Show:
			out = append(out, m)
		case visibility.Redact:
			out = append(out, m.Redacted())
		}
	}
	return out, nil
}

// DeleteForMe hides one message from the requester's history. Deleting a
// tombstone changes nothing in storage.
func (s *Service) DeleteForMe(ctx context.Context, msgIDHex, requester string) error {
	msg, _, err := s.participantMessage(ctx, msgIDHex, requester)
	if err != nil {
		return err
	}
	if msg.MsgType == data.MsgDeleted {
		return nil
	}
	return s.msgs.AddDeletedFor(ctx, msg.ID, requester)
}

// DeleteForEveryone replaces a message with a tombstone for both
// participants. It fails with ErrExpired once the message is older than the
// delete window; the stored createdAt is authoritative.
func (s *Service) DeleteForEveryone(ctx context.Context, msgIDHex, requester string) (*data.Message, *data.Chat, error) {
	msg, chat, err := s.participantMessage(ctx, msgIDHex, requester)
	if err != nil {
		return nil, nil, err
	}
	if msg.MsgType == data.MsgDeleted {
		return msg.Redacted(), chat, nil
	}
	if s.now().Sub(msg.CreatedAt) > s.window {
		return nil, nil, fmt.Errorf("delete for everyone window of %s elapsed: %w", s.window, data.ErrExpired)
	}

	// everyone is exactly the two participants of the owning chat
	ts, err := s.msgs.Tombstone(ctx, msg.ID, visibility.Placeholder, chat.Users)
	if err != nil {
		return nil, nil, err
	}
	return ts.Redacted(), chat, nil
}

// HideChat removes the chat from the requester's list and hides every
// existing message from their history. The other participant is unaffected.
func (s *Service) HideChat(ctx context.Context, chatIDHex, requester string) error {
	chatID, err := data.ParseID(chatIDHex)
	if err != nil {
		return err
	}
	if _, err := s.participantChat(ctx, chatID, requester); err != nil {
		return err
	}
	if err := s.chats.HideFor(ctx, chatID, requester); err != nil {
		return err
	}
	return s.msgs.AddDeletedForChat(ctx, chatID, requester)
}

// ClearChat hides every existing message from the requester's history while
// leaving the chat in their list.
func (s *Service) ClearChat(ctx context.Context, chatIDHex, requester string) error {
	chatID, err := data.ParseID(chatIDHex)
	if err != nil {
		return err
	}
	if _, err := s.participantChat(ctx, chatID, requester); err != nil {
		return err
	}
	return s.msgs.AddDeletedForChat(ctx, chatID, requester)
}

// ListChats returns the requester's visible chats, newest first.
func (s *Service) ListChats(ctx context.Context, requester string) ([]*data.Chat, error) {
	all, err := s.chats.ListFor(ctx, requester)
	if err != nil {
		return nil, err
	}
	out := make([]*data.Chat, 0, len(all))
	for _, c := range all {
		if visibility.Chat(requester, c.View()) == visibility.Show {
			out = append(out, c)
		}
	}
	return out, nil
}

// Friends returns the requester's chat list joined with each partner's
// profile, newest chat first.
func (s *Service) Friends(ctx context.Context, requester string) ([]data.ChatPartner, error) {
	chats, err := s.ListChats(ctx, requester)
	if err != nil {
		return nil, err
	}
	partners := make([]string, 0, len(chats))
	for _, c := range chats {
		partners = append(partners, c.Partner(requester))
	}
	profiles, err := s.users.GetUsersByEmail(ctx, partners)
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]*data.User, len(profiles))
	for _, p := range profiles {
		byEmail[p.Email] = p
	}

	out := make([]data.ChatPartner, 0, len(chats))
	for _, c := range chats {
		p, ok := byEmail[c.Partner(requester)]
		if !ok {
			continue
		}
		out = append(out, data.ChatPartner{
			ChatID:          c.ID,
			Email:           p.Email,
			Name:            p.Name,
			ProfileImageURL: p.ProfileImageURL,
			LastMessage:     c.LastMessage,
			UpdatedAt:       c.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// FriendEmail returns the other participant of a chat.
func (s *Service) FriendEmail(ctx context.Context, chatIDHex, requester string) (string, error) {
	chatID, err := data.ParseID(chatIDHex)
	if err != nil {
		return "", err
	}
	chat, err := s.participantChat(ctx, chatID, requester)
	if err != nil {
		return "", err
	}
	return chat.Partner(requester), nil
}

// MediaMessage returns a media message the requester may download. Text
// messages are rejected, and so is anything the requester can no longer see.
func (s *Service) MediaMessage(ctx context.Context, msgIDHex, requester string) (*data.Message, error) {
	msg, _, err := s.participantMessage(ctx, msgIDHex, requester)
	if err != nil {
		return nil, err
	}
	if visibility.Message(requester, msg.View()) != visibility.Show {
		return nil, fmt.Errorf("message %s: %w", msgIDHex, data.ErrNotFound)
	}
	if msg.MsgType == data.MsgText {
		return nil, data.Validation("message has no media")
	}
	return msg, nil
}

// participantChat loads a chat and confirms requester is one of its users.
func (s *Service) participantChat(ctx context.Context, chatID bson.ObjectID, requester string) (*data.Chat, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, fmt.Errorf("chat %s: %w", chatID.Hex(), data.ErrNotFound)
		}
		return nil, err
	}
	if !visibility.Participant(requester, chat.Users) {
		return nil, fmt.Errorf("chat %s: %w", chatID.Hex(), data.ErrForbidden)
	}
	return chat, nil
}

// participantMessage loads a message and its chat, confirming requester
// participates in that chat.
func (s *Service) participantMessage(ctx context.Context, msgIDHex, requester string) (*data.Message, *data.Chat, error) {
	msgID, err := data.ParseID(msgIDHex)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.msgs.Get(ctx, msgID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, nil, fmt.Errorf("message %s: %w", msgIDHex, data.ErrNotFound)
		}
		return nil, nil, err
	}
	chat, err := s.participantChat(ctx, msg.ChatID, requester)
	if err != nil {
		return nil, nil, err
	}
	return msg, chat, nil
}
