package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/normalize"
	"github.com/PaulBabatuyi/chatsync/internal/presence"

	"go.uber.org/zap"
)

// ErrNoIdentity is returned when a handshake carries no email.
var ErrNoIdentity = errors.New("handshake without identity")

// State is the position of a session in its lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Registered
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Registered:
		return "registered"
	default:
		return "unknown"
	}
}

// Conn is a connection the lifecycle can register and, when superseded, close.
type Conn interface {
	presence.Conn
	Close(code int, reason string)
}

// LastSeenRecorder persists the moment a user went offline.
type LastSeenRecorder interface {
	SetLastSeen(ctx context.Context, email string, at time.Time) error
}

// ChatResolver resolves the other participant of a chat, failing when the
// requester is not a participant.
type ChatResolver interface {
	FriendEmail(ctx context.Context, chatID, requester string) (string, error)
}

// PresenceMirror receives online/offline transitions, e.g. to publish them to
// a shared cache.
type PresenceMirror interface {
	Online(ctx context.Context, email string) error
	Offline(ctx context.Context, email string, at time.Time) error
}

// Lifecycle binds connections to identities. It owns the presence change
// hook: every register or unregister broadcasts the online set.
type Lifecycle struct {
	dir    *presence.Directory
	router *Router
	users  LastSeenRecorder
	chats  ChatResolver
	mirror PresenceMirror
	log    *zap.Logger
	now    func() time.Time
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithMirror publishes presence transitions to m as well.
func WithMirror(m PresenceMirror) LifecycleOption {
	return func(l *Lifecycle) { l.mirror = m }
}

// WithLifecycleClock replaces time.Now for lastSeen stamps.
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

// NewLifecycle wires the directory's change hook to router's presence
// broadcast and returns the Lifecycle.
func NewLifecycle(dir *presence.Directory, router *Router, users LastSeenRecorder, chats ChatResolver, log *zap.Logger, opts ...LifecycleOption) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Lifecycle{
		dir:    dir,
		router: router,
		users:  users,
		chats:  chats,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	dir.OnChange(func() { router.BroadcastPresence() })
	return l
}

// Session is one connection's path through Connecting, Registered and
// Disconnected.
type Session struct {
	lc    *Lifecycle
	email string
	conn  Conn

	mu    sync.Mutex
	state State
}

// Open registers conn under email. A connection previously registered for the
// same email is closed with CloseSessionReplaced; its own teardown later is a
// no-op because the directory no longer holds it.
func (l *Lifecycle) Open(ctx context.Context, email string, conn Conn) (*Session, error) {
	s := &Session{lc: l, email: normalize.Email(email), conn: conn, state: Connecting}
	if s.email == "" {
		s.state = Disconnected
		return nil, ErrNoIdentity
	}

	replaced := l.dir.Register(s.email, conn)
	s.setState(Registered)
	l.log.Info("user online", zap.String("email", s.email), zap.String("conn_id", conn.ID()))

	if l.mirror != nil {
		if err := l.mirror.Online(ctx, s.email); err != nil {
			l.log.Warn("presence mirror online failed", zap.String("email", s.email), zap.Error(err))
		}
	}
	if old, ok := replaced.(Conn); ok {
		old.Close(CloseSessionReplaced, "session replaced")
	}
	return s, nil
}

// Email is the identity bound to the session.
func (s *Session) Email() string { return s.email }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// GoOffline tears the session down. It runs for both an explicit offline
// signal and a transport close; only the call that actually removes the
// directory entry does the work, so racing paths produce exactly one teardown.
// It reports whether this call did it.
//
// The presence broadcast is sent by the directory's change hook while
// Unregister runs, so it goes out before lastSeen is persisted. Peers only
// see the online list, which is already final at that point; lastSeen is read
// later through the user profile.
func (s *Session) GoOffline(ctx context.Context) bool {
	s.setState(Disconnected)

	if !s.lc.dir.Unregister(s.email, s.conn) {
		return false
	}

	at := s.lc.now()
	if err := s.lc.users.SetLastSeen(ctx, s.email, at); err != nil {
		s.lc.log.Warn("persist lastSeen failed", zap.String("email", s.email), zap.Error(err))
	}
	if s.lc.mirror != nil {
		if err := s.lc.mirror.Offline(ctx, s.email, at); err != nil {
			s.lc.log.Warn("presence mirror offline failed", zap.String("email", s.email), zap.Error(err))
		}
	}
	s.lc.log.Info("user offline", zap.String("email", s.email), zap.String("conn_id", s.conn.ID()))
	return true
}

// Handle processes one inbound frame.
func (s *Session) Handle(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventTypingStart, EventTypingStop:
		if s.State() != Registered {
			return
		}
		var req TypingRequest
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ChatID == "" {
			s.lc.log.Debug("bad typing frame", zap.String("email", s.email))
			return
		}
		// the receiver is derived from the chat, never taken from the client
		partner, err := s.lc.chats.FriendEmail(ctx, req.ChatID, s.email)
		if err != nil || partner == "" {
			s.lc.log.Debug("typing for unknown chat", zap.String("email", s.email), zap.String("chat_id", req.ChatID), zap.Error(err))
			return
		}
		s.lc.router.PushTyping(partner, Typing{
			ChatID: req.ChatID,
			Typing: env.Event == EventTypingStart,
			From:   s.email,
		})
	case EventUserOffline:
		s.GoOffline(ctx)
	default:
		s.lc.log.Debug("unknown event", zap.String("event", env.Event), zap.String("email", s.email))
	}
}
