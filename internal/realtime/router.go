// Package realtime pushes events to connected users and manages the lifecycle
// of their websocket sessions.
package realtime

import (
	"github.com/PaulBabatuyi/chatsync/internal/presence"

	"go.uber.org/zap"
)

// Router delivers pushes to whichever connection the presence directory holds
// for the target. Delivery is best effort: an offline target is a silent
// drop, with no queueing and no retry. History fetch is the durable path.
type Router struct {
	dir *presence.Directory
	log *zap.Logger
}

// NewRouter returns a Router over dir.
func NewRouter(dir *presence.Directory, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{dir: dir, log: log}
}

// Push sends one event to target and reports whether it was handed to a live
// connection. A false result is the normal outcome for offline users.
func (r *Router) Push(kind Kind, target string, payload any) bool {
	conn, ok := r.dir.Lookup(target)
	if !ok {
		return false
	}
	frame, err := encode(kind, payload)
	if err != nil {
		r.log.Error("drop push", zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	if err := conn.Send(frame); err != nil {
		r.log.Debug("push failed",
			zap.String("kind", string(kind)),
			zap.String("to", target),
			zap.String("conn_id", conn.ID()),
			zap.Error(err))
		return false
	}
	return true
}

// PushTyping relays a typing signal from one participant to the other.
func (r *Router) PushTyping(target string, t Typing) bool {
	kind := KindTypingStop
	if t.Typing {
		kind = KindTypingStart
	}
	return r.Push(kind, target, t)
}

// BroadcastPresence sends the current online set to every registered
// connection. It reads a fresh snapshot, so whichever broadcast runs last
// carries the latest state.
func (r *Router) BroadcastPresence() int {
	online := r.dir.Snapshot()
	frame, err := encode(KindPresence, Presence{Online: online})
	if err != nil {
		r.log.Error("drop presence broadcast", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, email := range online {
		conn, ok := r.dir.Lookup(email)
		if !ok {
			continue
		}
		if err := conn.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}
