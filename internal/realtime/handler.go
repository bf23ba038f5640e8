package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// eventTimeout bounds the store calls made while handling one frame.
const eventTimeout = 5 * time.Second

// IdentifyFunc returns the verified email of the caller.
type IdentifyFunc func(r *http.Request) (string, error)

// Handler upgrades authenticated requests to websocket sessions.
type Handler struct {
	lc       *Lifecycle
	identify IdentifyFunc
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler returns a Handler. allowedOrigin "*" accepts any origin; an empty
// value falls back to gorilla's same-origin check.
func NewHandler(lc *Lifecycle, identify IdentifyFunc, allowedOrigin string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{lc: lc, identify: identify, log: log}
	h.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	switch allowedOrigin {
	case "":
	case "*":
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	default:
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return r.Header.Get("Origin") == allowedOrigin
		}
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	email, err := h.identify(r)
	if err != nil || email == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(email, ws)
	conn.Start()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	sess, err := h.lc.Open(ctx, email, conn)
	cancel()
	if err != nil {
		conn.Close(websocket.ClosePolicyViolation, err.Error())
		return
	}

	err = conn.ReadLoop(func(env Envelope) {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		sess.Handle(ctx, env)
	})
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, CloseSessionReplaced) {
		h.log.Debug("websocket read ended", zap.String("email", email), zap.Error(err))
	}

	ctx, cancel = context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	sess.GoOffline(ctx)
	conn.Close(websocket.CloseNormalClosure, "")
}
