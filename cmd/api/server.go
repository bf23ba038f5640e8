package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PaulBabatuyi/chatsync/internal/auth"
	"github.com/PaulBabatuyi/chatsync/internal/chat"
	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/media"
	"github.com/PaulBabatuyi/chatsync/internal/middleware"
	"github.com/PaulBabatuyi/chatsync/internal/realtime"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server holds the collaborators the HTTP handlers need.
type Server struct {
	chat   *chat.Service
	users  data.UserStore
	auth   *auth.JWTManager
	push   *realtime.Router
	ws     http.Handler
	blobs  media.Blob
	signer *media.Signer
	log    *zap.Logger

	limiter      *middleware.LimiterStore
	rateKey      middleware.KeyFunc
	corsOrigin   string
	secureCookie bool
}

// serverDeps groups what newServer wires together.
type serverDeps struct {
	Chat      *chat.Service
	Users     data.UserStore
	Auth      *auth.JWTManager
	Push      *realtime.Router
	Lifecycle *realtime.Lifecycle
	Blobs     media.Blob
	Signer    *media.Signer
	Limiter   *middleware.LimiterStore
	// TrustedProxies enables X-Forwarded-For keying for those peers.
	TrustedProxies []string
	CORSOrigin     string
	SecureCookie   bool
	Log            *zap.Logger
}

// newServer returns a ready-to-use Server.
func newServer(d serverDeps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		chat:         d.Chat,
		users:        d.Users,
		auth:         d.Auth,
		push:         d.Push,
		blobs:        d.Blobs,
		signer:       d.Signer,
		limiter:      d.Limiter,
		rateKey:      middleware.ClientIP,
		corsOrigin:   d.CORSOrigin,
		secureCookie: d.SecureCookie,
		log:          log,
	}
	if len(d.TrustedProxies) > 0 {
		s.rateKey = middleware.TrustedForwarded(d.TrustedProxies)
	}
	s.ws = realtime.NewHandler(d.Lifecycle, s.identify, d.CORSOrigin, log.Named("ws"))
	return s
}

// routes builds the HTTP surface.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(s.log.Named("http")), middleware.CORS(s.corsOrigin))
	// let CORS answer preflights on any path
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	limited := middleware.RateLimit(s.limiter, s.rateKey)
	r.Handle("/signup", limited(http.HandlerFunc(s.handleSignup))).Methods(http.MethodPost)
	r.Handle("/login", limited(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet, http.MethodPost)

	// signed links authorize themselves
	r.HandleFunc("/media/{rt}/{file}", s.handleServeMedia).Methods(http.MethodGet)
	r.HandleFunc("/avatars/{file}", s.handleAvatar).Methods(http.MethodGet)

	r.Handle("/ws", s.ws).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/users/id/{id}", s.handleGetUserByID).Methods(http.MethodGet)
	api.HandleFunc("/users/{email}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/profile/image", s.handleProfileImage).Methods(http.MethodPatch)

	api.HandleFunc("/chats", s.handleListChats).Methods(http.MethodGet)
	api.HandleFunc("/chats", s.handleStartChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/lookup", s.handleLookupChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId}", s.handleHideChat).Methods(http.MethodDelete)
	api.HandleFunc("/chats/{chatId}/friend", s.handleChatFriend).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatId}/messages", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/chats/{chatId}/messages", s.handleClearChat).Methods(http.MethodDelete)
	api.HandleFunc("/friends", s.handleFriends).Methods(http.MethodGet)

	api.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{messageId}", s.handleDeleteMessage).Methods(http.MethodDelete)

	api.HandleFunc("/media", s.handleUploadMedia).Methods(http.MethodPost)
	api.HandleFunc("/download/{messageId}", s.handleDownload).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "Server is working..."})
}

// envelope is the JSON body of every response.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err onto a status code and a {success:false} body.
// Internal failures are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, data.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, data.ErrNotFound), errors.Is(err, media.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, data.ErrExpired):
		status, msg = http.StatusGone, "message can no longer be deleted for everyone"
	case errors.Is(err, data.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, data.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, errUnauthenticated):
		status, msg = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, media.ErrBadSignature):
		status, msg = http.StatusForbidden, "invalid or expired link"
	case errors.Is(err, data.ErrUpstream):
		status, msg = http.StatusBadGateway, "storage unavailable"
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, envelope{"success": false, "msg": msg})
}

// decodeJSON reads a JSON body into dst, reporting ErrValidation on bad input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return data.Validation("malformed request body")
	}
	return nil
}
