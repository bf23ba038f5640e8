package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/PaulBabatuyi/chatsync/internal/auth"
)

const tokenCookie = "token"

var errUnauthenticated = errors.New("missing credentials")

// context key type for storing auth claims in context
type authContextKey struct{}

// getClaimsFromContext extracts auth claims from the context, if present.
func getClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	return c, ok
}

// requester is the verified email of the caller; routes behind requireAuth
// always have one.
func requester(r *http.Request) string {
	c, _ := getClaimsFromContext(r.Context())
	if c == nil {
		return ""
	}
	return c.Email
}

// bearer returns the token from the "token" cookie or an Authorization
// Bearer header, in that order.
func bearer(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (s *Server) verify(r *http.Request) (*auth.Claims, error) {
	token := bearer(r)
	if token == "" {
		return nil, errUnauthenticated
	}
	return s.auth.VerifyToken(token)
}

// identify is the websocket handshake's identity check.
func (s *Server) identify(r *http.Request) (string, error) {
	claims, err := s.verify(r)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// requireAuth rejects requests without a valid token and attaches the claims
// to the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.verify(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
