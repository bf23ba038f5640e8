package media

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrBadSignature is returned when a download token is invalid, expired or
// issued for different content.
var ErrBadSignature = errors.New("media: invalid or expired link")

type linkClaims struct {
	ResourceType string `json:"rt"`
	FileName     string `json:"fn,omitempty"`
	jwt.RegisteredClaims
}

// Grant is what a verified download link authorizes.
type Grant struct {
	ContentID    string
	ResourceType string
	FileName     string
}

// Signer issues time-limited download links.
type Signer struct {
	key     []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewSigner returns a Signer whose links point at baseURL + "/" + contentID.
func NewSigner(secret string, ttl time.Duration, baseURL string) *Signer {
	return &Signer{key: []byte(secret), ttl: ttl, baseURL: baseURL, now: time.Now}
}

// URL returns a signed link for g.
func (s *Signer) URL(g Grant) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := linkClaims{
		ResourceType: g.ResourceType,
		FileName:     g.FileName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   g.ContentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("media: sign link: %w", err)
	}
	return s.baseURL + "/" + g.ContentID + "?token=" + url.QueryEscape(token), exp, nil
}

// Verify checks token against contentID.
func (s *Signer) Verify(contentID, token string) (Grant, error) {
	claims := &linkClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(contentID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return Grant{ContentID: contentID, ResourceType: claims.ResourceType, FileName: claims.FileName}, nil
}
