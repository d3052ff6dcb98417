// Package auth verifies API bearer tokens against the bcrypt hashes in the
// configuration.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"warroom/config"
)

type Principal struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type contextKey string

const PrincipalContextKey contextKey = "warroom_principal"

var ErrInvalidToken = errors.New("invalid token")

// TokenAuthenticator matches a raw token against every configured hash.
// Successful matches are memoised by token digest so bcrypt runs once per
// token and process.
type TokenAuthenticator struct {
	tokens []config.APIToken
	mu     sync.RWMutex
	known  map[[sha256.Size]byte]*Principal
}

func NewTokenAuthenticator(tokens []config.APIToken) *TokenAuthenticator {
	return &TokenAuthenticator{tokens: tokens, known: map[[sha256.Size]byte]*Principal{}}
}

func (a *TokenAuthenticator) Authenticate(raw string) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if a == nil || raw == "" {
		return nil, ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(raw))
	a.mu.RLock()
	p, ok := a.known[digest]
	a.mu.RUnlock()
	if ok {
		return p, nil
	}
	for _, tok := range a.tokens {
		if bcrypt.CompareHashAndPassword([]byte(tok.Hash), []byte(raw)) != nil {
			continue
		}
		p = &Principal{Name: tok.Name, Roles: append([]string(nil), tok.Roles...)}
		a.mu.Lock()
		a.known[digest] = p
		a.mu.Unlock()
		return p, nil
	}
	return nil, ErrInvalidToken
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func HashToken(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("token is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateToken returns 32 random bytes, base64url encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok && p != nil
}
