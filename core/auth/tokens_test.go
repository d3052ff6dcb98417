package auth

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"warroom/config"
)

func mustHash(t *testing.T, raw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func TestAuthenticate(t *testing.T) {
	a := NewTokenAuthenticator([]config.APIToken{
		{Name: "chatops", Hash: mustHash(t, "s3cret"), Roles: []string{"responder"}},
		{Name: "dashboard", Hash: mustHash(t, "view-only"), Roles: []string{"viewer"}},
	})
	p, err := a.Authenticate("view-only")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Name != "dashboard" || len(p.Roles) != 1 || p.Roles[0] != "viewer" {
		t.Fatalf("unexpected principal %+v", p)
	}
	again, err := a.Authenticate("view-only")
	if err != nil || again != p {
		t.Fatalf("second lookup should hit the cache: %v", err)
	}
	if _, err := a.Authenticate("nope"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := a.Authenticate(""); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
		"Bearer":       "",
	}
	for header, want := range cases {
		if got := BearerToken(header); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestHashAndGenerate(t *testing.T) {
	raw, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(raw) != 43 {
		t.Fatalf("unexpected token length %d", len(raw))
	}
	hash, err := HashToken(raw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p, err := NewTokenAuthenticator([]config.APIToken{{Name: "cli", Hash: hash}}).Authenticate(raw)
	if err != nil || p.Name != "cli" {
		t.Fatalf("generated token does not verify: %v", err)
	}
	if _, err := HashToken("  "); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Fatalf("empty context has no principal")
	}
	ctx := WithPrincipal(context.Background(), &Principal{Name: "x"})
	p, ok := PrincipalFrom(ctx)
	if !ok || p.Name != "x" {
		t.Fatalf("principal not found")
	}
}
