package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/storage"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: time.Hour, Issuer: "mobilechat-test"}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	hash, err := h.Hash("abc")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Compare(hash, "abc") {
		t.Errorf("Compare(abc) = false")
	}
	if h.Compare(hash, "ABC") {
		t.Errorf("Compare must be case sensitive")
	}
	if _, err := h.Hash(strings.Repeat("x", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash(73 bytes) error = %v", err)
	}
}

func TestTokenRoundTripAndExpiry(t *testing.T) {
	cfg := testAuthConfig()
	now := time.Now()
	token, claims, err := GenerateToken("u1", "a@x.io", cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseToken(token, cfg, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got.UserID != "u1" || got.ID != claims.ID {
		t.Fatalf("claims = %+v", got)
	}
	if _, err := ParseToken(token, cfg, now.Add(2*time.Hour)); err == nil {
		t.Fatal("expired token accepted")
	}
	other := cfg
	other.JWTSecretKey = "other"
	if _, err := ParseToken(token, other, now); err == nil {
		t.Fatal("token with wrong key accepted")
	}
}

func TestMemoryBlacklistExpires(t *testing.T) {
	b := NewMemoryBlacklist()
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Add(ctx, "j1", now.Add(time.Minute))
	_ = b.Add(ctx, "j0", now.Add(-time.Minute))
	if ok, _ := b.IsBlacklisted(ctx, "j1"); !ok {
		t.Fatal("j1 should be revoked")
	}
	if ok, _ := b.IsBlacklisted(ctx, "j0"); ok {
		t.Fatal("already expired token should not be stored")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := b.IsBlacklisted(ctx, "j1"); ok {
		t.Fatal("j1 should have aged out")
	}
}

func TestLocalProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewLocalProvider(store.Credentials(), NewPasswordHasher(bcrypt.MinCost), testAuthConfig(), NewMemoryBlacklist())

	uid, err := p.SignUp(ctx, " Alice@Example.com ", "password1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if _, err := p.SignUp(ctx, "alice@example.com", "other-pass"); !errors.Is(err, ErrEmailRegistered) {
		t.Fatalf("duplicate SignUp error = %v", err)
	}

	if _, err := p.SignIn(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v", err)
	}
	sess, err := p.SignIn(ctx, "ALICE@example.com", "password1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if sess.UserID != uid {
		t.Fatalf("session user = %s, want %s", sess.UserID, uid)
	}

	claims, err := p.Verify(ctx, sess.Token)
	if err != nil || claims.UserID != uid {
		t.Fatalf("Verify() = %+v, %v", claims, err)
	}
	if err := p.SignOut(ctx, sess.Token); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, err := p.Verify(ctx, sess.Token); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Verify after sign out error = %v", err)
	}

	live, err := p.SignIn(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.DeleteAccount(ctx, uid); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Verify(ctx, live.Token); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Verify after delete error = %v", err)
	}
	if _, err := p.SignIn(ctx, "alice@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("SignIn after delete error = %v", err)
	}
	if !errors.Is(ErrInvalidCredentials, apperrors.ErrUnauthorized) {
		t.Fatal("credential errors must carry the unauthorized kind")
	}
}
