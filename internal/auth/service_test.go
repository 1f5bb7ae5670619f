package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/store"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *store.MemoryStore) {
	t.Helper()
	credentials := store.NewMemoryStore()
	opts = append([]Option{WithParams(fastParams)}, opts...)
	return NewService(credentials, opts...), credentials
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Register(ctx, "alice", "password123", []string{ScopeSelf})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	id, err := svc.VerifyToken(ctx, tok.Value, []string{ScopeSelf})
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if id != "alice" {
		t.Errorf("VerifyToken() = %q, want %q", id, "alice")
	}

	if _, err := svc.Login(ctx, "alice", "wrongpass"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Login(wrong password) error = %v, want ErrUnauthorized", err)
	}

	tok, err = svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := svc.VerifyToken(ctx, tok.Value, []string{ScopeSelf}); err != nil {
		t.Errorf("VerifyToken(login token) error = %v", err)
	}
}

func TestService_RegisterErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123", []string{ScopeSelf}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		id       string
		password string
		wantErr  error
	}{
		{"duplicate id", "alice", "another-password", ErrAlreadyExists},
		{"duplicate id wins over weak password", "alice", "short", ErrAlreadyExists},
		{"reserved id", ReservedSecretID, "password123", ErrAlreadyExists},
		{"weak password", "bob", "short", ErrWeakPassword},
		{"nine characters", "bob", "123456789", ErrWeakPassword},
		{"counts characters not bytes", "bob", "ééééééééé", ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.id, tt.password, []string{ScopeSelf})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := svc.Register(ctx, "carol", "1234567890", []string{ScopeSelf}); err != nil {
		t.Errorf("Register() with exactly 10 characters error = %v", err)
	}
}

func TestService_LoginUnknownAndReserved(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Login(unknown) error = %v, want ErrUnauthorized", err)
	}

	// Force the secret record into existence, then try to log into it.
	if _, err := svc.IssueToken(ctx, "x", nil); err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := svc.Login(ctx, ReservedSecretID, "anything-at-all"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Login(reserved) error = %v, want ErrUnauthorized", err)
	}
}

func TestService_LoginCarriesStoredScopes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123", []string{"a", "b"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	tok, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := svc.VerifyToken(ctx, tok.Value, []string{"b"}); err != nil {
		t.Errorf("VerifyToken([b]) error = %v", err)
	}
	if _, err := svc.VerifyToken(ctx, tok.Value, []string{"self"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("VerifyToken([self]) error = %v, want ErrUnauthorized", err)
	}
}

func TestService_VerifyTokenScopes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ab, err := svc.IssueToken(ctx, "id", []string{"a", "b"})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	a, err := svc.IssueToken(ctx, "id", []string{"a"})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if id, err := svc.VerifyToken(ctx, ab.Value, []string{"b"}); err != nil || id != "id" {
		t.Errorf("VerifyToken(ab, [b]) = %q, %v; want id, nil", id, err)
	}
	if _, err := svc.VerifyToken(ctx, a.Value, []string{"b"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("VerifyToken(a, [b]) error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.VerifyToken(ctx, ab.Value, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("VerifyToken(ab, nil) error = %v, want ErrUnauthorized", err)
	}
}

func TestService_TokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, _ := newTestService(t, WithClock(clock))
	ctx := context.Background()

	tok, err := svc.IssueToken(ctx, "id", []string{ScopeSelf})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if !tok.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want issue time + 1h", tok.ExpiresAt)
	}

	now = now.Add(59 * time.Minute)
	if _, err := svc.VerifyToken(ctx, tok.Value, []string{ScopeSelf}); err != nil {
		t.Errorf("VerifyToken() before expiry error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.VerifyToken(ctx, tok.Value, []string{ScopeSelf}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("VerifyToken() after expiry error = %v, want ErrUnauthorized", err)
	}
}

func TestService_WithTokenTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }), WithTokenTTL(5*time.Minute))

	tok, err := svc.IssueToken(context.Background(), "id", nil)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if !tok.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want issue time + 5m", tok.ExpiresAt)
	}
}

func TestService_AuthorizeBearer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.IssueToken(ctx, "alice", []string{ScopeSelf})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name    string
		header  string
		scopes  []string
		wantID  string
		wantErr bool
	}{
		{"valid", "Bearer " + tok.Value, []string{ScopeSelf}, "alice", false},
		{"empty header", "", []string{ScopeSelf}, "", true},
		{"lowercase scheme", "bearer " + tok.Value, []string{ScopeSelf}, "", true},
		{"no space", "Bearer" + tok.Value, []string{ScopeSelf}, "", true},
		{"wrong scheme", "Basic " + tok.Value, []string{ScopeSelf}, "", true},
		{"wrong scope", "Bearer " + tok.Value, []string{"admin"}, "", true},
		{"garbage token", "Bearer abc.def.ghi", []string{ScopeSelf}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.AuthorizeBearer(ctx, tt.header, tt.scopes)
			if tt.wantErr {
				if err != ErrUnauthorized { //nolint:errorlint // Must be the bare sentinel
					t.Errorf("AuthorizeBearer() error = %v, want bare ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthorizeBearer() error = %v", err)
			}
			if id != tt.wantID {
				t.Errorf("AuthorizeBearer() = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestService_SecretSharedAcrossInstances(t *testing.T) {
	credentials := store.NewMemoryStore()
	ctx := context.Background()

	first := NewService(credentials, WithParams(fastParams))
	second := NewService(credentials, WithParams(fastParams))

	tok, err := first.IssueToken(ctx, "alice", []string{ScopeSelf})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := second.VerifyToken(ctx, tok.Value, []string{ScopeSelf}); err != nil {
		t.Errorf("second instance VerifyToken() error = %v", err)
	}
}
