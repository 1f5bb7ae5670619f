package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/gray-logic-notify/internal/store"
)

// bearerPrefix is matched exactly, including case and the trailing space.
const bearerPrefix = "Bearer "

// Logger is the logging surface the auth service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Service registers principals, logs them in, and issues and verifies tokens.
type Service struct {
	credentials store.ConditionalStore
	secrets     *SecretCache
	params      Params
	minPassword int
	ttl         time.Duration
	now         func() time.Time
	logger      Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithParams sets the derivation parameters for new credentials.
func WithParams(p Params) Option {
	return func(s *Service) { s.params = p }
}

// WithMinPasswordLength overrides MinPasswordLength.
func WithMinPasswordLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minPassword = n
		}
	}
}

// WithLogger sets the logger used for debug-level failure reasons.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service over the credential store.
func NewService(credentials store.ConditionalStore, opts ...Option) *Service {
	s := &Service{
		credentials: credentials,
		params:      DefaultParams(),
		minPassword: MinPasswordLength,
		ttl:         DefaultTokenTTL,
		now:         time.Now,
		logger:      noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.secrets = NewSecretCache(credentials, s.params)
	return s
}

// Register creates a credential for id and returns a token for it.
func (s *Service) Register(ctx context.Context, id, password string, scopes []string) (Token, error) {
	if id == ReservedSecretID {
		return Token{}, ErrAlreadyExists
	}

	_, err := s.credentials.Get(ctx, id)
	switch {
	case err == nil:
		return Token{}, ErrAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		return Token{}, fmt.Errorf("checking credential: %w", err)
	}

	if utf8.RuneCountInString(password) < s.minPassword {
		return Token{}, ErrWeakPassword
	}

	cred, err := DeriveCredential(password, scopes, s.params)
	if err != nil {
		return Token{}, err
	}

	created, err := store.PutJSONIfAbsent(ctx, s.credentials, id, cred)
	if err != nil {
		return Token{}, fmt.Errorf("storing credential: %w", err)
	}
	if !created {
		return Token{}, ErrAlreadyExists
	}

	s.logger.Info("principal registered", "id", id)
	return s.IssueToken(ctx, id, cred.Scopes)
}

// Login verifies password for id and returns a token with the stored scopes.
func (s *Service) Login(ctx context.Context, id, password string) (Token, error) {
	if id == ReservedSecretID {
		return Token{}, ErrUnauthorized
	}

	cred, err := store.GetJSON[Credential](ctx, s.credentials, id)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("login rejected", "id", id, "reason", "no credential")
		return Token{}, ErrUnauthorized
	}
	if err != nil {
		return Token{}, fmt.Errorf("loading credential: %w", err)
	}

	ok, err := VerifyCredential(&cred, password)
	if err != nil {
		return Token{}, fmt.Errorf("verifying credential: %w", err)
	}
	if !ok {
		s.logger.Debug("login rejected", "id", id, "reason", "password mismatch")
		return Token{}, ErrUnauthorized
	}

	return s.IssueToken(ctx, id, cred.Scopes)
}

// IssueToken signs a token for id carrying scopes.
func (s *Service) IssueToken(ctx context.Context, id string, scopes []string) (Token, error) {
	secret, err := s.secrets.Get(ctx)
	if err != nil {
		return Token{}, err
	}
	return signToken(secret, id, scopes, s.now(), s.ttl)
}

// VerifyToken checks token and returns its subject if it carries at least
// one of requiredScopes. An empty requiredScopes never matches.
func (s *Service) VerifyToken(ctx context.Context, token string, requiredScopes []string) (string, error) {
	secret, err := s.secrets.Get(ctx)
	if err != nil {
		return "", err
	}

	claims, err := parseToken(token, secret, s.now)
	if err != nil {
		return "", err
	}

	if !hasAnyScope(claims.Scopes, requiredScopes) {
		return "", fmt.Errorf("%w: missing required scope", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// AuthorizeBearer verifies an Authorization header value of the form
// "Bearer <token>". Every failure is reported as ErrUnauthorized.
func (s *Service) AuthorizeBearer(ctx context.Context, header string, requiredScopes []string) (string, error) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		s.logger.Debug("bearer rejected", "reason", "missing or malformed header")
		return "", ErrUnauthorized
	}

	id, err := s.VerifyToken(ctx, token, requiredScopes)
	if err != nil {
		s.logger.Debug("bearer rejected", "reason", err.Error())
		return "", ErrUnauthorized
	}
	return id, nil
}
