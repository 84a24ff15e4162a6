// Package auth manages accounts and sign-in sessions.
package auth

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amonks/issues/internal/logging"
	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

//go:embed schema.sql
var schemaSQL string

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// MaxPasswordLength is the longest accepted password in bytes. bcrypt
// refuses longer input.
const MaxPasswordLength = 72

// DefaultSessionTTL is used when Options.SessionTTL is zero.
const DefaultSessionTTL = 30 * 24 * time.Hour

// timeLayout is fixed width so stored expiries compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Session is a signed-in user's bearer token.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Options configures a Service.
type Options struct {
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
	Logger     *log.Logger
}

// Service signs users up and in. Its tables live in the database it is
// given.
type Service struct {
	db     *sql.DB
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *log.Logger

	// dummyHash is compared against when the email is unknown so both
	// failure paths take similar time.
	dummyHash []byte
}

// New creates the auth tables if needed and returns a Service.
func New(db *sql.DB, opts Options) (*Service, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("apply auth schema: %w", err)
	}

	svc := &Service{
		db:     db,
		ttl:    opts.SessionTTL,
		cost:   opts.BcryptCost,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultSessionTTL
	}
	if svc.cost == 0 {
		svc.cost = bcrypt.DefaultCost
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.logger == nil {
		svc.logger = logging.Discard()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("not a real password"), svc.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hashing: %w", err)
	}
	svc.dummyHash = hash
	return svc, nil
}

// NormalizeEmail trims and lowercases an email and checks it looks like one.
func NormalizeEmail(email string) (string, error) {
	normalized := internalstrings.NormalizeLowerTrimSpace(email)
	at := strings.Index(normalized, "@")
	if at <= 0 || at == len(normalized)-1 || strings.ContainsAny(normalized, " \t\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return normalized, nil
}

// SignUp registers a new account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) < MinPasswordLength {
		return Session{}, ErrWeakPassword
	}
	if len(password) > MaxPasswordLength {
		return Session{}, ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)",
		email, hash, s.now().UTC().Format(timeLayout))
	if isConstraintError(err) {
		return Session{}, ErrUserExists
	}
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user signed up", "email", email)
	return s.startSession(ctx, email)
}

// SignIn checks a password and starts a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	var hash []byte
	err = s.db.QueryRowContext(ctx, "SELECT password_hash FROM users WHERE email = ?", email).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	if _, err := s.PurgeExpired(ctx); err != nil {
		s.logger.Warn("purge expired sessions", "err", err)
	}
	return s.startSession(ctx, email)
}

// SignOut ends a session. Unknown tokens are not an error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Identify returns the email a token belongs to.
func (s *Service) Identify(ctx context.Context, token string) (string, error) {
	if internalstrings.IsBlank(token) {
		return "", ErrUnauthenticated
	}

	var email, expiresAt string
	err := s.db.QueryRowContext(ctx, "SELECT email, expires_at FROM sessions WHERE token = ?", token).Scan(&email, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	expires, err := time.Parse(timeLayout, expiresAt)
	if err != nil {
		return "", fmt.Errorf("parse session expiry: %w", err)
	}
	if !s.now().Before(expires) {
		if err := s.SignOut(ctx, token); err != nil {
			s.logger.Warn("delete expired session", "err", err)
		}
		return "", ErrUnauthenticated
	}
	return email, nil
}

// PurgeExpired deletes sessions past their expiry and returns how many.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", s.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return result.RowsAffected()
}

func (s *Service) startSession(ctx context.Context, email string) (Session, error) {
	now := s.now().UTC()
	session := Session{
		Token:     uuid.NewString(),
		Email:     email,
		ExpiresAt: now.Add(s.ttl),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (token, email, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.Token, email, now.Format(timeLayout), session.ExpiresAt.Format(timeLayout))
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
