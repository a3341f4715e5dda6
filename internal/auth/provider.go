// Package auth signs users in and out and keeps their sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/storage"
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 6

// Provider is the identity service the web layer talks to.
type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (core.User, bool)
	UpdateProfile(ctx context.Context, token, displayName string) (core.User, error)
	UpdateEmail(ctx context.Context, token, email string) (core.User, error)
	UpdatePassword(ctx context.Context, token, password, confirm string) error
	IssueResetToken(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password, confirm string) error
}

// Session is an authenticated browser session.
type Session struct {
	Token     string
	User      core.User
	ExpiresAt time.Time
}

type sessionEntry struct {
	userID    string
	expiresAt time.Time
}

// Config tunes a LocalProvider.
type Config struct {
	SessionTTL  time.Duration
	MaxSessions int
	// LoginAttemptsPerMinute is how many failed sign-ins an email may
	// have per minute before further attempts are refused.
	LoginAttemptsPerMinute int
	BcryptCost             int
	// ResetTTL is how long a password reset token stays valid.
	ResetTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:             7 * 24 * time.Hour,
		MaxSessions:            10000,
		LoginAttemptsPerMinute: 5,
		BcryptCost:             bcrypt.DefaultCost,
		ResetTTL:               time.Hour,
	}
}

// LocalProvider keeps users in a storage.UserStore and sessions in memory.
type LocalProvider struct {
	users    storage.UserStore
	hub      *Hub
	sessions *cache.LRUCache[sessionEntry]
	failures *ratelimit.Limiter
	cfg      Config
	logger   *log.Logger
	now      func() time.Time
	unsub    func()
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider wires a provider to users and hub. A password change
// revokes every other session of that user; a reset revokes all of them.
func NewLocalProvider(users storage.UserStore, hub *Hub, cfg Config, logger *log.Logger) *LocalProvider {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.LoginAttemptsPerMinute <= 0 {
		cfg.LoginAttemptsPerMinute = def.LoginAttemptsPerMinute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = def.ResetTTL
	}
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	p := &LocalProvider{
		users:    users,
		hub:      hub,
		sessions: cache.NewLRUCache[sessionEntry](cfg.MaxSessions, cfg.SessionTTL),
		failures: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.LoginAttemptsPerMinute}),
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentAuth),
		now:      time.Now,
	}
	p.unsub = hub.OnChange(func(ev SessionEvent) {
		if ev.Kind != PasswordUpdated {
			return
		}
		n := p.sessions.DeleteFunc(func(token string, s sessionEntry) bool {
			return s.userID == ev.UserID && token != ev.Token
		})
		if n > 0 {
			p.logger.Info("Revoked sessions after password change", log.FieldUserID, ev.UserID, log.FieldCount, n)
		}
	})
	return p
}

// Sessions exposes the session cache so it can be swept periodically.
func (p *LocalProvider) Sessions() cache.Cleaner {
	return p.sessions
}

// Close detaches from the hub and stops background work.
func (p *LocalProvider) Close() {
	p.unsub()
	p.failures.Stop()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if !core.ValidEmail(email) {
		return Session{}, newError(CodeInvalidEmail, "email address is badly formatted")
	}
	if displayName == "" {
		return Session{}, newError(CodeMissingDisplayName, "display name is required")
	}
	if len(password) < MinPasswordLength {
		return Session{}, newError(CodeWeakPassword, fmt.Sprintf("password should be at least %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return Session{}, newError(CodeEmailInUse, "email address is already in use")
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	p.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID, log.FieldOperation, log.OpSignUp)
	return p.startSession(u), nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if !core.ValidEmail(email) {
		return Session{}, newError(CodeInvalidEmail, "email address is badly formatted")
	}
	if p.failures.Exceeded(email) {
		p.logger.WarnContext(ctx, "Sign-in throttled", log.FieldOperation, log.OpSignIn)
		return Session{}, newError(CodeTooManyRequests, "too many failed sign-in attempts")
	}

	u, err := p.users.GetUserByEmail(ctx, email)
	if core.IsNotFound(err) {
		p.failures.Allow(email)
		return Session{}, newError(CodeUserNotFound, "no user with this email")
	}
	if err != nil {
		return Session{}, fmt.Errorf("look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		p.failures.Allow(email)
		p.logger.InfoContext(ctx, "Sign-in rejected", log.FieldUserID, u.ID, log.FieldOperation, log.OpSignIn)
		return Session{}, newError(CodeWrongPassword, "password is invalid")
	}

	p.failures.Reset(email)
	p.logger.InfoContext(ctx, "User signed in", log.FieldUserID, u.ID, log.FieldOperation, log.OpSignIn)
	return p.startSession(u), nil
}

func (p *LocalProvider) startSession(u core.User) Session {
	s := Session{
		Token:     uuid.NewString(),
		User:      u,
		ExpiresAt: p.now().Add(p.cfg.SessionTTL),
	}
	p.sessions.Set(s.Token, sessionEntry{userID: u.ID, expiresAt: s.ExpiresAt})
	p.hub.Publish(SessionEvent{Kind: SignedIn, UserID: u.ID, Token: s.Token})
	return s
}

// SignOut ends the session. Unknown tokens are ignored.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	entry, ok := p.sessions.Get(token)
	if !ok {
		return nil
	}
	p.sessions.Delete(token)
	p.logger.InfoContext(ctx, "User signed out", log.FieldUserID, entry.userID, log.FieldOperation, log.OpSignOut)
	p.hub.Publish(SessionEvent{Kind: SignedOut, UserID: entry.userID, Token: token})
	return nil
}

func (p *LocalProvider) CurrentUser(ctx context.Context, token string) (core.User, bool) {
	u, err := p.sessionUser(ctx, token)
	return u, err == nil
}

func (p *LocalProvider) sessionUser(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, newError(CodeSessionExpired, "no session")
	}
	entry, ok := p.sessions.Get(token)
	if !ok || p.now().After(entry.expiresAt) {
		p.sessions.Delete(token)
		return core.User{}, newError(CodeSessionExpired, "session expired")
	}
	u, err := p.users.GetUser(ctx, entry.userID)
	if core.IsNotFound(err) {
		p.sessions.Delete(token)
		return core.User{}, newError(CodeSessionExpired, "user no longer exists")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load session user: %w", err)
	}
	return u, nil
}

func (p *LocalProvider) UpdateProfile(ctx context.Context, token, displayName string) (core.User, error) {
	u, err := p.sessionUser(ctx, token)
	if err != nil {
		return core.User{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return core.User{}, newError(CodeMissingDisplayName, "display name is required")
	}
	u.DisplayName = displayName
	if err := p.users.UpdateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	p.hub.Publish(SessionEvent{Kind: ProfileUpdated, UserID: u.ID, Token: token})
	return u, nil
}

func (p *LocalProvider) UpdateEmail(ctx context.Context, token, email string) (core.User, error) {
	u, err := p.sessionUser(ctx, token)
	if err != nil {
		return core.User{}, err
	}
	email = normalizeEmail(email)
	if !core.ValidEmail(email) {
		return core.User{}, newError(CodeInvalidEmail, "email address is badly formatted")
	}
	u.Email = email
	if err := p.users.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return core.User{}, newError(CodeEmailInUse, "email address is already in use")
		}
		return core.User{}, fmt.Errorf("update email: %w", err)
	}
	p.hub.Publish(SessionEvent{Kind: EmailUpdated, UserID: u.ID, Token: token})
	return u, nil
}

func (p *LocalProvider) UpdatePassword(ctx context.Context, token, password, confirm string) error {
	u, err := p.sessionUser(ctx, token)
	if err != nil {
		return err
	}
	if password != confirm {
		return newError(CodePasswordsMismatch, "passwords do not match")
	}
	if len(password) < MinPasswordLength {
		return newError(CodeWeakPassword, fmt.Sprintf("password should be at least %d characters", MinPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	if err := p.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	p.logger.InfoContext(ctx, "Password changed", log.FieldUserID, u.ID, log.FieldOperation, log.OpUpdate)
	p.hub.Publish(SessionEvent{Kind: PasswordUpdated, UserID: u.ID, Token: token})
	return nil
}

// HashPassword returns a bcrypt hash for callers that create users directly.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", newError(CodeWeakPassword, fmt.Sprintf("password should be at least %d characters", MinPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
