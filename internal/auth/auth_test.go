package auth

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/log"
	"ledger/internal/storage/memory"
)

func newTestProvider(t *testing.T) (*LocalProvider, *Hub) {
	t.Helper()
	cfg := log.DefaultConfig()
	cfg.Output = io.Discard
	hub := NewHub()
	p := NewLocalProvider(memory.New(), hub, Config{
		LoginAttemptsPerMinute: 3,
		BcryptCost:             bcrypt.MinCost,
	}, log.New(cfg))
	t.Cleanup(p.Close)
	return p, hub
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		dev  bool
		want string
	}{
		{"nil", nil, false, ""},
		{"invalid email", newError(CodeInvalidEmail, "x"), false, "Invalid email format. Please check your email address."},
		{"user not found", newError(CodeUserNotFound, "x"), false, "Invalid email or password. Please try again."},
		{"wrong password", newError(CodeWrongPassword, "x"), false, "Invalid email or password. Please try again."},
		{"throttled", newError(CodeTooManyRequests, "x"), false, "Too many failed login attempts. Please try again later."},
		{"email in use", newError(CodeEmailInUse, "x"), false, "This email is already registered. Please use a different email or try logging in."},
		{"weak password", newError(CodeWeakPassword, "x"), false, "Password is too weak. Please use a stronger password."},
		{"mismatch", newError(CodePasswordsMismatch, "x"), false, "Passwords do not match"},
		{"unknown in production", errors.New("boom"), false, "An unexpected error occurred. Please try again later."},
		{"unknown in development", errors.New("boom"), true, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err, tt.dev))
		})
	}
}

func TestHubDeliversInOrderAndUnsubscribes(t *testing.T) {
	hub := NewHub()
	var got []string
	unsubA := hub.OnChange(func(ev SessionEvent) { got = append(got, "a:"+string(ev.Kind)) })
	hub.OnChange(func(ev SessionEvent) { got = append(got, "b:"+string(ev.Kind)) })

	hub.Publish(SessionEvent{Kind: SignedIn})
	unsubA()
	unsubA()
	hub.Publish(SessionEvent{Kind: SignedOut})

	assert.Equal(t, []string{"a:signed-in", "b:signed-in", "b:signed-out"}, got)
	assert.Equal(t, 1, hub.Len())
}

func TestHubSetsTimestamp(t *testing.T) {
	hub := NewHub()
	var ev SessionEvent
	hub.OnChange(func(e SessionEvent) { ev = e })
	hub.Publish(SessionEvent{Kind: SignedIn, UserID: "u1"})
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, "u1", ev.UserID)
}

func TestSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	p, hub := newTestProvider(t)

	var kinds []EventKind
	hub.OnChange(func(ev SessionEvent) { kinds = append(kinds, ev.Kind) })

	s, err := p.SignUp(ctx, "  Ada@Example.com ", "secret1", " Ada ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.Equal(t, "Ada", s.User.DisplayName)
	assert.NotEqual(t, "secret1", s.User.PasswordHash)

	u, ok := p.CurrentUser(ctx, s.Token)
	require.True(t, ok)
	assert.Equal(t, s.User.ID, u.ID)

	require.NoError(t, p.SignOut(ctx, s.Token))
	_, ok = p.CurrentUser(ctx, s.Token)
	assert.False(t, ok)
	require.NoError(t, p.SignOut(ctx, s.Token))

	s2, err := p.SignIn(ctx, "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, s2.User.ID)
	assert.NotEqual(t, s.Token, s2.Token)

	assert.Equal(t, []EventKind{SignedIn, SignedOut, SignedIn}, kinds)
}

func TestSignUpRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)

	_, err := p.SignUp(ctx, "not-an-email", "secret1", "Ada")
	assert.Equal(t, CodeInvalidEmail, CodeOf(err))

	_, err = p.SignUp(ctx, "ada@example.com", "short", "Ada")
	assert.Equal(t, CodeWeakPassword, CodeOf(err))

	_, err = p.SignUp(ctx, "ada@example.com", "secret1", "  ")
	assert.Equal(t, CodeMissingDisplayName, CodeOf(err))

	_, err = p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	_, err = p.SignUp(ctx, "ADA@example.com", "secret2", "Other")
	assert.Equal(t, CodeEmailInUse, CodeOf(err))
}

func TestSignInFailures(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	_, err = p.SignIn(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, CodeUserNotFound, CodeOf(err))

	_, err = p.SignIn(ctx, "ada@example.com", "wrong-one")
	assert.Equal(t, CodeWrongPassword, CodeOf(err))
}

func TestSignInThrottlesRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = p.SignIn(ctx, "ada@example.com", "wrong-one")
		require.Equal(t, CodeWrongPassword, CodeOf(err))
	}
	_, err = p.SignIn(ctx, "ada@example.com", "secret1")
	assert.Equal(t, CodeTooManyRequests, CodeOf(err))
}

func TestSuccessfulSignInClearsFailures(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _ = p.SignIn(ctx, "ada@example.com", "wrong-one")
	}
	_, err = p.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, _ = p.SignIn(ctx, "ada@example.com", "wrong-one")
	}
	_, err = p.SignIn(ctx, "ada@example.com", "secret1")
	assert.NoError(t, err)
}

func TestUpdateProfileAndEmail(t *testing.T) {
	ctx := context.Background()
	p, hub := newTestProvider(t)
	s, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	_, err = p.SignUp(ctx, "bob@example.com", "secret1", "Bob")
	require.NoError(t, err)

	var kinds []EventKind
	hub.OnChange(func(ev SessionEvent) { kinds = append(kinds, ev.Kind) })

	u, err := p.UpdateProfile(ctx, s.Token, "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.DisplayName)

	_, err = p.UpdateEmail(ctx, s.Token, "bob@example.com")
	assert.Equal(t, CodeEmailInUse, CodeOf(err))

	u, err = p.UpdateEmail(ctx, s.Token, "Lovelace@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "lovelace@example.com", u.Email)

	_, err = p.SignIn(ctx, "lovelace@example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, []EventKind{ProfileUpdated, EmailUpdated, SignedIn}, kinds)
}

func TestUpdatesRequireSession(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)

	_, err := p.UpdateProfile(ctx, "missing", "Ada")
	assert.Equal(t, CodeSessionExpired, CodeOf(err))
	err = p.UpdatePassword(ctx, "", "secret1", "secret1")
	assert.Equal(t, CodeSessionExpired, CodeOf(err))
}

func TestUpdatePasswordRevokesOtherSessions(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	first, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	second, err := p.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	other, err := p.SignUp(ctx, "bob@example.com", "secret1", "Bob")
	require.NoError(t, err)

	err = p.UpdatePassword(ctx, second.Token, "secret2", "secret3")
	assert.Equal(t, CodePasswordsMismatch, CodeOf(err))

	require.NoError(t, p.UpdatePassword(ctx, second.Token, "secret2", "secret2"))

	_, ok := p.CurrentUser(ctx, first.Token)
	assert.False(t, ok, "other session should be revoked")
	_, ok = p.CurrentUser(ctx, second.Token)
	assert.True(t, ok, "session that changed the password stays")
	_, ok = p.CurrentUser(ctx, other.Token)
	assert.True(t, ok, "other users are unaffected")

	_, err = p.SignIn(ctx, "ada@example.com", "secret1")
	assert.Equal(t, CodeWrongPassword, CodeOf(err))
	_, err = p.SignIn(ctx, "ada@example.com", "secret2")
	assert.NoError(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("abc")
	assert.Equal(t, CodeWeakPassword, CodeOf(err))

	h, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("secret1")))
}

func TestResetPasswordWithIssuedToken(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	first, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)
	second, err := p.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	token, err := p.IssueResetToken(ctx, " ADA@example.com ")
	require.NoError(t, err)

	assert.Equal(t, CodePasswordsMismatch, CodeOf(p.ResetPassword(ctx, token, "secret2", "secret3")))
	assert.Equal(t, CodeWeakPassword, CodeOf(p.ResetPassword(ctx, token, "abc", "abc")))
	require.NoError(t, p.ResetPassword(ctx, token, "secret2", "secret2"))

	for _, s := range []Session{first, second} {
		_, ok := p.CurrentUser(ctx, s.Token)
		assert.False(t, ok, "session survived a reset")
	}
	_, err = p.SignIn(ctx, "ada@example.com", "secret1")
	assert.Equal(t, CodeWrongPassword, CodeOf(err))
	_, err = p.SignIn(ctx, "ada@example.com", "secret2")
	assert.NoError(t, err)

	// The new password hash spends the token.
	assert.Equal(t, CodeInvalidResetToken, CodeOf(p.ResetPassword(ctx, token, "secret3", "secret3")))
}

func TestResetTokenRejections(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t)
	_, err := p.SignUp(ctx, "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	_, err = p.IssueResetToken(ctx, "nobody@example.com")
	assert.Equal(t, CodeUserNotFound, CodeOf(err))
	_, err = p.IssueResetToken(ctx, "not-an-email")
	assert.Equal(t, CodeInvalidEmail, CodeOf(err))

	token, err := p.IssueResetToken(ctx, "ada@example.com")
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	for name, bad := range map[string]string{
		"empty":        "",
		"malformed":    "abc",
		"unknown user": "nobody." + parts[1] + "." + parts[2],
		"forged mac":   parts[0] + "." + parts[1] + "." + strings.Repeat("0", len(parts[2])),
		"moved expiry": parts[0] + ".9999999999." + parts[2],
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, CodeInvalidResetToken, CodeOf(p.ResetPassword(ctx, bad, "secret2", "secret2")))
		})
	}

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, CodeInvalidResetToken, CodeOf(p.ResetPassword(ctx, token, "secret2", "secret2")))
	assert.Equal(t, "This reset link is invalid or has expired. Please request a new one.",
		Message(p.ResetPassword(ctx, token, "secret2", "secret2"), false))
}
