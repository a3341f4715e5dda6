package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"ledger/internal/core"
	"ledger/internal/log"
)

// A reset token is "<user id>.<unix expiry>.<mac>". The MAC is keyed by the
// user's current password hash, so any password change spends every
// outstanding token and no server-side state is needed.

func resetMAC(u core.User, expires int64) string {
	m := hmac.New(sha256.New, []byte(u.PasswordHash))
	fmt.Fprintf(m, "%s.%d", u.ID, expires)
	return hex.EncodeToString(m.Sum(nil))
}

// IssueResetToken returns a reset token for the account registered under
// email. Callers that show the outcome to anonymous visitors should not
// reveal whether the email was known.
func (p *LocalProvider) IssueResetToken(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if !core.ValidEmail(email) {
		return "", newError(CodeInvalidEmail, "email address is badly formatted")
	}
	u, err := p.users.GetUserByEmail(ctx, email)
	if core.IsNotFound(err) {
		return "", newError(CodeUserNotFound, "no user with this email")
	}
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	expires := p.now().Add(p.cfg.ResetTTL).Unix()
	p.logger.InfoContext(ctx, "Password reset issued", log.FieldUserID, u.ID, log.FieldOperation, log.OpResetPassword)
	return fmt.Sprintf("%s.%d.%s", u.ID, expires, resetMAC(u, expires)), nil
}

// ResetPassword sets a new password for the holder of token and ends every
// session of that user.
func (p *LocalProvider) ResetPassword(ctx context.Context, token, password, confirm string) error {
	invalid := newError(CodeInvalidResetToken, "reset token is invalid or expired")
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return invalid
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || p.now().Unix() > expires {
		return invalid
	}
	u, err := p.users.GetUser(ctx, parts[0])
	if core.IsNotFound(err) {
		return invalid
	}
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if !hmac.Equal([]byte(parts[2]), []byte(resetMAC(u, expires))) {
		return invalid
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
		return fmt.Errorf("reset password: %w", err)
	}
	p.failures.Reset(u.Email)
	p.logger.InfoContext(ctx, "Password reset", log.FieldUserID, u.ID, log.FieldOperation, log.OpResetPassword)
	// No originating session, so all of them go.
	p.hub.Publish(SessionEvent{Kind: PasswordUpdated, UserID: u.ID})
	return nil
}
