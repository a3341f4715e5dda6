package http

import (
	"net/http"
	"net/url"

	"ledger/internal/auth"
	"ledger/internal/log"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.CurrentUser(r.Context(), readToken(r)); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGetOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if r.Method == http.MethodGet {
		if _, ok := s.auth.CurrentUser(r.Context(), readToken(r)); ok {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		p := page{Title: "Sign in"}
		if r.URL.Query().Get("reset") == "1" {
			p.Notice = "Password updated. Please sign in with your new password."
		}
		s.render(w, r, http.StatusOK, "login.html", p)
		return
	}
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}

	email := sanitizeInput(r.PostForm.Get("email"))
	sess, err := s.auth.SignIn(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		s.authFailed(w, r, err, log.OpSignIn, "login.html", "Sign in")
		return
	}
	s.setSessionCookie(w, sess)
	redirect(w, r, "/dashboard")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGetOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "register.html", page{Title: "Create account"})
		return
	}
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}

	form := r.PostForm
	if form.Get("password") != form.Get("confirm") {
		s.authFailed(w, r, &auth.Error{Code: auth.CodePasswordsMismatch, Message: "passwords do not match"},
			log.OpSignUp, "register.html", "Create account")
		return
	}
	sess, err := s.auth.SignUp(r.Context(),
		sanitizeInput(form.Get("email")),
		form.Get("password"),
		sanitizeInput(form.Get("name")))
	if err != nil {
		s.authFailed(w, r, err, log.OpSignUp, "register.html", "Create account")
		return
	}
	s.setSessionCookie(w, sess)
	redirect(w, r, "/dashboard")
}

const resetSent = "If that email is registered, a reset link is on its way."

// handleForgotPassword issues a reset link. The answer is the same whether or
// not the email is registered.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGetOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "forgot_password.html", page{Title: "Reset password"})
		return
	}
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}

	ctx := r.Context()
	token, err := s.auth.IssueResetToken(ctx, sanitizeInput(r.PostForm.Get("email")))
	switch {
	case err == nil:
		logger := log.FromContext(ctx)
		// No mailer: the link goes to the log in development only.
		if s.development {
			logger.InfoContext(ctx, "Password reset link", "reset_url", resetURL(r, token))
		} else {
			logger.InfoContext(ctx, "Password reset requested", log.FieldOperation, log.OpResetPassword)
		}
	case auth.CodeOf(err) == auth.CodeUserNotFound:
	default:
		s.authFailed(w, r, err, log.OpResetPassword, "forgot_password.html", "Reset password")
		return
	}
	s.render(w, r, http.StatusOK, "forgot_password.html", page{Title: "Reset password", Notice: resetSent})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGetOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if r.Method == http.MethodGet {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Redirect(w, r, "/forgot-password", http.StatusSeeOther)
			return
		}
		s.render(w, r, http.StatusOK, "reset_password.html", page{
			Title: "Choose a new password",
			Form:  url.Values{"token": {token}},
		})
		return
	}
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}

	form := r.PostForm
	if err := s.auth.ResetPassword(r.Context(), form.Get("token"), form.Get("password"), form.Get("confirm")); err != nil {
		s.authFailed(w, r, err, log.OpResetPassword, "reset_password.html", "Choose a new password")
		return
	}
	s.clearSessionCookie(w)
	redirect(w, r, "/login?reset=1")
}

// resetURL builds the absolute link a user follows to redeem token.
func resetURL(r *http.Request, token string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/reset-password?token=" + url.QueryEscape(token)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if err := s.auth.SignOut(r.Context(), readToken(r)); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Sign out failed",
			log.FieldError, err,
			log.FieldOperation, log.OpSignOut)
	}
	s.clearSessionCookie(w)
	redirect(w, r, "/login")
}

// authFailed re-renders an auth form with the user-facing message for err.
// The password fields are never echoed back.
func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, err error, op, tmpl, title string) {
	status := authStatus(err)
	logger := log.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Authentication failed", log.FieldError, err, log.FieldOperation, op)
	} else {
		logger.InfoContext(r.Context(), "Authentication rejected",
			"code", string(auth.CodeOf(err)),
			log.FieldOperation, op,
			log.FieldErrorType, log.ErrorTypeAuth)
	}

	msg := auth.Message(err, s.development)
	if isHTMX(r) {
		ErrorResponse(status, msg).Write(w)
		return
	}
	form := r.PostForm
	if form != nil {
		form = cloneWithout(form, "password", "confirm")
	}
	s.render(w, r, status, tmpl, page{Title: title, Error: msg, Form: form})
}
