package http

import (
	"context"
	"net/http"
	"time"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

// withSession stores the signed-in user and their token on ctx.
func withSession(ctx context.Context, u core.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, tokenKey, token)
}

// currentUser returns the user set by requireUser.
func currentUser(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userKey).(core.User)
	return u, ok
}

func sessionToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

func readToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// isHTMX reports whether r was issued by htmx rather than a full navigation.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// requireUser rejects requests without a live session: pages are sent to
// /login, htmx requests get 401 plus a client-side redirect.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := readToken(r)
		u, ok := s.auth.CurrentUser(r.Context(), token)
		if !ok {
			if token != "" {
				s.clearSessionCookie(w)
				log.FromContext(r.Context()).InfoContext(r.Context(), "Session rejected",
					log.FieldPath, r.URL.Path,
					log.FieldErrorType, log.ErrorTypeAuth)
			}
			if isHTMX(r) {
				NewHTMXResponse().
					Status(http.StatusUnauthorized).
					Header("HX-Redirect", "/login").
					Write(w)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(withSession(r.Context(), u, token)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirect navigates the browser to target after a successful post, for
// both htmx and plain form submissions.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", target).Write(w)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
