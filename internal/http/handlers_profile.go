package http

import (
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

// handleProfile shows the profile page and applies one of its three forms,
// selected by the action field.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGetOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	u, _ := currentUser(r.Context())
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "profile.html", page{Title: "Profile", User: &u})
		return
	}
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}

	ctx := r.Context()
	token := sessionToken(ctx)
	form := r.PostForm
	action := form.Get("action")

	var (
		err    error
		notice string
	)
	switch action {
	case "profile":
		var updated core.User
		if updated, err = s.auth.UpdateProfile(ctx, token, sanitizeInput(form.Get("name"))); err == nil {
			u = updated
			notice = "Profile updated."
		}
	case "email":
		var updated core.User
		if updated, err = s.auth.UpdateEmail(ctx, token, sanitizeInput(form.Get("email"))); err == nil {
			u = updated
			notice = "Email updated."
		}
	case "password":
		if err = s.auth.UpdatePassword(ctx, token, form.Get("password"), form.Get("confirm")); err == nil {
			notice = "Password changed. Other sessions have been signed out."
		}
	default:
		BadRequestError("Unknown profile action").Write(w)
		return
	}

	if err != nil {
		if auth.CodeOf(err) == auth.CodeSessionExpired {
			s.clearSessionCookie(w)
			redirect(w, r, "/login")
			return
		}
		status := authStatus(err)
		if status == http.StatusInternalServerError {
			log.FromContext(ctx).ErrorContext(ctx, "Profile update failed",
				log.FieldError, err,
				log.FieldUserID, u.ID,
				log.FieldAction, action)
		}
		s.render(w, r, status, "profile.html", page{
			Title: "Profile",
			User:  &u,
			Error: auth.Message(err, s.development),
			Form:  cloneWithout(form, "password", "confirm"),
		})
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Profile updated",
		log.FieldUserID, u.ID,
		log.FieldAction, action,
		log.FieldOperation, log.OpUpdate)
	s.render(w, r, http.StatusOK, "profile.html", page{Title: "Profile", User: &u, Notice: notice})
}
