package http

import (
	"errors"
	"net/http"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

const (
	msgNotFound   = "Expense not found"
	msgPermission = "You don't have permission to view this expense"
	msgInternal   = "Something went wrong. Please try again later."
)

// statusFor maps a ledger error to its response status and the text shown
// to the user. Only validation errors echo their detail.
func statusFor(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ve.Error()
	case core.IsNotFound(err):
		return http.StatusNotFound, msgNotFound
	case core.IsPermission(err):
		return http.StatusForbidden, msgPermission
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusForbidden:
		return log.ErrorTypePermission
	default:
		return log.ErrorTypeDatabase
	}
}

// writeLedgerError reports err from a ledger or summary call. htmx requests
// get an inline error fragment; navigations get the error page.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status, msg := statusFor(err)
	logger := log.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Ledger operation failed",
			log.FieldError, err,
			log.FieldOperation, operation,
			log.FieldErrorType, errorType(status),
			log.FieldPath, r.URL.Path)
	} else {
		logger.InfoContext(r.Context(), "Ledger request rejected",
			log.FieldError, err,
			log.FieldOperation, operation,
			log.FieldErrorType, errorType(status),
			log.FieldStatusCode, status)
	}
	s.writeError(w, r, status, msg)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if isHTMX(r) || s.templates == nil {
		errorFragment(status, msg).Write(w)
		return
	}
	u, _ := currentUser(r.Context())
	s.render(w, r, status, "error.html", page{Title: http.StatusText(status), User: userPtr(u), Error: msg})
}

// errorFragment builds the inline error for status. Server errors also raise
// a toast, since the fragment may land in a hidden target.
func errorFragment(status int, msg string) *HTMXResponseBuilder {
	switch status {
	case http.StatusUnprocessableEntity:
		return UnprocessableEntityError(msg)
	case http.StatusNotFound:
		return NotFoundError(msg)
	case http.StatusForbidden:
		return ForbiddenError(msg)
	case http.StatusInternalServerError:
		return InternalServerError(msg).TriggerErrorNotification(msg)
	default:
		return ErrorResponse(status, msg)
	}
}

// authStatus picks the status for a failed sign-in, sign-up or profile
// change.
func authStatus(err error) int {
	switch auth.CodeOf(err) {
	case auth.CodeUserNotFound, auth.CodeWrongPassword, auth.CodeSessionExpired:
		return http.StatusUnauthorized
	case auth.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case auth.CodeEmailInUse:
		return http.StatusConflict
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
