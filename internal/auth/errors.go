package auth

import (
	"errors"
	"fmt"
)

// Code identifies an authentication failure.
type Code string

const (
	CodeInvalidEmail       Code = "auth/invalid-email"
	CodeUserNotFound       Code = "auth/user-not-found"
	CodeWrongPassword      Code = "auth/wrong-password"
	CodeTooManyRequests    Code = "auth/too-many-requests"
	CodeEmailInUse         Code = "auth/email-already-in-use"
	CodeWeakPassword       Code = "auth/weak-password"
	CodePasswordsMismatch  Code = "auth/passwords-mismatch"
	CodeSessionExpired     Code = "auth/session-expired"
	CodeMissingDisplayName Code = "auth/missing-display-name"
	CodeInvalidResetToken  Code = "auth/invalid-action-code"
)

// Error is a classified authentication failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf returns err's code, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

const unexpected = "An unexpected error occurred. Please try again later."

// Message turns err into text for the person at the keyboard. Unclassified
// errors show their raw text only when dev is set.
func Message(err error, dev bool) string {
	if err == nil {
		return ""
	}
	switch CodeOf(err) {
	case CodeInvalidEmail:
		return "Invalid email format. Please check your email address."
	case CodeUserNotFound, CodeWrongPassword:
		return "Invalid email or password. Please try again."
	case CodeTooManyRequests:
		return "Too many failed login attempts. Please try again later."
	case CodeEmailInUse:
		return "This email is already registered. Please use a different email or try logging in."
	case CodeWeakPassword:
		return "Password is too weak. Please use a stronger password."
	case CodePasswordsMismatch:
		return "Passwords do not match"
	case CodeSessionExpired:
		return "Your session has expired. Please sign in again."
	case CodeMissingDisplayName:
		return "Please enter your name."
	case CodeInvalidResetToken:
		return "This reset link is invalid or has expired. Please request a new one."
	}
	if dev {
		return "Error: " + err.Error()
	}
	return unexpected
}
