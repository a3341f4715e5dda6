// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// It reduces code duplication by providing reusable functions for common
// form parsing, filter extraction, and input sanitization patterns.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// maxBodyBytes bounds request bodies read by RequestBodyParser.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing. Bodies over
// maxBodyBytes fail Parse with *http.MaxBytesError.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// Has reports whether key was submitted at all, even empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		return p.formData.Has(key)
	}
	return false
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// fieldSource is anything expense fields can be read from.
type fieldSource interface {
	Get(key string) string
	Has(key string) bool
}

// ParseListQuery reads the type, category and date filters of a listing.
func ParseListQuery(query url.Values) (ledger.Query, error) {
	typ, err := core.ParseTypeFilter(query.Get("type"))
	if err != nil {
		return ledger.Query{}, err
	}
	q := ledger.Query{
		Type:     typ,
		Category: sanitizeInput(query.Get("category")),
	}
	if v := strings.TrimSpace(query.Get("date")); v != "" {
		day, err := core.ParseDate(v)
		if err != nil {
			return ledger.Query{}, err
		}
		q.Date = day
	}
	return q, nil
}

// ParseExpenseFields reads a create form. A missing date means today and a
// missing type means personal; everything else is checked by the store.
func ParseExpenseFields(src fieldSource, today core.Date) (core.ExpenseFields, error) {
	amount, err := core.ParseAmount(src.Get("amount"))
	if err != nil {
		return core.ExpenseFields{}, err
	}
	day := today
	if v := src.Get("date"); v != "" {
		if day, err = core.ParseDate(v); err != nil {
			return core.ExpenseFields{}, err
		}
	}
	typ := core.ExpenseType(strings.ToLower(src.Get("type")))
	if typ == "" {
		typ = core.Personal
	}
	return core.ExpenseFields{
		Title:       src.Get("title"),
		Amount:      amount,
		Category:    src.Get("category"),
		Date:        day,
		Description: src.Get("description"),
		Type:        typ,
	}, nil
}

// ParseExpensePatch reads an edit form. Only submitted fields are changed.
func ParseExpensePatch(src fieldSource) (core.ExpensePatch, error) {
	var p core.ExpensePatch
	if src.Has("title") {
		v := src.Get("title")
		p.Title = &v
	}
	if src.Has("amount") {
		m, err := core.ParseAmount(src.Get("amount"))
		if err != nil {
			return core.ExpensePatch{}, err
		}
		p.Amount = &m
	}
	if src.Has("category") {
		v := src.Get("category")
		p.Category = &v
	}
	if src.Has("date") {
		d, err := core.ParseDate(src.Get("date"))
		if err != nil {
			return core.ExpensePatch{}, err
		}
		p.Date = &d
	}
	if src.Has("description") {
		v := src.Get("description")
		p.Description = &v
	}
	if src.Has("type") {
		v := core.ExpenseType(strings.ToLower(src.Get("type")))
		p.Type = &v
	}
	return p, nil
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGetOrPOST is a convenience function for form pages.
func RequireGetOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(w http.ResponseWriter, r *http.Request) *HTMXResponseBuilder {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}
	if err := r.ParseForm(); err != nil {
		return BodyError(err)
	}
	return nil
}

// BodyError is the response for a body that could not be read or parsed.
func BodyError(err error) *HTMXResponseBuilder {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrorResponse(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	return BadRequestError("Invalid request format")
}
