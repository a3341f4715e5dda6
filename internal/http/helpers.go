package http

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"

	"ledger/internal/core"
	"ledger/internal/log"
)

// page is the data every full-page template receives.
type page struct {
	Title  string
	User   *core.User
	Error  string
	Notice string
	// Form echoes submitted values back after a failed post.
	Form url.Values
	Data any
}

func userPtr(u core.User) *core.User {
	if u.ID == "" {
		return nil
	}
	return &u
}

// render executes name into a buffer first so a template failure never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		InternalServerError("templates not loaded").Write(w)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name,
			log.FieldOperation, log.OpRender)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// writeStale answers a superseded partial request without touching the page.
func writeStale(w http.ResponseWriter) {
	NewHTMXResponse().
		Status(http.StatusNoContent).
		Header("HX-Reswap", "none").
		Write(w)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"usd":       core.FormatUSD,
		"ago":       humanize.Time,
		"longDate":  longDate,
		"trend":     formatTrend,
		"trendDir":  trendDirection,
		"typeLabel": typeLabel,
		"percentOf": percentOf,
	}
}

// longDate renders d like "Mar 5, 2025".
func longDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("Jan 2, 2006")
}

// formatTrend renders a month-over-month change with an explicit sign.
func formatTrend(pct int64) string {
	if pct > 0 {
		return fmt.Sprintf("+%d%%", pct)
	}
	return fmt.Sprintf("%d%%", pct)
}

func trendDirection(pct int64) string {
	switch {
	case pct > 0:
		return "up"
	case pct < 0:
		return "down"
	default:
		return "flat"
	}
}

func typeLabel(t core.ExpenseType) string {
	switch t {
	case core.Personal:
		return "Personal"
	case core.Group:
		return "Group"
	default:
		return string(t)
	}
}

// percentOf returns part as a whole percentage of total, at least 2 when
// part is positive so small bars stay visible.
func percentOf(part, total core.Money) int {
	if total.Cents <= 0 || part.Cents <= 0 {
		return 0
	}
	width := int((part.Cents*100 + total.Cents/2) / total.Cents)
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}

// today returns the current calendar day in the server's location.
func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// cloneWithout copies v minus the given keys.
func cloneWithout(v url.Values, keys ...string) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
