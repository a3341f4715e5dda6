package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"ledger/internal/core"
)

func TestParseListQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		wantType core.TypeFilter
		wantCat  string
		wantDate string
		wantErr  bool
	}{
		{
			name:     "empty query lists everything",
			query:    url.Values{},
			wantType: core.AllTypes,
		},
		{
			name:     "all filters",
			query:    url.Values{"type": {"Group"}, "category": {" food "}, "date": {"2025-03-05"}},
			wantType: core.GroupOnly,
			wantCat:  "food",
			wantDate: "2025-03-05",
		},
		{
			name:    "unknown type",
			query:   url.Values{"type": {"shared"}},
			wantErr: true,
		},
		{
			name:    "bad date",
			query:   url.Values{"date": {"05/03/2025"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseListQuery(tt.query)
			if tt.wantErr {
				if !core.IsValidation(err) {
					t.Fatalf("error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseListQuery() error = %v", err)
			}
			if q.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", q.Type, tt.wantType)
			}
			if q.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", q.Category, tt.wantCat)
			}
			if q.Date.String() != tt.wantDate {
				t.Errorf("Date = %q, want %q", q.Date.String(), tt.wantDate)
			}
		})
	}
}

func formParser(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p
}

func TestParseExpenseFields(t *testing.T) {
	today := core.NewDate(2025, 3, 5)

	f, err := ParseExpenseFields(formParser(t, "title=Lunch&amount=12,50&category=Food+%26+Dining"), today)
	if err != nil {
		t.Fatalf("ParseExpenseFields() error = %v", err)
	}
	if f.Amount.Cents != 1250 {
		t.Errorf("Amount = %d, want 1250", f.Amount.Cents)
	}
	if !f.Date.SameDay(today) {
		t.Errorf("Date = %s, want today", f.Date)
	}
	if f.Type != core.Personal {
		t.Errorf("Type = %q, want personal by default", f.Type)
	}
	if f.Category != "Food & Dining" {
		t.Errorf("Category = %q", f.Category)
	}

	f, err = ParseExpenseFields(formParser(t, "title=Trip&amount=300&category=Travel&date=2025-02-01&type=GROUP"), today)
	if err != nil {
		t.Fatalf("ParseExpenseFields() error = %v", err)
	}
	if f.Type != core.Group || f.Date.String() != "2025-02-01" {
		t.Errorf("fields = %+v", f)
	}

	for _, body := range []string{
		"title=x&amount=abc",
		"title=x&amount=-5",
		"title=x&amount=5&date=tomorrow",
	} {
		if _, err := ParseExpenseFields(formParser(t, body), today); !core.IsValidation(err) {
			t.Errorf("%q: error = %v, want validation error", body, err)
		}
	}
}

func TestParseExpensePatch(t *testing.T) {
	p, err := ParseExpensePatch(formParser(t, "amount=7.25&description="))
	if err != nil {
		t.Fatalf("ParseExpensePatch() error = %v", err)
	}
	if p.Title != nil || p.Category != nil || p.Date != nil || p.Type != nil {
		t.Errorf("unsubmitted fields set: %+v", p)
	}
	if p.Amount == nil || p.Amount.Cents != 725 {
		t.Errorf("Amount = %v, want 725 cents", p.Amount)
	}
	if p.Description == nil || *p.Description != "" {
		t.Errorf("Description = %v, want cleared", p.Description)
	}

	empty, err := ParseExpensePatch(formParser(t, ""))
	if err != nil || !empty.IsEmpty() {
		t.Errorf("empty body: patch=%+v err=%v", empty, err)
	}

	if _, err := ParseExpensePatch(formParser(t, "amount=0")); !core.IsValidation(err) {
		t.Errorf("zero amount: error = %v, want validation error", err)
	}
}

func TestRequestBodyParser_Has(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"title": "Bus", "amount": 2.5}`))
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !p.Has("title") || p.Has("category") {
		t.Error("Has() does not reflect submitted JSON keys")
	}
	if v := p.Get("amount"); v != "2.5" {
		t.Errorf("Get(amount) = %q, want 2.5", v)
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if id := parser.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if id := parser.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"DELETE allowed with multiple", http.MethodDelete, []string{http.MethodDelete, http.MethodPost}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequirePOST(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/test", nil)
	if result := RequirePOST(postReq); result != nil {
		t.Error("RequirePOST should allow POST requests")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/test", nil)
	if result := RequirePOST(getReq); result == nil {
		t.Error("RequirePOST should reject GET requests")
	}
}

func TestRequireGetOrPOST(t *testing.T) {
	tests := []struct {
		method  string
		wantErr bool
	}{
		{http.MethodPost, false},
		{http.MethodGet, false},
		{http.MethodDelete, true},
		{http.MethodPut, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireGetOrPOST(req)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestParseFormOrFail(t *testing.T) {
	// Valid form request
	body := "field=value"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result := ParseFormOrFail(httptest.NewRecorder(), req)
	if result != nil {
		t.Error("Expected nil for valid form, got error response")
	}

	// Verify form was parsed
	if req.Form.Get("field") != "value" {
		t.Error("Form was not parsed correctly")
	}

	big := "field=" + strings.Repeat("x", maxBodyBytes)
	req = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	result = ParseFormOrFail(httptest.NewRecorder(), req)
	if result == nil {
		t.Fatal("Expected error response for oversized form")
	}
	w := httptest.NewRecorder()
	result.Write(w)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized form status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestRequestBodyParser_RejectsOversizedBody(t *testing.T) {
	body := "title=" + strings.Repeat("a", maxBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	err := parser.Parse()
	if err == nil {
		t.Fatal("Parse() accepted a body over the limit")
	}
	w := httptest.NewRecorder()
	BodyError(err).Write(w)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}

	w = httptest.NewRecorder()
	BodyError(errors.New("bad json")).Write(w)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
