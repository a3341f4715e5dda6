package http

import (
	"context"
	"net/http"
	"sync/atomic"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

// expensesPage is the data of the list page and its create form.
type expensesPage struct {
	Categories []string
	Today      string
	Filter     ledger.Query
}

// expenseList is the data of the list partial.
type expenseList struct {
	Items  []core.Expense
	Filter ledger.Query
	Total  core.Money
}

type expenseDetail struct {
	Expense    core.Expense
	Categories []string
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleExpensesPage(w, r)
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

func (s *Server) handleExpensesPage(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		q = ledger.Query{Type: core.AllTypes}
	}
	s.render(w, r, http.StatusOK, "expenses.html", page{
		Title: "Expenses",
		User:  &u,
		Data: expensesPage{
			Categories: core.Categories,
			Today:      s.today().String(),
			Filter:     q,
		},
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, _ := currentUser(ctx)

	body := NewRequestBodyParser(w, r)
	if err := body.Parse(); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Parse body error", log.FieldError, err, log.FieldOperation, log.OpParse)
		BodyError(err).Write(w)
		return
	}
	fields, err := ParseExpenseFields(body, s.today())
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpValidate)
		return
	}
	id, err := s.ledger.Create(ctx, u.ID, fields)
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.expensesCreated, 1)

	if !isHTMX(r) {
		http.Redirect(w, r, "/expenses", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerExpenseCreated(id).
		TriggerFormReset().
		TriggerListRefresh().
		TriggerSummaryRefresh().
		TriggerSuccessNotification("Expense added: " + fields.Title + " " + core.FormatUSD(fields.Amount)).
		Write(w)
}

// handleExpenseListPartial renders the filtered list. A render superseded
// by a newer one for the same session is dropped.
func (s *Server) handleExpenseListPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	u, _ := currentUser(r.Context())
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpParse)
		return
	}

	ticket := s.guard.Begin(r.Context(), viewKey(r.Context(), "expenses"))
	defer ticket.Done()

	ctx, cancel := context.WithTimeout(r.Context(), partialTimeout)
	defer cancel()
	items, err := s.ledger.List(ctx, u.ID, q)

	if !ticket.Current() {
		s.dropStale(w, r, "expenses")
		return
	}
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpList)
		return
	}

	var total core.Money
	for _, e := range items {
		total = total.Add(e.Amount)
	}
	s.render(w, r, http.StatusOK, "expense_list.html", expenseList{Items: items, Filter: q, Total: total})
}

// handleExpense serves one record: GET shows it with its edit form, POST
// updates it (or deletes it when action=delete), DELETE removes it.
func (s *Server) handleExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		s.handleExpenseDetail(w, r, id)
	case http.MethodPost:
		s.handleUpdateExpense(w, r, id)
	case http.MethodDelete:
		s.handleDeleteExpense(w, r, id)
	default:
		MethodNotAllowedError("GET, POST, DELETE").Write(w)
	}
}

func (s *Server) handleExpenseDetail(w http.ResponseWriter, r *http.Request, id string) {
	u, _ := currentUser(r.Context())
	e, err := s.ledger.Get(r.Context(), u.ID, id)
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpRead)
		return
	}
	s.render(w, r, http.StatusOK, "expense.html", page{
		Title: e.Title,
		User:  &u,
		Data:  expenseDetail{Expense: e, Categories: categoryChoices(e.Category)},
	})
}

// categoryChoices returns the form's category options, keeping current
// selectable when it was stored outside the fixed set.
func categoryChoices(current string) []string {
	if current == "" || core.IsKnownCategory(current) {
		return core.Categories
	}
	return append([]string{current}, core.Categories...)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	u, _ := currentUser(ctx)

	body := NewRequestBodyParser(w, r)
	if err := body.Parse(); err != nil {
		BodyError(err).Write(w)
		return
	}
	if body.Get("action") == "delete" {
		s.deleteExpense(w, r, u.ID, id)
		return
	}

	patch, err := ParseExpensePatch(body)
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpValidate)
		return
	}
	if err := s.ledger.Update(ctx, u.ID, id, patch); err != nil {
		s.writeLedgerError(w, r, err, log.OpUpdate)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/expenses/"+id, http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerExpenseUpdated(id).
		TriggerSummaryRefresh().
		TriggerSuccessNotification("Expense updated").
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, id string) {
	u, _ := currentUser(r.Context())
	s.deleteExpense(w, r, u.ID, id)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request, owner, id string) {
	if err := s.ledger.Delete(r.Context(), owner, id); err != nil {
		s.writeLedgerError(w, r, err, log.OpDelete)
		return
	}
	atomic.AddInt64(&s.appMetrics.expensesDeleted, 1)

	if !isHTMX(r) {
		http.Redirect(w, r, "/expenses", http.StatusSeeOther)
		return
	}
	resp := NewHTMXResponse()
	// A delete from a list row swaps the row out; elsewhere go back to the list.
	if r.Header.Get("HX-Target") == "expense-"+id {
		resp.BodyHTML("")
	} else {
		resp.Header("HX-Redirect", "/expenses")
	}
	resp.TriggerExpenseDeleted(id).
		TriggerListRefresh().
		TriggerSummaryRefresh().
		Write(w)
}
