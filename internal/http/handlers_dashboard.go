package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"ledger/internal/log"
)

// partialTimeout keeps a slow store from hanging a partial.
const partialTimeout = 7 * time.Second

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	u, _ := currentUser(r.Context())
	s.render(w, r, http.StatusOK, "dashboard.html", page{Title: "Dashboard", User: &u})
}

// handleSummaryPartial renders the dashboard figures. A render superseded
// by a newer one for the same session is dropped.
func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	u, _ := currentUser(r.Context())
	ticket := s.guard.Begin(r.Context(), viewKey(r.Context(), "summary"))
	defer ticket.Done()

	ctx, cancel := context.WithTimeout(r.Context(), partialTimeout)
	defer cancel()
	sum, err := s.summaries.Summarize(ctx, u.ID)

	if !ticket.Current() {
		s.dropStale(w, r, "summary")
		return
	}
	if err != nil {
		s.writeLedgerError(w, r, err, log.OpSummarize)
		return
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Summary computed",
		log.FieldUserID, u.ID,
		log.FieldCount, sum.Count,
		log.FieldOperation, log.OpSummarize)
	s.render(w, r, http.StatusOK, "summary.html", sum)
}

// viewKey scopes a view to the session rendering it.
func viewKey(ctx context.Context, view string) string {
	return sessionToken(ctx) + ":" + view
}

func (s *Server) dropStale(w http.ResponseWriter, r *http.Request, view string) {
	atomic.AddInt64(&s.appMetrics.staleDropped, 1)
	log.FromContext(r.Context()).DebugContext(r.Context(), "Dropping superseded view", log.FieldView, view)
	writeStale(w)
}
