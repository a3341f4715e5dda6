// Package memory is an in-process Exporter for development and tests.
package memory

import (
	"context"
	"sync"

	"ledger/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.AuditRow
	err  error
}

var (
	_ sheets.Exporter  = (*Store)(nil)
	_ sheets.RowReader = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// FailWith makes every later AppendRows return err until called with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) AppendRows(_ context.Context, rows []sheets.AuditRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.rows = append(s.rows, rows...)
	return len(rows), nil
}

func (s *Store) ListRows(_ context.Context, year int) ([]sheets.AuditRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.AuditRow
	for _, r := range s.rows {
		if r.Timestamp.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []sheets.AuditRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.AuditRow(nil), s.rows...)
}
