package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/log"
	ports "ledger/internal/sheets"
)

// Options selects the spreadsheet and the service account used to write it.
type Options struct {
	SpreadsheetID string
	// SheetName is the tab base name; each calendar year gets "<year> <name>".
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu sync.Mutex
	// known caches tab titles already present in the spreadsheet.
	known map[string]bool
}

// Ensure interface conformance
var (
	_ ports.Exporter  = (*Client)(nil)
	_ ports.RowReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetName, logger), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Ledger"
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetName),
		logger:        logger.WithComponent(log.ComponentSheets),
		known:         make(map[string]bool),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Inline JSON wins over a file; GOOGLE_APPLICATION_CREDENTIALS is the last resort.
func newSheetsService(ctx context.Context, opts Options, logger *log.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(opts.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(opts.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	if logger != nil {
		logger.DebugContext(ctx, "Creating Google Sheets service",
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsScope)
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendRows writes rows to the tab of their timestamp's year, creating the
// tab with a header row the first time a year is seen.
func (c *Client) AppendRows(ctx context.Context, rows []ports.AuditRow) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	written := 0
	for _, group := range groupByYear(rows) {
		tab := yearPrefixedName(c.sheetBase, group.year)
		if err := c.ensureTab(ctx, tab); err != nil {
			return written, err
		}

		values := make([][]any, 0, len(group.rows))
		for _, r := range group.rows {
			values = append(values, rowValues(r))
		}
		rng := fmt.Sprintf("%s!A:I", quoteTab(tab))
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return written, fmt.Errorf("append to %s: %w", tab, err)
		}
		written += len(group.rows)

		updated := ""
		if resp.Updates != nil {
			updated = resp.Updates.UpdatedRange
		}
		c.logger.DebugContext(ctx, "Rows appended", "sheet", tab, "range", updated, log.FieldCount, len(group.rows))
	}
	return written, nil
}

// ListRows reads the tab for year. A missing tab yields no rows.
func (c *Client) ListRows(ctx context.Context, year int) ([]ports.AuditRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	tab := yearPrefixedName(c.sheetBase, year)
	exists, err := c.hasTab(ctx, tab)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	rng := fmt.Sprintf("%s!A:I", quoteTab(tab))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseAuditRows(resp.Values), nil
}

func (c *Client) hasTab(ctx context.Context, tab string) (bool, error) {
	c.mu.Lock()
	if c.known[tab] {
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	return c.known[tab], nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	exists, err := c.hasTab(ctx, tab)
	if err != nil || exists {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}

	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	rng := fmt.Sprintf("%s!A1:I1", quoteTab(tab))
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header to %s: %w", tab, err)
	}

	c.mu.Lock()
	c.known[tab] = true
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Created export sheet", "sheet", tab)
	return nil
}

type yearGroup struct {
	year int
	rows []ports.AuditRow
}

// groupByYear splits rows by timestamp year, keeping first-seen order.
func groupByYear(rows []ports.AuditRow) []yearGroup {
	var groups []yearGroup
	index := map[int]int{}
	for _, r := range rows {
		y := r.Timestamp.UTC().Year()
		i, ok := index[y]
		if !ok {
			i = len(groups)
			index[y] = i
			groups = append(groups, yearGroup{year: y})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	return groups
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteTab wraps a tab title for A1 notation.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func timestampString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
