package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	ports "github.com/WouterMerckaert-dev/BudgetPal/internal/sheets"
)

// Options configures the Sheets exporter.
type Options struct {
	SpreadsheetID string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
	// SheetPrefix is prepended to the family id to name each ledger tab.
	SheetPrefix string
}

// Exporter writes one ledger tab per family.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ ports.LedgerExporter = (*Exporter)(nil)

func New(ctx context.Context, opts Options) (*Exporter, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newExporter(svc, opts), nil
}

func newExporter(svc *gsheet.Service, opts Options) *Exporter {
	prefix := strings.TrimSpace(opts.SheetPrefix)
	if prefix == "" {
		prefix = "Ledger"
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		prefix:        prefix,
		sheetIDs:      make(map[string]int64),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when neither source is given.
func newSheetsService(ctx context.Context, credentialsJSON, credentialsFile string) (*gsheet.Service, error) {
	credentialsJSON = strings.TrimSpace(credentialsJSON)
	credentialsFile = strings.TrimSpace(credentialsFile)
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	switch {
	case credentialsJSON != "":
		raw = []byte(credentialsJSON)
	case credentialsFile != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(raw))
	return service, nil
}

// ExportFamily rewrites the family's tab with its current ledger.
func (e *Exporter) ExportFamily(ctx context.Context, f core.Family) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := sheetTitle(e.prefix, f.ID)
	if _, err := e.ensureSheet(ctx, title); err != nil {
		return err
	}

	all := quoteRange(title, "A:F")
	_, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, all, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", all, err)
	}

	rows := ledgerRows(f)
	rng := quoteRange(title, fmt.Sprintf("A1:F%d", len(rows)))
	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Ledger exported",
		"family_id", f.ID, "sheet", title, "expenses", len(f.Expenses))
	return nil
}

// RemoveFamily deletes the family's tab. A missing tab is not an error.
func (e *Exporter) RemoveFamily(ctx context.Context, familyID string) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := sheetTitle(e.prefix, familyID)
	id, ok, err := e.lookupSheet(ctx, title)
	if err != nil || !ok {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: id, ForceSendFields: []string{"SheetId"}},
	}}}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete sheet %s: %w", title, err)
	}

	e.mu.Lock()
	delete(e.sheetIDs, title)
	e.mu.Unlock()
	slog.InfoContext(ctx, "Ledger removed", "family_id", familyID, "sheet", title)
	return nil
}

func (e *Exporter) ensureSheet(ctx context.Context, title string) (int64, error) {
	id, ok, err := e.lookupSheet(ctx, title)
	if err != nil || ok {
		return id, err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", title)
	}
	id = resp.Replies[0].AddSheet.Properties.SheetId

	e.mu.Lock()
	e.sheetIDs[title] = id
	e.mu.Unlock()
	return id, nil
}

// lookupSheet resolves a tab title, refreshing the id cache on a miss.
func (e *Exporter) lookupSheet(ctx context.Context, title string) (int64, bool, error) {
	e.mu.Lock()
	id, ok := e.sheetIDs[title]
	e.mu.Unlock()
	if ok {
		return id, true, nil
	}

	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("get spreadsheet: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties == nil {
			continue
		}
		e.sheetIDs[s.Properties.Title] = s.Properties.SheetId
	}
	id, ok = e.sheetIDs[title]
	return id, ok, nil
}
