package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(credentialsJSON), sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return newSheetsWriter(svc, spreadsheetID), nil
}

func newSheetsWriter(svc *sheets.Service, spreadsheetID string) *SheetsWriter {
	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}
}

// Write replaces the contents of the snapshot sheet with rows, creating the sheet first
// when the spreadsheet lacks it.
func (w *SheetsWriter) Write(ctx context.Context, rows []Row) error {
	if err := w.ensureSheet(ctx, SheetName); err != nil {
		return err
	}

	values := w.svc.Spreadsheets.Values
	if _, err := values.Clear(w.spreadsheetID, SheetName+"!A:I", &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clearing %s: %w", SheetName, err)
	}

	_, err := values.Update(w.spreadsheetID, SheetName+"!A1", &sheets.ValueRange{Values: buildValues(rows)}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("writing %d rows to %s: %w", len(rows), SheetName, err)
	}
	return nil
}

// ensureSheet adds a sheet titled name with a frozen header row unless one exists.
func (w *SheetsWriter) ensureSheet(ctx context.Context, name string) error {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	if lo.ContainsBy(spreadsheet.Sheets, func(s *sheets.Sheet) bool {
		return s.Properties != nil && s.Properties.Title == name
	}) {
		return nil
	}

	add := &sheets.Request{AddSheet: &sheets.AddSheetRequest{
		Properties: &sheets.SheetProperties{
			Title:          name,
			GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
		},
	}}
	_, err = w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{add},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("adding sheet %s: %w", name, err)
	}
	slog.Info("created spreadsheet sheet", "spreadsheet_id", w.spreadsheetID, "sheet", name)
	return nil
}
