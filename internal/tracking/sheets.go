package tracking

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

const backendSheets = "sheets"

// DefaultSheetName is the tab that holds one row per tracking ID.
const DefaultSheetName = "ERC Tracking"

// SheetHeaders is the header row of the tracking tab, columns A through N.
var SheetHeaders = []interface{}{
	"Tracking ID",
	"Business Name",
	"EIN",
	"Location",
	"Business Website",
	"NAICS Code",
	"Time Period",
	"Additional Info",
	"Status",
	"Timestamp",
	"Protest Letter Path",
	"ZIP Path",
	"Tracking Number",
	"Google Drive Link",
}

// SheetsReporter writes reports to a Google Sheets tab. A row is located by its
// tracking ID in column A; unknown IDs are appended.
type SheetsReporter struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
	logger        *zap.Logger
}

// NewSheetsReporter creates a reporter. Client options select credentials, e.g.
// option.WithCredentialsFile.
func NewSheetsReporter(ctx context.Context, spreadsheetID, sheetName string, logger *zap.Logger, opts ...option.ClientOption) (*SheetsReporter, error) {
	if spreadsheetID == "" {
		return nil, &Error{Backend: backendSheets, Message: "spreadsheet ID is required"}
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &Error{Backend: backendSheets, Message: "failed to create sheets client", Cause: err}
	}
	return &SheetsReporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheetName,
		logger:        logging.OrNop(logger),
	}, nil
}

// Close does nothing; the HTTP client has no resources of its own.
func (s *SheetsReporter) Close() error { return nil }

func (s *SheetsReporter) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", s.sheet, cells)
}

// Report updates the status columns of an existing row or appends a new one.
func (s *SheetsReporter) Report(ctx context.Context, r Report) error {
	if r.TrackingID == "" {
		return &Error{Backend: backendSheets, Message: "tracking ID is required"}
	}

	if err := s.ensureHeaders(ctx); err != nil {
		// a missing header row does not block the report itself
		s.logger.Warn("failed to ensure sheet headers", zap.Error(err))
	}

	row, err := s.findRow(ctx, r.TrackingID)
	if err != nil {
		return &Error{Backend: backendSheets, TrackingID: r.TrackingID, Message: "failed to look up row", Cause: err}
	}

	if row == 0 {
		_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:N"), &sheets.ValueRange{
			Values: [][]interface{}{fullRow(r)},
		}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return &Error{Backend: backendSheets, TrackingID: r.TrackingID, Message: "failed to append row", Cause: err}
		}
		s.logger.Info("tracking row appended", zap.String("tracking_id", r.TrackingID))
		return nil
	}

	cell := func(col string, v interface{}) *sheets.ValueRange {
		return &sheets.ValueRange{
			Range:  s.rangeOf(fmt.Sprintf("%s%d", col, row)),
			Values: [][]interface{}{{v}},
		}
	}
	data := []*sheets.ValueRange{
		cell("I", r.Status),
		cell("J", timestamp(r.Timestamp)),
		cell("K", r.LetterPath),
		cell("L", r.ArchivePath),
	}
	if link := driveLink(r.Links); link != "" {
		data = append(data, cell("N", link))
	}
	if r.Error != "" {
		data = append(data, cell("H", r.Error))
	}

	_, err = s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return &Error{Backend: backendSheets, TrackingID: r.TrackingID, Message: "failed to update row", Cause: err}
	}
	s.logger.Info("tracking row updated",
		zap.String("tracking_id", r.TrackingID),
		zap.Int("row", row),
		zap.String("status", r.Status))
	return nil
}

// ensureHeaders writes the header row when it is missing or short.
func (s *SheetsReporter) ensureHeaders(ctx context.Context) error {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A1:N1")).Context(ctx).Do()
	if err != nil {
		return err
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) >= len(SheetHeaders) {
		return nil
	}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf("A1:N1"), &sheets.ValueRange{
		Values: [][]interface{}{SheetHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// findRow returns the 1-based row holding trackingID in column A, or 0.
func (s *SheetsReporter) findRow(ctx context.Context, trackingID string) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, values := range resp.Values {
		if len(values) > 0 && fmt.Sprint(values[0]) == trackingID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func fullRow(r Report) []interface{} {
	return []interface{}{
		r.TrackingID,
		r.Profile.Name,
		r.Profile.TaxID,
		r.Profile.Location,
		"",
		r.Profile.NAICSCode,
		r.Profile.Period,
		r.Error,
		r.Status,
		timestamp(r.Timestamp),
		r.LetterPath,
		r.ArchivePath,
		"",
		driveLink(r.Links),
	}
}

func driveLink(links *types.ShareLinks) string {
	if links == nil {
		return ""
	}
	if links.FolderLink != "" {
		return links.FolderLink
	}
	return links.ArchiveLink
}
