package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/equiptrack/internal/config"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

const dateLayout = "2006-01-02"

// ReportExporter appends report snapshots to a spreadsheet.
type ReportExporter interface {
	AppendReport(ctx context.Context, snapshot models.ReportSnapshot) error
}

// RowWriter is the slice of the Sheets API the exporter needs.
type RowWriter interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// GoogleSheetRepository writes rows through the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// Exporter renders snapshots as one spreadsheet row each.
type Exporter struct {
	writer     RowWriter
	sheetRange string
	logger     *zap.Logger
}

// NewExporter wires an exporter on top of a row writer.
func NewExporter(writer RowWriter, sheetRange string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{writer: writer, sheetRange: sheetRange, logger: logger}
}

// AppendReport writes the headline figures of a snapshot.
func (e *Exporter) AppendReport(ctx context.Context, snapshot models.ReportSnapshot) error {
	if err := e.writer.WriteRow(ctx, e.sheetRange, ReportRow(snapshot)); err != nil {
		return fmt.Errorf("export report %s: %w", snapshot.ID, err)
	}
	e.logger.Info("report exported", zap.String("snapshot", snapshot.ID))
	return nil
}

// ReportRow lays out a snapshot in the column order of the reports sheet.
func ReportRow(snapshot models.ReportSnapshot) []interface{} {
	r := snapshot.Report
	return []interface{}{
		snapshot.Date.Format(dateLayout),
		r.TotalEquipment,
		r.AvailableEquipment,
		r.InUseEquipment,
		r.MaintenanceEquipment,
		r.TotalBorrowings,
		r.ActiveBorrowings,
		r.OverdueBorrowings,
		r.TotalRentals,
		r.ActiveRentals,
		r.OverdueRental,
		fmt.Sprintf("%.2f", r.Revenue),
	}
}
