package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository"
	"github.com/mamadbah2/equiptrack/internal/repository/sheets"
)

const dateLayout = "2006-01-02"

// Range presets accepted by Report.
const (
	RangeWeek    = "week"
	RangeMonth   = "month"
	RangeQuarter = "quarter"
	RangeYear    = "year"
	RangeCustom  = "custom"
)

// Store is the persistence reporting reads from.
type Store interface {
	repository.EquipmentStore
	repository.LoanStore
	repository.ReportStore
}

// Range selects the loans a report covers, by start date. From and To are
// only read for the custom preset, or when Preset is empty.
type Range struct {
	Preset string
	From   *time.Time
	To     *time.Time
}

// RangeReport is a report together with the window it covers.
type RangeReport struct {
	models.Report
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Service derives reports and summaries from the record stores.
type Service struct {
	store    Store
	exporter sheets.ReportExporter
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewService wires a new reporting service instance. exporter may be nil
// when no spreadsheet is configured.
func NewService(store Store, exporter sheets.ReportExporter, location *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{store: store, exporter: exporter, location: location, now: time.Now, logger: logger}
}

// Resolve turns a range into concrete bounds. An empty preset without dates
// falls back to the last month.
func (r Range) Resolve(now time.Time) (time.Time, time.Time, error) {
	preset := strings.ToLower(strings.TrimSpace(r.Preset))
	if preset == "" && (r.From != nil || r.To != nil) {
		preset = RangeCustom
	}

	switch preset {
	case RangeWeek:
		return now.AddDate(0, 0, -7), now, nil
	case "", RangeMonth:
		return now.AddDate(0, -1, 0), now, nil
	case RangeQuarter:
		return now.AddDate(0, -3, 0), now, nil
	case RangeYear:
		return now.AddDate(-1, 0, 0), now, nil
	case RangeCustom:
		if r.From == nil || r.To == nil {
			return time.Time{}, time.Time{}, models.NewValidationError("range", "custom range needs from and to")
		}
		if r.To.Before(*r.From) {
			return time.Time{}, time.Time{}, models.NewValidationError("to", "must not be before from")
		}
		return *r.From, *r.To, nil
	default:
		return time.Time{}, time.Time{}, models.NewValidationError("range", "unknown range "+r.Preset)
	}
}

// Report aggregates all live equipment and the loans started inside the range.
func (s *Service) Report(ctx context.Context, r Range) (RangeReport, error) {
	now := s.now()
	from, to, err := r.Resolve(now)
	if err != nil {
		return RangeReport{}, err
	}
	report, err := s.build(ctx, from, to, now)
	if err != nil {
		return RangeReport{}, err
	}
	return RangeReport{Report: report, From: from, To: to}, nil
}

func (s *Service) build(ctx context.Context, from, to, now time.Time) (models.Report, error) {
	units, err := s.store.QueryEquipment(ctx, models.EquipmentFilter{})
	if err != nil {
		return models.Report{}, fmt.Errorf("load equipment: %w", err)
	}
	filter := models.LoanFilter{StartFrom: &from, StartTo: &to}
	borrowings, err := s.store.QueryLoanRecords(ctx, models.KindBorrowing, filter, repository.OrderBy{})
	if err != nil {
		return models.Report{}, fmt.Errorf("load borrowings: %w", err)
	}
	rentals, err := s.store.QueryLoanRecords(ctx, models.KindRental, filter, repository.OrderBy{})
	if err != nil {
		return models.Report{}, fmt.Errorf("load rentals: %w", err)
	}
	return lifecycle.BuildReport(units, borrowings, rentals, now), nil
}

// BorrowingSummary backs the cards of the borrowings page.
func (s *Service) BorrowingSummary(ctx context.Context) (models.BorrowingStats, error) {
	borrowings, err := s.store.QueryLoanRecords(ctx, models.KindBorrowing, models.LoanFilter{}, repository.OrderBy{})
	if err != nil {
		return models.BorrowingStats{}, fmt.Errorf("load borrowings: %w", err)
	}
	return lifecycle.ComputeBorrowingStats(borrowings, s.now()), nil
}

// RentalSummary backs the cards of the rentals page.
func (s *Service) RentalSummary(ctx context.Context) (models.RentalStats, error) {
	rentals, err := s.store.QueryLoanRecords(ctx, models.KindRental, models.LoanFilter{}, repository.OrderBy{})
	if err != nil {
		return models.RentalStats{}, fmt.Errorf("load rentals: %w", err)
	}
	return lifecycle.ComputeRentalStats(rentals, s.now()), nil
}

// DashboardSummary backs the landing page cards.
func (s *Service) DashboardSummary(ctx context.Context) (models.DashboardStats, error) {
	units, err := s.store.QueryEquipment(ctx, models.EquipmentFilter{})
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("load equipment: %w", err)
	}
	open := models.LoanFilter{OpenOnly: true}
	borrowings, err := s.store.QueryLoanRecords(ctx, models.KindBorrowing, open, repository.OrderBy{})
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("load borrowings: %w", err)
	}
	rentals, err := s.store.QueryLoanRecords(ctx, models.KindRental, open, repository.OrderBy{})
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("load rentals: %w", err)
	}
	return lifecycle.ComputeDashboardStats(units, borrowings, rentals), nil
}

// OverdueLoans lists open loans of both kinds whose due date has passed,
// most overdue first.
func (s *Service) OverdueLoans(ctx context.Context, now time.Time) ([]models.LoanRecord, error) {
	order := repository.OrderBy{Field: "dueDate", Ascending: true}
	var out []models.LoanRecord
	for _, kind := range []models.LoanKind{models.KindBorrowing, models.KindRental} {
		records, err := s.store.QueryLoanRecords(ctx, kind, models.LoanFilter{OpenOnly: true}, order)
		if err != nil {
			return nil, fmt.Errorf("load open %s: %w", kind, err)
		}
		out = append(out, lifecycle.FilterOverdue(records, now)...)
	}
	sortByDue(out)
	return out, nil
}

// SnapshotDaily stores the report of the calendar day before day, exports
// it when a spreadsheet is configured and returns a text summary. Running it
// twice for the same day overwrites the snapshot.
func (s *Service) SnapshotDaily(ctx context.Context, day time.Time) (string, error) {
	local := day.In(s.location)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	start := end.AddDate(0, 0, -1)

	report, err := s.build(ctx, start, end.Add(-time.Nanosecond), end)
	if err != nil {
		return "", err
	}

	snapshot := models.ReportSnapshot{
		ID:         start.Format(dateLayout),
		Date:       start,
		RangeStart: start,
		RangeEnd:   end,
		Report:     report,
		CreatedAt:  s.now(),
	}
	if err := s.store.SaveReportSnapshot(ctx, snapshot); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", snapshot.ID, err)
	}

	if s.exporter != nil {
		if err := s.exporter.AppendReport(ctx, snapshot); err != nil {
			s.logger.Warn("export snapshot", zap.String("snapshot", snapshot.ID), zap.Error(err))
		}
	}

	s.logger.Info("daily snapshot stored", zap.String("snapshot", snapshot.ID))
	return FormatSummary(snapshot), nil
}

// Snapshots lists stored snapshots, newest first.
func (s *Service) Snapshots(ctx context.Context, limit int) ([]models.ReportSnapshot, error) {
	if limit <= 0 || limit > 366 {
		limit = 30
	}
	snapshots, err := s.store.ListReportSnapshots(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// FormatSummary renders the headline figures of a snapshot on one line.
func FormatSummary(snapshot models.ReportSnapshot) string {
	r := snapshot.Report
	return fmt.Sprintf(
		"Report %s: %d units (%d available, %d in use, %d maintenance). Borrowings %d, %d active, %d overdue. Rentals %d, %d active, %d overdue. Revenue %.2f.",
		snapshot.Date.Format(dateLayout),
		r.TotalEquipment, r.AvailableEquipment, r.InUseEquipment, r.MaintenanceEquipment,
		r.TotalBorrowings, r.ActiveBorrowings, r.OverdueBorrowings,
		r.TotalRentals, r.ActiveRentals, r.OverdueRental,
		r.Revenue,
	)
}

func sortByDue(records []models.LoanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DueDate.Before(records[j].DueDate)
	})
}
