package lifecycle

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

const trendLayout = "2006-01-02"

const unknownKey = "Unknown"

// Soft-deleted records are skipped by every aggregate below.

// ComputeEquipmentStats counts units by lifecycle bucket.
func ComputeEquipmentStats(units []models.EquipmentUnit) models.EquipmentStats {
	var stats models.EquipmentStats
	for _, u := range units {
		if u.Deleted {
			continue
		}
		stats.TotalEquipment++
		switch u.Status {
		case models.StatusAvailable:
			stats.AvailableEquipment++
		case models.StatusInUse, models.StatusRented:
			stats.InUseEquipment++
		case models.StatusMaintenance, models.StatusBroken:
			stats.MaintenanceEquipment++
		}
	}
	return stats
}

// ComputeBorrowingStats counts borrowings; active means status Borrowed.
func ComputeBorrowingStats(borrowings []models.LoanRecord, now time.Time) models.BorrowingStats {
	var stats models.BorrowingStats
	for _, b := range borrowings {
		if b.Deleted {
			continue
		}
		stats.TotalBorrowings++
		if b.Status == models.LoanBorrowed && b.IsOpen() {
			stats.ActiveBorrowings++
		}
		if IsOverdue(b, now) {
			stats.OverdueBorrowings++
		}
	}
	return stats
}

// ComputeRentalStats counts rentals and sums paid revenue.
func ComputeRentalStats(rentals []models.LoanRecord, now time.Time) models.RentalStats {
	var stats models.RentalStats
	for _, r := range rentals {
		if r.Deleted {
			continue
		}
		stats.TotalRentals++
		if r.Status == models.LoanActive && r.IsOpen() {
			stats.ActiveRentals++
		}
		if IsOverdue(r, now) {
			stats.OverdueRental++
		}
	}
	stats.Revenue = Revenue(rentals)
	return stats
}

// Revenue sums TotalCost over paid rentals. Non-finite costs count as zero.
func Revenue(rentals []models.LoanRecord) float64 {
	sum := decimal.Zero
	for _, r := range rentals {
		if r.Deleted || r.PaymentStatus != models.PaymentPaid {
			continue
		}
		sum = sum.Add(money(r.TotalCost))
	}
	return sum.InexactFloat64()
}

// CountByCategory groups units by category; blank categories count as "Unknown".
func CountByCategory(units []models.EquipmentUnit) map[string]int {
	out := make(map[string]int)
	for _, u := range units {
		if u.Deleted {
			continue
		}
		key := strings.TrimSpace(u.Category)
		if key == "" {
			key = unknownKey
		}
		out[key]++
	}
	return out
}

// CountByStatus groups units by status label.
func CountByStatus(units []models.EquipmentUnit) map[string]int {
	out := make(map[string]int)
	for _, u := range units {
		if u.Deleted {
			continue
		}
		key := string(u.Status)
		if key == "" {
			key = unknownKey
		}
		out[key]++
	}
	return out
}

// CountTrend counts loans per calendar day (UTC) of their start date, oldest first.
// Loans without a start date are left out.
func CountTrend(records []models.LoanRecord) []models.TrendPoint {
	buckets := make(map[string]decimal.Decimal)
	for _, r := range records {
		if r.Deleted || r.StartDate.IsZero() {
			continue
		}
		key := dayKey(r.StartDate)
		buckets[key] = buckets[key].Add(decimal.NewFromInt(1))
	}
	return series(buckets)
}

// RevenueTrend sums paid rental cost per calendar day of the rental start.
func RevenueTrend(rentals []models.LoanRecord) []models.TrendPoint {
	buckets := make(map[string]decimal.Decimal)
	for _, r := range rentals {
		if r.Deleted || r.StartDate.IsZero() || r.PaymentStatus != models.PaymentPaid || r.TotalCost == 0 {
			continue
		}
		key := dayKey(r.StartDate)
		buckets[key] = buckets[key].Add(money(r.TotalCost))
	}
	return series(buckets)
}

// BuildReport derives the full report from the resident snapshot.
func BuildReport(units []models.EquipmentUnit, borrowings, rentals []models.LoanRecord, now time.Time) models.Report {
	return models.Report{
		EquipmentStats:      ComputeEquipmentStats(units),
		BorrowingStats:      ComputeBorrowingStats(borrowings, now),
		RentalStats:         ComputeRentalStats(rentals, now),
		EquipmentByCategory: CountByCategory(units),
		EquipmentByStatus:   CountByStatus(units),
		BorrowingsTrend:     CountTrend(borrowings),
		RentalsTrend:        CountTrend(rentals),
		RevenueTrend:        RevenueTrend(rentals),
	}
}

// ComputeDashboardStats backs the landing page cards.
func ComputeDashboardStats(units []models.EquipmentUnit, borrowings, rentals []models.LoanRecord) models.DashboardStats {
	stats := models.DashboardStats{}
	for _, u := range units {
		if !u.Deleted {
			stats.TotalEquipment++
		}
	}
	for _, b := range borrowings {
		if !b.Deleted && b.IsOpen() {
			stats.CurrentlyBorrowed++
		}
	}
	for _, r := range rentals {
		if !r.Deleted && r.Status == models.LoanActive && r.IsOpen() {
			stats.ActiveRentals++
		}
	}
	return stats
}

func dayKey(t time.Time) string {
	return t.UTC().Format(trendLayout)
}

func money(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func series(buckets map[string]decimal.Decimal) []models.TrendPoint {
	out := make([]models.TrendPoint, 0, len(buckets))
	for date, v := range buckets {
		out = append(out, models.TrendPoint{Date: date, Value: v.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
