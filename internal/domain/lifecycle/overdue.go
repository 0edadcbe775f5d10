package lifecycle

import (
	"time"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// IsOverdue reports whether an open loan's committed end date has passed.
// A loan without a due date is never overdue.
func IsOverdue(record models.LoanRecord, now time.Time) bool {
	if !record.IsOpen() || record.DueDate.IsZero() {
		return false
	}
	return record.DueDate.Before(now)
}

// CountOverdue counts the overdue loans of a record set.
func CountOverdue(records []models.LoanRecord, now time.Time) int {
	count := 0
	for _, r := range records {
		if IsOverdue(r, now) {
			count++
		}
	}
	return count
}

// OverdueFor returns how long past due a loan is, zero when it is not overdue.
func OverdueFor(record models.LoanRecord, now time.Time) time.Duration {
	if !IsOverdue(record, now) {
		return 0
	}
	return now.Sub(record.DueDate)
}

// FilterOverdue keeps the overdue loans, preserving order.
func FilterOverdue(records []models.LoanRecord, now time.Time) []models.LoanRecord {
	out := make([]models.LoanRecord, 0)
	for _, r := range records {
		if IsOverdue(r, now) {
			out = append(out, r)
		}
	}
	return out
}
