package lifecycle

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

const day = 24 * time.Hour

// RentalDays counts started days between start and end.
func RentalDays(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return 0
	}
	return int(math.Ceil(float64(end.Sub(start)) / float64(day)))
}

// RentalCost is the number of started days times the daily rate, rounded to cents.
func RentalCost(start, end time.Time, rate float64) (float64, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, models.NewValidationError("rentalRate", "must be positive")
	}
	days := RentalDays(start, end)
	if days <= 0 {
		return 0, models.NewValidationError("rentalEnd", "must be after rentalStart")
	}
	total := decimal.NewFromFloat(rate).Mul(decimal.NewFromInt(int64(days))).Round(2)
	return total.InexactFloat64(), nil
}
