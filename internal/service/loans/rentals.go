package loans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// RentalUpdate lists the editable fields of a rental. Setting Status to
// Completed or Cancelled closes the rental.
type RentalUpdate struct {
	Client        *string    `json:"client"`
	Company       *string    `json:"company"`
	ContactInfo   *string    `json:"contactInfo"`
	Notes         *string    `json:"notes"`
	RentalEnd     *time.Time `json:"rentalEnd"`
	TotalCost     *float64   `json:"totalCost"`
	PaymentStatus *string    `json:"paymentStatus"`
	Status        *string    `json:"status"`
}

// OpenRental rents an available unit. The period defaults to thirty days
// from now, payment to Pending and the total cost to days times rate.
func (s *Service) OpenRental(ctx context.Context, in models.RentalInput) (models.LoanRecord, error) {
	if err := in.Validate(); err != nil {
		return models.LoanRecord{}, err
	}

	now := s.now()
	start := now
	if in.RentalStart != nil && !in.RentalStart.IsZero() {
		start = *in.RentalStart
	}
	end := start.Add(defaultRentalPeriod)
	if in.RentalEnd != nil && !in.RentalEnd.IsZero() {
		end = *in.RentalEnd
	}
	if end.Before(start) {
		return models.LoanRecord{}, models.NewValidationError("rentalEnd", "must not be before rentalStart")
	}

	payment := models.PaymentPending
	if strings.TrimSpace(in.PaymentStatus) != "" {
		payment, _ = models.ParsePaymentStatus(in.PaymentStatus)
	}

	cost := in.TotalCost
	if cost == 0 {
		computed, err := lifecycle.RentalCost(start, end, in.RentalRate)
		if err != nil {
			return models.LoanRecord{}, err
		}
		cost = computed
	}

	record := models.LoanRecord{
		ID:            uuid.NewString(),
		Kind:          models.KindRental,
		EquipmentID:   strings.TrimSpace(in.EquipmentID),
		Holder:        strings.TrimSpace(in.Client),
		Company:       strings.TrimSpace(in.Company),
		ContactInfo:   strings.TrimSpace(in.ContactInfo),
		Notes:         in.Notes,
		Status:        models.LoanActive,
		StartDate:     start,
		DueDate:       end,
		RentalRate:    in.RentalRate,
		TotalCost:     cost,
		PaymentStatus: payment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.open(ctx, record); err != nil {
		return models.LoanRecord{}, err
	}
	return record, nil
}

// CompleteRental closes an active rental and frees its unit.
func (s *Service) CompleteRental(ctx context.Context, id string) (models.LoanRecord, error) {
	return s.close(ctx, models.KindRental, id, "complete", lifecycle.CloseRental)
}

// CancelRental cancels an active rental and frees its unit.
func (s *Service) CancelRental(ctx context.Context, id string) (models.LoanRecord, error) {
	return s.close(ctx, models.KindRental, id, "cancel", lifecycle.CancelRental)
}

// UpdateRental edits a rental. Payment and notes stay editable after the
// rental is closed.
func (s *Service) UpdateRental(ctx context.Context, id string, in RentalUpdate) (models.LoanRecord, error) {
	record, err := s.liveLoan(ctx, models.KindRental, id)
	if err != nil {
		return models.LoanRecord{}, err
	}

	patch := models.LoanPatch{
		Holder:      trimmed(in.Client),
		Company:     trimmed(in.Company),
		ContactInfo: trimmed(in.ContactInfo),
		Notes:       in.Notes,
		DueDate:     in.RentalEnd,
		TotalCost:   in.TotalCost,
	}
	if patch.Holder != nil && *patch.Holder == "" {
		return models.LoanRecord{}, models.NewValidationError("client", "is required")
	}
	if patch.DueDate != nil && patch.DueDate.Before(record.StartDate) {
		return models.LoanRecord{}, models.NewValidationError("rentalEnd", "must not be before rentalStart")
	}
	if patch.TotalCost != nil && *patch.TotalCost < 0 {
		return models.LoanRecord{}, models.NewValidationError("totalCost", "must not be negative")
	}
	if patch.DueDate != nil && patch.TotalCost == nil && record.RentalRate > 0 {
		cost, err := lifecycle.RentalCost(record.StartDate, *patch.DueDate, record.RentalRate)
		if err == nil {
			patch.TotalCost = &cost
		}
	}
	if in.PaymentStatus != nil {
		payment, ok := models.ParsePaymentStatus(*in.PaymentStatus)
		if !ok {
			return models.LoanRecord{}, models.NewValidationError("paymentStatus", "unknown payment status "+*in.PaymentStatus)
		}
		patch.PaymentStatus = &payment
	}

	var closeWith func(context.Context, string) (models.LoanRecord, error)
	if in.Status != nil {
		target, ok := models.ParseLoanStatus(models.KindRental, *in.Status)
		if !ok {
			return models.LoanRecord{}, models.NewValidationError("status", "unknown rental status "+*in.Status)
		}
		if target != record.Status {
			if !record.IsOpen() {
				return models.LoanRecord{}, fmt.Errorf("set status of rental %s: %w", id, models.ErrLoanClosed)
			}
			switch target {
			case models.LoanCompleted:
				closeWith = s.CompleteRental
			case models.LoanCancelled:
				closeWith = s.CancelRental
			default:
				return models.LoanRecord{}, fmt.Errorf("set rental status %q directly: %w", target, models.ErrIllegalTransition)
			}
		}
	}

	updated, err := s.update(ctx, models.KindRental, id, patch)
	if err != nil {
		return models.LoanRecord{}, err
	}
	if closeWith != nil {
		return closeWith(ctx, id)
	}
	return updated, nil
}

// DeleteRental soft-deletes a closed rental.
func (s *Service) DeleteRental(ctx context.Context, id string) error {
	return s.remove(ctx, models.KindRental, id)
}

// GetRental returns a rental with its unit's display fields.
func (s *Service) GetRental(ctx context.Context, id string) (models.LoanView, error) {
	return s.get(ctx, models.KindRental, id)
}

// ListRentals searches, filters and paginates rentals, newest first.
func (s *Service) ListRentals(ctx context.Context, q Query) (models.Page[models.LoanView], error) {
	return s.list(ctx, models.KindRental, q)
}
