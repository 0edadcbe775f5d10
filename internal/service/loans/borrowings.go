package loans

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// BorrowingUpdate lists the editable fields of a borrowing. Setting Status
// to Returned returns the borrowing.
type BorrowingUpdate struct {
	Borrower           *string    `json:"borrower"`
	Department         *string    `json:"department"`
	Purpose            *string    `json:"purpose"`
	ExpectedReturnDate *time.Time `json:"expectedReturnDate"`
	Status             *string    `json:"status"`
}

// OpenBorrowing lends an available unit. The borrow date defaults to now and
// the expected return to a week later.
func (s *Service) OpenBorrowing(ctx context.Context, in models.BorrowingInput) (models.LoanRecord, error) {
	if err := in.Validate(); err != nil {
		return models.LoanRecord{}, err
	}

	now := s.now()
	start := now
	if in.BorrowDate != nil && !in.BorrowDate.IsZero() {
		start = *in.BorrowDate
	}
	due := start.Add(defaultBorrowPeriod)
	if in.ExpectedReturnDate != nil && !in.ExpectedReturnDate.IsZero() {
		due = *in.ExpectedReturnDate
	}
	if due.Before(start) {
		return models.LoanRecord{}, models.NewValidationError("expectedReturnDate", "must not be before borrowDate")
	}

	record := models.LoanRecord{
		ID:          uuid.NewString(),
		Kind:        models.KindBorrowing,
		EquipmentID: strings.TrimSpace(in.EquipmentID),
		Holder:      strings.TrimSpace(in.Borrower),
		Department:  strings.TrimSpace(in.Department),
		Purpose:     strings.TrimSpace(in.Purpose),
		Status:      models.LoanBorrowed,
		StartDate:   start,
		DueDate:     due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.open(ctx, record); err != nil {
		return models.LoanRecord{}, err
	}
	return record, nil
}

// ReturnBorrowing closes an open borrowing and frees its unit.
func (s *Service) ReturnBorrowing(ctx context.Context, id string) (models.LoanRecord, error) {
	return s.close(ctx, models.KindBorrowing, id, "return", lifecycle.CloseBorrowing)
}

// UpdateBorrowing edits a borrowing. Status may only move between Borrowed
// and Overdue, or to Returned which closes the loan.
func (s *Service) UpdateBorrowing(ctx context.Context, id string, in BorrowingUpdate) (models.LoanRecord, error) {
	record, err := s.liveLoan(ctx, models.KindBorrowing, id)
	if err != nil {
		return models.LoanRecord{}, err
	}

	patch := models.LoanPatch{
		Holder:     trimmed(in.Borrower),
		Department: trimmed(in.Department),
		Purpose:    trimmed(in.Purpose),
		DueDate:    in.ExpectedReturnDate,
	}
	if patch.Holder != nil && *patch.Holder == "" {
		return models.LoanRecord{}, models.NewValidationError("borrower", "is required")
	}
	if patch.Department != nil && *patch.Department == "" {
		return models.LoanRecord{}, models.NewValidationError("department", "is required")
	}
	if patch.DueDate != nil && patch.DueDate.Before(record.StartDate) {
		return models.LoanRecord{}, models.NewValidationError("expectedReturnDate", "must not be before borrowDate")
	}

	returning := false
	if in.Status != nil {
		target, ok := models.ParseLoanStatus(models.KindBorrowing, *in.Status)
		if !ok {
			return models.LoanRecord{}, models.NewValidationError("status", "unknown borrowing status "+*in.Status)
		}
		switch {
		case target == models.LoanReturned && record.IsOpen():
			returning = true
		default:
			if err := lifecycle.BorrowingStatusChange(record, target); err != nil {
				return models.LoanRecord{}, err
			}
			if target != record.Status {
				patch.Status = &target
			}
		}
	}

	updated, err := s.update(ctx, models.KindBorrowing, id, patch)
	if err != nil {
		return models.LoanRecord{}, err
	}
	if returning {
		return s.ReturnBorrowing(ctx, id)
	}
	return updated, nil
}

// DeleteBorrowing soft-deletes a returned borrowing.
func (s *Service) DeleteBorrowing(ctx context.Context, id string) error {
	return s.remove(ctx, models.KindBorrowing, id)
}

// GetBorrowing returns a borrowing with its unit's display fields.
func (s *Service) GetBorrowing(ctx context.Context, id string) (models.LoanView, error) {
	return s.get(ctx, models.KindBorrowing, id)
}

// ListBorrowings searches, filters and paginates borrowings, newest first.
func (s *Service) ListBorrowings(ctx context.Context, q Query) (models.Page[models.LoanView], error) {
	return s.list(ctx, models.KindBorrowing, q)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
