// Package lifecycle holds the pure rules that move equipment units between
// statuses as loans open and close, and the aggregates derived from the
// resident record set. Nothing in this package performs I/O.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// OpenBorrowing decides the unit status after lending it out.
func OpenBorrowing(unit models.EquipmentUnit, hasOpenLoan bool) (models.EquipmentStatus, error) {
	return openLoan(models.KindBorrowing, unit, hasOpenLoan)
}

// OpenRental decides the unit status after renting it out.
func OpenRental(unit models.EquipmentUnit, hasOpenLoan bool) (models.EquipmentStatus, error) {
	return openLoan(models.KindRental, unit, hasOpenLoan)
}

// Open dispatches to OpenBorrowing or OpenRental.
func Open(kind models.LoanKind, unit models.EquipmentUnit, hasOpenLoan bool) (models.EquipmentStatus, error) {
	return openLoan(kind, unit, hasOpenLoan)
}

func openLoan(kind models.LoanKind, unit models.EquipmentUnit, hasOpenLoan bool) (models.EquipmentStatus, error) {
	if unit.Deleted {
		return "", fmt.Errorf("equipment %s: %w", unit.ID, models.ErrNotFound)
	}
	if hasOpenLoan {
		return "", fmt.Errorf("equipment %s: %w", unit.ID, models.ErrAlreadyOnLoan)
	}
	if unit.Status != models.StatusAvailable {
		return "", fmt.Errorf("open %s on equipment %s in status %q: %w", kind, unit.ID, unit.Status, models.ErrIllegalTransition)
	}

	switch kind {
	case models.KindBorrowing:
		return models.StatusInUse, nil
	case models.KindRental:
		return models.StatusRented, nil
	default:
		return "", fmt.Errorf("unknown loan kind %q: %w", kind, models.ErrIllegalTransition)
	}
}

// CloseBorrowing returns the patch that marks a borrowing returned and the
// status its unit goes back to.
func CloseBorrowing(record models.LoanRecord, now time.Time) (models.LoanPatch, models.EquipmentStatus, error) {
	if record.Kind != models.KindBorrowing {
		return models.LoanPatch{}, "", fmt.Errorf("loan %s is a %s: %w", record.ID, record.Kind, models.ErrIllegalTransition)
	}
	if !record.IsOpen() {
		return models.LoanPatch{}, "", fmt.Errorf("borrowing %s: %w", record.ID, models.ErrLoanClosed)
	}
	if record.Status != models.LoanBorrowed && record.Status != models.LoanOverdue {
		return models.LoanPatch{}, "", fmt.Errorf("return borrowing %s in status %q: %w", record.ID, record.Status, models.ErrIllegalTransition)
	}
	return closingPatch(record, models.LoanReturned, now), models.StatusAvailable, nil
}

// CloseRental returns the patch that completes an active rental.
func CloseRental(record models.LoanRecord, now time.Time) (models.LoanPatch, models.EquipmentStatus, error) {
	return finishRental(record, models.LoanCompleted, now)
}

// CancelRental returns the patch that cancels an active rental.
func CancelRental(record models.LoanRecord, now time.Time) (models.LoanPatch, models.EquipmentStatus, error) {
	return finishRental(record, models.LoanCancelled, now)
}

func finishRental(record models.LoanRecord, target models.LoanStatus, now time.Time) (models.LoanPatch, models.EquipmentStatus, error) {
	if record.Kind != models.KindRental {
		return models.LoanPatch{}, "", fmt.Errorf("loan %s is a %s: %w", record.ID, record.Kind, models.ErrIllegalTransition)
	}
	if !record.IsOpen() {
		return models.LoanPatch{}, "", fmt.Errorf("rental %s: %w", record.ID, models.ErrLoanClosed)
	}
	if record.Status != models.LoanActive {
		return models.LoanPatch{}, "", fmt.Errorf("close rental %s in status %q: %w", record.ID, record.Status, models.ErrIllegalTransition)
	}
	return closingPatch(record, target, now), models.StatusAvailable, nil
}

// closingPatch never dates a closing before the loan started.
func closingPatch(record models.LoanRecord, target models.LoanStatus, now time.Time) models.LoanPatch {
	closedAt := now
	if closedAt.Before(record.StartDate) {
		closedAt = record.StartDate
	}
	status := target
	return models.LoanPatch{Status: &status, ClosedAt: &closedAt}
}

// ReopenPatch undoes a closing patch. Used to compensate a close whose unit write failed.
func ReopenPatch(previous models.LoanRecord) models.LoanPatch {
	status := previous.Status
	patch := models.LoanPatch{Status: &status, ClearClosedAt: previous.ClosedAt == nil}
	if previous.ClosedAt != nil {
		closed := *previous.ClosedAt
		patch.ClosedAt = &closed
	}
	return patch
}

// ManualStatusChange validates an operator edit of a unit's status.
// Loan-governed statuses can only be reached by opening a loan, and a unit
// on loan keeps its status until the loan closes.
func ManualStatusChange(current, target models.EquipmentStatus, hasOpenLoan bool) error {
	if target == current {
		return nil
	}
	if target.LoanGoverned() || target == models.StatusUnknown {
		return fmt.Errorf("set status %q manually: %w", target, models.ErrIllegalTransition)
	}
	if hasOpenLoan {
		return fmt.Errorf("change status of equipment on loan: %w", models.ErrOpenLoan)
	}
	return nil
}

// BorrowingStatusChange validates an edit of an open borrowing's status.
func BorrowingStatusChange(record models.LoanRecord, target models.LoanStatus) error {
	if target == record.Status {
		return nil
	}
	if record.Kind != models.KindBorrowing || !record.IsOpen() {
		return fmt.Errorf("change status of loan %s: %w", record.ID, models.ErrLoanClosed)
	}
	if target != models.LoanBorrowed && target != models.LoanOverdue {
		return fmt.Errorf("set borrowing status %q directly: %w", target, models.ErrIllegalTransition)
	}
	return nil
}
