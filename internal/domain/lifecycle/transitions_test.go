package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

var allUnitStatuses = []models.EquipmentStatus{
	models.StatusAvailable,
	models.StatusInUse,
	models.StatusMaintenance,
	models.StatusBroken,
	models.StatusRetired,
	models.StatusRented,
	models.StatusUnknown,
}

func TestOpenBorrowingFromAvailable(t *testing.T) {
	unit := models.EquipmentUnit{ID: "u1", EquipmentID: "EQ100", Status: models.StatusAvailable}

	status, err := OpenBorrowing(unit, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInUse, status)

	status, err = OpenRental(unit, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRented, status)
}

func TestOpenRejectsUnitWithOpenLoan(t *testing.T) {
	unit := models.EquipmentUnit{ID: "u1", Status: models.StatusAvailable}

	_, err := OpenBorrowing(unit, true)
	assert.ErrorIs(t, err, models.ErrAlreadyOnLoan)

	_, err = OpenRental(unit, true)
	assert.ErrorIs(t, err, models.ErrAlreadyOnLoan)
}

func TestOpenRejectsDeletedUnit(t *testing.T) {
	unit := models.EquipmentUnit{ID: "u1", Status: models.StatusAvailable, Deleted: true}

	_, err := OpenBorrowing(unit, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOpenOnlyFromAvailable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		status := rapid.SampledFrom(allUnitStatuses).Draw(t, "status")
		kind := rapid.SampledFrom([]models.LoanKind{models.KindBorrowing, models.KindRental}).Draw(t, "kind")
		unit := models.EquipmentUnit{ID: "u", Status: status}

		target, err := Open(kind, unit, false)
		if status != models.StatusAvailable {
			if err == nil {
				t.Fatalf("open %s from %q accepted", kind, status)
			}
			return
		}
		if err != nil {
			t.Fatalf("open %s from Available: %v", kind, err)
		}
		want := models.StatusInUse
		if kind == models.KindRental {
			want = models.StatusRented
		}
		if target != want {
			t.Fatalf("target %q, want %q", target, want)
		}
	})
}

func TestCloseBorrowing(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(72 * time.Hour)

	for _, status := range []models.LoanStatus{models.LoanBorrowed, models.LoanOverdue} {
		record := models.LoanRecord{ID: "b1", Kind: models.KindBorrowing, Status: status, StartDate: start}

		patch, unitStatus, err := CloseBorrowing(record, now)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, unitStatus)
		require.NotNil(t, patch.Status)
		assert.Equal(t, models.LoanReturned, *patch.Status)
		require.NotNil(t, patch.ClosedAt)
		assert.True(t, patch.ClosedAt.Equal(now))
	}
}

func TestCloseBorrowingRejectsClosedOrWrongKind(t *testing.T) {
	closed := time.Now()
	_, _, err := CloseBorrowing(models.LoanRecord{ID: "b1", Kind: models.KindBorrowing, Status: models.LoanReturned, ClosedAt: &closed}, time.Now())
	assert.ErrorIs(t, err, models.ErrLoanClosed)

	_, _, err = CloseBorrowing(models.LoanRecord{ID: "r1", Kind: models.KindRental, Status: models.LoanActive}, time.Now())
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestCloseRentalAndCancel(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	record := models.LoanRecord{ID: "r1", Kind: models.KindRental, Status: models.LoanActive, StartDate: start}

	patch, unitStatus, err := CloseRental(record, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, unitStatus)
	assert.Equal(t, models.LoanCompleted, *patch.Status)

	patch, _, err = CancelRental(record, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.LoanCancelled, *patch.Status)

	completed := record
	completed.Status = models.LoanCompleted
	_, _, err = CloseRental(completed, start)
	assert.ErrorIs(t, err, models.ErrLoanClosed)
}

func TestClosingNeverPrecedesStart(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		start := base.Add(time.Duration(rapid.Int64Range(0, 1_000_000).Draw(t, "start")) * time.Second)
		now := base.Add(time.Duration(rapid.Int64Range(0, 1_000_000).Draw(t, "now")) * time.Second)
		kind := rapid.SampledFrom([]models.LoanKind{models.KindBorrowing, models.KindRental}).Draw(t, "kind")

		record := models.LoanRecord{ID: "l", Kind: kind, Status: kind.OpenStatus(), StartDate: start, DueDate: start.Add(day)}

		var patch models.LoanPatch
		var err error
		if kind == models.KindBorrowing {
			patch, _, err = CloseBorrowing(record, now)
		} else {
			patch, _, err = CloseRental(record, now)
		}
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		if patch.ClosedAt.Before(start) {
			t.Fatalf("closed at %v before start %v", patch.ClosedAt, start)
		}

		patch.Apply(&record)
		if record.IsOpen() {
			t.Fatalf("record still open after close")
		}
		later := now.Add(time.Duration(rapid.Int64Range(0, 10_000_000).Draw(t, "later")) * time.Second)
		if IsOverdue(record, later) {
			t.Fatalf("closed record reported overdue")
		}
	})
}

func TestReopenPatchRestoresRecord(t *testing.T) {
	record := models.LoanRecord{ID: "b1", Kind: models.KindBorrowing, Status: models.LoanBorrowed, StartDate: time.Now()}
	previous := record

	patch, _, err := CloseBorrowing(record, time.Now())
	require.NoError(t, err)
	patch.Apply(&record)
	require.False(t, record.IsOpen())

	ReopenPatch(previous).Apply(&record)
	assert.True(t, record.IsOpen())
	assert.Equal(t, models.LoanBorrowed, record.Status)
	assert.Nil(t, record.ClosedAt)
}

func TestManualStatusChange(t *testing.T) {
	tests := []struct {
		name    string
		current models.EquipmentStatus
		target  models.EquipmentStatus
		onLoan  bool
		wantErr error
	}{
		{name: "to maintenance", current: models.StatusAvailable, target: models.StatusMaintenance},
		{name: "back to available", current: models.StatusBroken, target: models.StatusAvailable},
		{name: "retire", current: models.StatusMaintenance, target: models.StatusRetired},
		{name: "unchanged on loan", current: models.StatusInUse, target: models.StatusInUse, onLoan: true},
		{name: "in use is loan governed", current: models.StatusAvailable, target: models.StatusInUse, wantErr: models.ErrIllegalTransition},
		{name: "rented is loan governed", current: models.StatusAvailable, target: models.StatusRented, wantErr: models.ErrIllegalTransition},
		{name: "unit on loan", current: models.StatusRented, target: models.StatusMaintenance, onLoan: true, wantErr: models.ErrOpenLoan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ManualStatusChange(tt.current, tt.target, tt.onLoan)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBorrowingStatusChange(t *testing.T) {
	open := models.LoanRecord{ID: "b1", Kind: models.KindBorrowing, Status: models.LoanBorrowed}
	assert.NoError(t, BorrowingStatusChange(open, models.LoanOverdue))
	assert.ErrorIs(t, BorrowingStatusChange(open, models.LoanReturned), models.ErrIllegalTransition)

	closed := time.Now()
	returned := models.LoanRecord{ID: "b2", Kind: models.KindBorrowing, Status: models.LoanReturned, ClosedAt: &closed}
	assert.ErrorIs(t, BorrowingStatusChange(returned, models.LoanBorrowed), models.ErrLoanClosed)
}

func TestRentalCost(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	cost, err := RentalCost(start, start.Add(3*day), 25.5)
	require.NoError(t, err)
	assert.Equal(t, 76.5, cost)

	cost, err = RentalCost(start, start.Add(2*day+time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 30.0, cost, "a started day is billed")

	_, err = RentalCost(start, start, 10)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = RentalCost(start, start.Add(day), 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}
