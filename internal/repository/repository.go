// Package repository declares the persistence contracts shared by the
// MongoDB and in-memory stores.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

var (
	// ErrTransient marks a store failure worth retrying (network, timeout).
	ErrTransient = errors.New("transient store failure")
	// ErrTransactionsUnsupported is returned by RunInTransaction when the
	// deployment cannot run multi-document transactions.
	ErrTransactionsUnsupported = errors.New("transactions unsupported")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// OrderBy selects the sort of a loan query. The zero value sorts newest start first.
type OrderBy struct {
	Field     string
	Ascending bool
}

// EquipmentStore persists equipment units.
type EquipmentStore interface {
	GetEquipment(ctx context.Context, id string) (models.EquipmentUnit, error)
	CreateEquipment(ctx context.Context, unit models.EquipmentUnit) error
	UpdateEquipment(ctx context.Context, unit models.EquipmentUnit) error
	UpdateEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, at time.Time) error
	// UpdateEquipmentStatusFrom moves a unit from one status to another and
	// fails with models.ErrStatusChanged when the unit is in neither.
	UpdateEquipmentStatusFrom(ctx context.Context, id string, from, to models.EquipmentStatus, at time.Time) error
	SoftDeleteEquipment(ctx context.Context, id string, at time.Time) error
	QueryEquipment(ctx context.Context, filter models.EquipmentFilter) ([]models.EquipmentUnit, error)
}

// LoanStore persists borrowings and rentals, one collection per kind.
type LoanStore interface {
	GetLoan(ctx context.Context, kind models.LoanKind, id string) (models.LoanRecord, error)
	CreateLoanRecord(ctx context.Context, record models.LoanRecord) error
	UpdateLoanRecord(ctx context.Context, kind models.LoanKind, id string, patch models.LoanPatch, at time.Time) error
	// DiscardLoanRecord hard-deletes a record. Only saga compensation calls it.
	DiscardLoanRecord(ctx context.Context, kind models.LoanKind, id string) error
	SoftDeleteLoan(ctx context.Context, kind models.LoanKind, id string, at time.Time) error
	QueryLoanRecords(ctx context.Context, kind models.LoanKind, filter models.LoanFilter, order OrderBy) ([]models.LoanRecord, error)
	// CountOpenLoans counts open, non-deleted loans of either kind on a unit.
	CountOpenLoans(ctx context.Context, equipmentID string) (int, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	TouchUserSignIn(ctx context.Context, id string, at time.Time) error
}

// ReportStore persists daily report snapshots.
type ReportStore interface {
	SaveReportSnapshot(ctx context.Context, snapshot models.ReportSnapshot) error
	ListReportSnapshots(ctx context.Context, limit int) ([]models.ReportSnapshot, error)
}

// Transactor runs fn as one atomic unit of work. The context handed to fn
// must be used for every store call that belongs to the transaction.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the services need from persistence.
type Store interface {
	EquipmentStore
	LoanStore
	UserStore
	ReportStore
	Transactor
}
