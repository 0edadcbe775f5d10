// Package memory is an in-process implementation of repository.Store used by
// tests and local development. It is safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository"
)

// Store keeps every collection in maps guarded by one mutex.
type Store struct {
	mu        sync.RWMutex
	equipment map[string]models.EquipmentUnit
	loans     map[models.LoanKind]map[string]models.LoanRecord
	users     map[string]models.User
	snapshots map[string]models.ReportSnapshot

	txMu         sync.Mutex
	transactions bool
	perKindIndex bool
}

// Option configures a Store.
type Option func(*Store)

// WithTransactions makes RunInTransaction undo the equipment and loan writes
// made by fn when it fails.
func WithTransactions() Option {
	return func(s *Store) { s.transactions = true }
}

// WithPerKindLoanIndex limits the single open loan check of CreateLoanRecord
// to records of the same kind, as the MongoDB unique index does.
func WithPerKindLoanIndex() Option {
	return func(s *Store) { s.perKindIndex = true }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		equipment: make(map[string]models.EquipmentUnit),
		loans: map[models.LoanKind]map[string]models.LoanRecord{
			models.KindBorrowing: make(map[string]models.LoanRecord),
			models.KindRental:    make(map[string]models.LoanRecord),
		},
		users:     make(map[string]models.User),
		snapshots: make(map[string]models.ReportSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

type txKey struct{ store *Store }

// journal holds the undo steps of the writes made inside one transaction.
type journal struct {
	undo []func()
}

// RunInTransaction serialises transactions. When fn fails only the writes
// fn made are undone; concurrent writes outside the transaction survive.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return repository.ErrTransactionsUnsupported
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{s}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) journal(ctx context.Context) *journal {
	j, _ := ctx.Value(txKey{s}).(*journal)
	return j
}

// rememberEquipmentLocked records how to put unit id back as it is now.
func (s *Store) rememberEquipmentLocked(ctx context.Context, id string) {
	j := s.journal(ctx)
	if j == nil {
		return
	}
	prev, existed := s.equipment[id]
	j.undo = append(j.undo, func() {
		if existed {
			s.equipment[id] = prev
		} else {
			delete(s.equipment, id)
		}
	})
}

func (s *Store) rememberLoanLocked(ctx context.Context, records map[string]models.LoanRecord, id string) {
	j := s.journal(ctx)
	if j == nil {
		return
	}
	prev, existed := records[id]
	j.undo = append(j.undo, func() {
		if existed {
			records[id] = prev
		} else {
			delete(records, id)
		}
	})
}

// GetEquipment returns a unit, deleted or not.
func (s *Store) GetEquipment(_ context.Context, id string) (models.EquipmentUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.equipment[id]
	if !ok {
		return models.EquipmentUnit{}, fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	return unit, nil
}

// CreateEquipment inserts a unit. Re-inserting an existing ID is a no-op.
func (s *Store) CreateEquipment(ctx context.Context, unit models.EquipmentUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.equipment[unit.ID]; exists {
		return nil
	}
	unit.ImageURL = ""
	s.rememberEquipmentLocked(ctx, unit.ID)
	s.equipment[unit.ID] = unit
	return nil
}

// UpdateEquipment replaces a stored unit.
func (s *Store) UpdateEquipment(ctx context.Context, unit models.EquipmentUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.equipment[unit.ID]; !ok {
		return fmt.Errorf("equipment %s: %w", unit.ID, models.ErrNotFound)
	}
	unit.ImageURL = ""
	s.rememberEquipmentLocked(ctx, unit.ID)
	s.equipment[unit.ID] = unit
	return nil
}

// UpdateEquipmentStatus sets the status and touches the timestamps.
func (s *Store) UpdateEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.equipment[id]
	if !ok {
		return fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	s.rememberEquipmentLocked(ctx, id)
	unit.Status = status
	unit.LastUpdated = at
	unit.UpdatedAt = at
	s.equipment[id] = unit
	return nil
}

// UpdateEquipmentStatusFrom moves a unit from one status to another. A unit
// already at to is left as is.
func (s *Store) UpdateEquipmentStatusFrom(ctx context.Context, id string, from, to models.EquipmentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.equipment[id]
	if !ok {
		return fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	switch unit.Status {
	case to:
		return nil
	case from:
	default:
		return fmt.Errorf("equipment %s is %s, not %s: %w", id, unit.Status, from, models.ErrStatusChanged)
	}
	s.rememberEquipmentLocked(ctx, id)
	unit.Status = to
	unit.LastUpdated = at
	unit.UpdatedAt = at
	s.equipment[id] = unit
	return nil
}

// SoftDeleteEquipment flags a unit as deleted.
func (s *Store) SoftDeleteEquipment(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.equipment[id]
	if !ok {
		return fmt.Errorf("equipment %s: %w", id, models.ErrNotFound)
	}
	s.rememberEquipmentLocked(ctx, id)
	deletedAt := at
	unit.Deleted = true
	unit.DeletedAt = &deletedAt
	unit.UpdatedAt = at
	s.equipment[id] = unit
	return nil
}

// QueryEquipment lists units matching the filter ordered by equipment code.
func (s *Store) QueryEquipment(_ context.Context, filter models.EquipmentFilter) ([]models.EquipmentUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.EquipmentUnit, 0, len(s.equipment))
	for _, unit := range s.equipment {
		if unit.Deleted && !filter.IncludeDeleted {
			continue
		}
		if filter.Status != "" && unit.Status != filter.Status {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(unit.Category, filter.Category) {
			continue
		}
		if filter.EquipmentID != "" && unit.EquipmentID != filter.EquipmentID {
			continue
		}
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EquipmentID != out[j].EquipmentID {
			return out[i].EquipmentID < out[j].EquipmentID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) collection(kind models.LoanKind) (map[string]models.LoanRecord, error) {
	records, ok := s.loans[kind]
	if !ok {
		return nil, fmt.Errorf("unknown loan kind %q: %w", kind, models.ErrValidation)
	}
	return records, nil
}

// GetLoan returns a loan, deleted or not.
func (s *Store) GetLoan(_ context.Context, kind models.LoanKind, id string) (models.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.collection(kind)
	if err != nil {
		return models.LoanRecord{}, err
	}
	record, ok := records[id]
	if !ok {
		return models.LoanRecord{}, fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return record, nil
}

// CreateLoanRecord inserts a loan. Re-inserting an existing ID is a no-op;
// a second open loan on the same unit is rejected.
func (s *Store) CreateLoanRecord(ctx context.Context, record models.LoanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.collection(record.Kind)
	if err != nil {
		return err
	}
	if _, exists := records[record.ID]; exists {
		return nil
	}
	if record.IsOpen() && s.conflictingLoansLocked(record) > 0 {
		return fmt.Errorf("equipment %s: %w", record.EquipmentID, models.ErrAlreadyOnLoan)
	}
	s.rememberLoanLocked(ctx, records, record.ID)
	records[record.ID] = record
	return nil
}

// UpdateLoanRecord applies a patch.
func (s *Store) UpdateLoanRecord(ctx context.Context, kind models.LoanKind, id string, patch models.LoanPatch, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.collection(kind)
	if err != nil {
		return err
	}
	record, ok := records[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	s.rememberLoanLocked(ctx, records, id)
	patch.Apply(&record)
	record.UpdatedAt = at
	records[id] = record
	return nil
}

// DiscardLoanRecord removes a record outright. Missing records are ignored.
func (s *Store) DiscardLoanRecord(ctx context.Context, kind models.LoanKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.collection(kind)
	if err != nil {
		return err
	}
	s.rememberLoanLocked(ctx, records, id)
	delete(records, id)
	return nil
}

// SoftDeleteLoan flags a loan as deleted.
func (s *Store) SoftDeleteLoan(ctx context.Context, kind models.LoanKind, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.collection(kind)
	if err != nil {
		return err
	}
	record, ok := records[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	s.rememberLoanLocked(ctx, records, id)
	deletedAt := at
	record.Deleted = true
	record.DeletedAt = &deletedAt
	record.UpdatedAt = at
	records[id] = record
	return nil
}

// QueryLoanRecords lists loans of one kind matching the filter.
func (s *Store) QueryLoanRecords(_ context.Context, kind models.LoanKind, filter models.LoanFilter, order repository.OrderBy) ([]models.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.collection(kind)
	if err != nil {
		return nil, err
	}

	out := make([]models.LoanRecord, 0, len(records))
	for _, r := range records {
		if matchLoan(r, filter) {
			out = append(out, r)
		}
	}

	key := sortKey(order.Field)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(out[i]), key(out[j])
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		if order.Ascending {
			return a.Before(b)
		}
		return a.After(b)
	})
	return out, nil
}

func matchLoan(r models.LoanRecord, filter models.LoanFilter) bool {
	if r.Deleted && !filter.IncludeDeleted {
		return false
	}
	if filter.EquipmentID != "" && r.EquipmentID != filter.EquipmentID {
		return false
	}
	if filter.Status != "" && r.Status != filter.Status {
		return false
	}
	if filter.OpenOnly && !r.IsOpen() {
		return false
	}
	if filter.StartFrom != nil && r.StartDate.Before(*filter.StartFrom) {
		return false
	}
	if filter.StartTo != nil && r.StartDate.After(*filter.StartTo) {
		return false
	}
	return true
}

func sortKey(field string) func(models.LoanRecord) time.Time {
	switch field {
	case "dueDate":
		return func(r models.LoanRecord) time.Time { return r.DueDate }
	case "createdAt":
		return func(r models.LoanRecord) time.Time { return r.CreatedAt }
	default:
		return func(r models.LoanRecord) time.Time { return r.StartDate }
	}
}

// CountOpenLoans counts open, non-deleted loans of either kind on a unit.
func (s *Store) CountOpenLoans(_ context.Context, equipmentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openLoansLocked(equipmentID), nil
}

// conflictingLoansLocked counts the open loans that stop record from opening.
func (s *Store) conflictingLoansLocked(record models.LoanRecord) int {
	if !s.perKindIndex {
		return s.openLoansLocked(record.EquipmentID)
	}
	count := 0
	for _, r := range s.loans[record.Kind] {
		if r.EquipmentID == record.EquipmentID && !r.Deleted && r.IsOpen() {
			count++
		}
	}
	return count
}

func (s *Store) openLoansLocked(equipmentID string) int {
	count := 0
	for _, records := range s.loans {
		for _, r := range records {
			if r.EquipmentID == equipmentID && !r.Deleted && r.IsOpen() {
				count++
			}
		}
	}
	return count
}

// CreateUser inserts an account; emails are unique case-insensitively.
func (s *Store) CreateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.users[email]; exists {
		return fmt.Errorf("user %s: %w", email, models.ErrEmailTaken)
	}
	user.Email = email
	s.users[email] = user
	return nil
}

// GetUserByEmail looks an account up by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[strings.ToLower(email)]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	return user, nil
}

// TouchUserSignIn records the last successful sign in.
func (s *Store) TouchUserSignIn(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for email, user := range s.users {
		if user.ID == id {
			signedIn := at
			user.LastSignInAt = &signedIn
			s.users[email] = user
			return nil
		}
	}
	return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
}

// SaveReportSnapshot stores or replaces a snapshot by ID.
func (s *Store) SaveReportSnapshot(_ context.Context, snapshot models.ReportSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

// ListReportSnapshots returns the newest snapshots first.
func (s *Store) ListReportSnapshots(_ context.Context, limit int) ([]models.ReportSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ReportSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
