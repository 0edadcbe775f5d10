// Package loans orchestrates borrowings and rentals. Opening or closing a
// loan writes the loan record and the equipment status as one unit of work:
// inside a store transaction when the store supports it, otherwise as a saga
// that compensates the first write when the second fails.
package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/metrics"
	"github.com/mamadbah2/equiptrack/internal/repository"
)

const (
	defaultBorrowPeriod = 7 * 24 * time.Hour
	defaultRentalPeriod = 30 * 24 * time.Hour
)

// Store is the persistence the loan orchestration needs.
type Store interface {
	repository.EquipmentStore
	repository.LoanStore
	repository.Transactor
}

// ImageResolver turns a unit's image key into a display URL.
type ImageResolver interface {
	ImageURL(ctx context.Context, unit models.EquipmentUnit) string
}

// Options tunes a Service.
type Options struct {
	Images  ImageResolver
	Retry   repository.RetryPolicy
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service implements the loan operations.
type Service struct {
	store   Store
	images  ImageResolver
	retry   repository.RetryPolicy
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewService wires a loan service.
func NewService(store Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxTries == 0 {
		opts.Retry = repository.DefaultRetryPolicy()
	}
	return &Service{
		store:   store,
		images:  opts.Images,
		retry:   opts.Retry,
		metrics: opts.Metrics,
		now:     opts.Now,
		logger:  logger,
	}
}

// unitOfWork runs step inside a transaction, or directly in saga mode when
// the store has no transactions. step compensates its own writes only when
// saga is true.
func (s *Service) unitOfWork(ctx context.Context, step func(ctx context.Context, saga bool) error) error {
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		return step(ctx, false)
	})
	if errors.Is(err, repository.ErrTransactionsUnsupported) {
		return step(ctx, true)
	}
	return err
}

// write retries transient failures when retry is set. Inside a transaction
// the driver owns retries.
func (s *Service) write(ctx context.Context, retry bool, op string, fn func(ctx context.Context) error) error {
	if !retry {
		return fn(ctx)
	}
	policy := s.retry
	policy.OnRetry = func(err error, wait time.Duration) {
		s.metrics.WriteRetry(op)
		s.logger.Warn("retrying store write", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	}
	return repository.RetryErr(ctx, policy, fn)
}

// open inserts record and moves its unit out of Available. The status write
// only applies while the unit is still in the status read above, so when two
// opens of different kinds race past the open loan count the loser is
// compensated instead of leaving two open loans.
func (s *Service) open(ctx context.Context, record models.LoanRecord) error {
	err := s.unitOfWork(ctx, func(ctx context.Context, saga bool) error {
		unit, err := s.store.GetEquipment(ctx, record.EquipmentID)
		if err != nil {
			return err
		}
		count, err := s.store.CountOpenLoans(ctx, unit.ID)
		if err != nil {
			return fmt.Errorf("count open loans of %s: %w", unit.ID, err)
		}
		target, err := lifecycle.Open(record.Kind, unit, count > 0)
		if err != nil {
			return err
		}

		if err := s.write(ctx, saga, "create_loan", func(ctx context.Context) error {
			return s.store.CreateLoanRecord(ctx, record)
		}); err != nil {
			return fmt.Errorf("create %s: %w", record.Kind, err)
		}

		err = s.write(ctx, saga, "update_equipment_status", func(ctx context.Context) error {
			return s.store.UpdateEquipmentStatusFrom(ctx, unit.ID, unit.Status, target, record.CreatedAt)
		})
		if err == nil {
			return nil
		}
		err = fmt.Errorf("mark equipment %s %s: %w", unit.ID, target, err)
		if !saga {
			return err
		}

		cerr := s.write(ctx, saga, "discard_loan", func(ctx context.Context) error {
			return s.store.DiscardLoanRecord(ctx, record.Kind, record.ID)
		})
		if cerr != nil {
			s.metrics.PartialFailure(string(record.Kind), "open")
			return &models.PartialFailureError{Op: "open " + string(record.Kind) + " " + record.ID, Cause: err, Compensate: cerr}
		}
		return err
	})
	s.recordTransition(record.Kind, "open", record.ID, err)
	return err
}

type closer func(record models.LoanRecord, now time.Time) (models.LoanPatch, models.EquipmentStatus, error)

// close applies the closing patch decided by decide and returns the unit to
// the status it yields.
func (s *Service) close(ctx context.Context, kind models.LoanKind, id, action string, decide closer) (models.LoanRecord, error) {
	var closed models.LoanRecord
	err := s.unitOfWork(ctx, func(ctx context.Context, saga bool) error {
		record, err := s.liveLoan(ctx, kind, id)
		if err != nil {
			return err
		}
		now := s.now()
		patch, target, err := decide(record, now)
		if err != nil {
			return err
		}

		if err := s.write(ctx, saga, "update_loan", func(ctx context.Context) error {
			return s.store.UpdateLoanRecord(ctx, kind, id, patch, now)
		}); err != nil {
			return fmt.Errorf("%s %s %s: %w", action, kind, id, err)
		}

		err = s.write(ctx, saga, "update_equipment_status", func(ctx context.Context) error {
			return s.store.UpdateEquipmentStatus(ctx, record.EquipmentID, target, now)
		})
		if err != nil {
			err = fmt.Errorf("mark equipment %s %s: %w", record.EquipmentID, target, err)
			if !saga {
				return err
			}
			cerr := s.write(ctx, saga, "reopen_loan", func(ctx context.Context) error {
				return s.store.UpdateLoanRecord(ctx, kind, id, lifecycle.ReopenPatch(record), record.UpdatedAt)
			})
			if cerr != nil {
				s.metrics.PartialFailure(string(kind), action)
				return &models.PartialFailureError{Op: action + " " + string(kind) + " " + id, Cause: err, Compensate: cerr}
			}
			return err
		}

		patch.Apply(&record)
		record.UpdatedAt = now
		closed = record
		return nil
	})
	s.recordTransition(kind, action, id, err)
	if err != nil {
		return models.LoanRecord{}, err
	}
	return closed, nil
}

func (s *Service) recordTransition(kind models.LoanKind, action, id string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
		s.logger.Info("loan transition", zap.String("kind", string(kind)), zap.String("action", action), zap.String("id", id))
	case errors.Is(err, models.ErrPartialFailure):
		outcome = "partial_failure"
		s.logger.Error("loan transition left half applied", zap.String("kind", string(kind)), zap.String("action", action), zap.String("id", id), zap.Error(err))
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrIllegalTransition), errors.Is(err, models.ErrAlreadyOnLoan),
		errors.Is(err, models.ErrLoanClosed):
		outcome = "rejected"
	default:
		outcome = "error"
		s.logger.Error("loan transition failed", zap.String("kind", string(kind)), zap.String("action", action), zap.String("id", id), zap.Error(err))
	}
	s.metrics.LoanTransition(string(kind), action, outcome)
}

// update applies an edit that does not open or close the loan.
func (s *Service) update(ctx context.Context, kind models.LoanKind, id string, patch models.LoanPatch) (models.LoanRecord, error) {
	record, err := s.liveLoan(ctx, kind, id)
	if err != nil {
		return models.LoanRecord{}, err
	}
	now := s.now()
	if err := s.write(ctx, true, "update_loan", func(ctx context.Context) error {
		return s.store.UpdateLoanRecord(ctx, kind, id, patch, now)
	}); err != nil {
		return models.LoanRecord{}, fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	patch.Apply(&record)
	record.UpdatedAt = now
	return record, nil
}

// remove soft-deletes a closed loan.
func (s *Service) remove(ctx context.Context, kind models.LoanKind, id string) error {
	record, err := s.liveLoan(ctx, kind, id)
	if err != nil {
		return err
	}
	if record.IsOpen() {
		return fmt.Errorf("delete %s %s: %w", kind, id, models.ErrOpenLoan)
	}
	if err := s.write(ctx, true, "delete_loan", func(ctx context.Context) error {
		return s.store.SoftDeleteLoan(ctx, kind, id, s.now())
	}); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	s.logger.Info("loan deleted", zap.String("kind", string(kind)), zap.String("id", id))
	return nil
}

func (s *Service) liveLoan(ctx context.Context, kind models.LoanKind, id string) (models.LoanRecord, error) {
	record, err := s.store.GetLoan(ctx, kind, id)
	if err != nil {
		return models.LoanRecord{}, err
	}
	if record.Deleted {
		return models.LoanRecord{}, fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return record, nil
}
