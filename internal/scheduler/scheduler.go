package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/config"
	"github.com/mamadbah2/equiptrack/internal/domain/lifecycle"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/pkg/clients/notifier"
)

const jobTimeout = 2 * time.Minute

// Reporter is the part of the reporting service the jobs drive.
type Reporter interface {
	SnapshotDaily(ctx context.Context, day time.Time) (string, error)
	OverdueLoans(ctx context.Context, now time.Time) ([]models.LoanRecord, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	reporter Reporter
	notifier notifier.Client
	cfg      config.ReportingConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a scheduler running in the configured timezone.
// notify may be nil, in which case the overdue sweep only logs.
func NewScheduler(cfg config.ReportingConfig, reporter Reporter, notify notifier.Client, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location())),
		reporter: reporter,
		notifier: notify,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("snapshot_cron", s.cfg.SnapshotCron),
		zap.String("overdue_cron", s.cfg.OverdueCron),
		zap.String("timezone", s.cfg.Location().String()))

	if _, err := s.cron.AddFunc(s.cfg.SnapshotCron, s.snapshotJob); err != nil {
		return fmt.Errorf("schedule daily snapshot %q: %w", s.cfg.SnapshotCron, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.OverdueCron, s.overdueJob); err != nil {
		return fmt.Errorf("schedule overdue reminders %q: %w", s.cfg.OverdueCron, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) snapshotJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.RunSnapshot(ctx); err != nil {
		s.logger.Error("failed to store daily snapshot", zap.Error(err))
	}
}

func (s *Scheduler) overdueJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sent, err := s.RemindOverdue(ctx)
	if err != nil {
		s.logger.Error("failed to send overdue reminders", zap.Error(err))
		return
	}
	s.logger.Info("overdue reminders sent", zap.Int("count", sent))
}

// RunSnapshot stores the report of the previous day.
func (s *Scheduler) RunSnapshot(ctx context.Context) error {
	s.logger.Info("generating daily snapshot")
	summary, err := s.reporter.SnapshotDaily(ctx, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("daily snapshot", zap.String("summary", summary))
	return nil
}

// RemindOverdue sends one reminder per overdue open loan and returns how many
// were delivered. A failed delivery does not stop the sweep.
func (s *Scheduler) RemindOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.reporter.OverdueLoans(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load overdue loans: %w", err)
	}

	sent := 0
	for _, loan := range overdue {
		req := reminderFor(loan, now)
		if s.notifier == nil {
			s.logger.Info("overdue loan", zap.String("loan_id", loan.ID), zap.String("text", req.Text))
			continue
		}
		if err := s.notifier.SendReminder(ctx, req); err != nil {
			s.logger.Warn("reminder not delivered", zap.String("loan_id", loan.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func reminderFor(loan models.LoanRecord, now time.Time) notifier.ReminderRequest {
	days := int(lifecycle.OverdueFor(loan, now).Hours() / 24)
	label := "Borrowing"
	if loan.Kind == models.KindRental {
		label = "Rental"
	}
	return notifier.ReminderRequest{
		Text: fmt.Sprintf("%s %s of equipment %s held by %s was due on %s (%d days overdue).",
			label, loan.ID, loan.EquipmentID, loan.Holder, loan.DueDate.Format("2006-01-02"), days),
		LoanID:      loan.ID,
		Kind:        string(loan.Kind),
		EquipmentID: loan.EquipmentID,
		Holder:      loan.Holder,
		DueDate:     loan.DueDate,
	}
}
