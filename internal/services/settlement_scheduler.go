package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/gigbook/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type SweepName string

const (
	SweepAutoRelease        SweepName = "auto_release"
	SweepIncompleteBookings SweepName = "incomplete_bookings"
	SweepCompliance         SweepName = "compliance"
)

// AllSweeps is the order RunAll executes sweeps in.
var AllSweeps = []SweepName{SweepAutoRelease, SweepIncompleteBookings, SweepCompliance}

func ParseSweepName(s string) (SweepName, error) {
	for _, name := range AllSweeps {
		if string(name) == s {
			return name, nil
		}
	}
	return "", validationError(fmt.Sprintf("Unknown sweep %q", s))
}

type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SweepReport summarises one sweep. Skipped is set when another instance held
// the sweep lock.
type SweepReport struct {
	Sweep      SweepName   `json:"sweep"`
	Processed  int         `json:"processed"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Skipped    bool        `json:"skipped"`
	Errors     []ItemError `json:"errors,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

type escrowReleaser interface {
	ReleaseForBooking(ctx context.Context, bookingID, releasedBy string, reason models.ReleaseReason, asAdmin bool) (*EscrowResult, error)
}

type complianceEnforcer interface {
	EnforcementCandidates(ctx context.Context, limit int) ([]string, error)
	Enforce(ctx context.Context, musicianID string) (*ComplianceTransition, error)
}

type SchedulerConfig struct {
	Workers          int
	BatchSize        int
	AutoReleaseAfter time.Duration
	IncompleteAfter  time.Duration
	LockTTL          time.Duration
	ReminderEvery    time.Duration
}

// SettlementScheduler runs the periodic sweeps. Each item is processed in its
// own transaction by the owning service; one failure never aborts a batch.
type SettlementScheduler struct {
	db         *sql.DB
	escrow     escrowReleaser
	compliance complianceEnforcer
	locker     Locker
	notifier   Notifier
	log        *zap.Logger
	cfg        SchedulerConfig
	now        func() time.Time
}

func NewSettlementScheduler(db *sql.DB, escrow escrowReleaser, compliance complianceEnforcer, locker Locker, notifier Notifier, log *zap.Logger, cfg SchedulerConfig) *SettlementScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.AutoReleaseAfter <= 0 {
		cfg.AutoReleaseAfter = 24 * time.Hour
	}
	if cfg.IncompleteAfter <= 0 {
		cfg.IncompleteAfter = 48 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.ReminderEvery <= 0 {
		cfg.ReminderEvery = 24 * time.Hour
	}
	return &SettlementScheduler{
		db:         db,
		escrow:     escrow,
		compliance: compliance,
		locker:     locker,
		notifier:   orNopNotifier(notifier),
		log:        log.Named("scheduler"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// RunAll runs every sweep in order and returns their reports. A sweep that
// cannot list its candidates is reported with its error and the rest still
// run.
func (s *SettlementScheduler) RunAll(ctx context.Context) ([]*SweepReport, error) {
	reports := make([]*SweepReport, 0, len(AllSweeps))
	var firstErr error
	for _, name := range AllSweeps {
		report, err := s.Run(ctx, name)
		if err != nil {
			s.log.Error("sweep failed", zap.String("sweep", string(name)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, report)
	}
	return reports, firstErr
}

func (s *SettlementScheduler) Run(ctx context.Context, name SweepName) (*SweepReport, error) {
	report := &SweepReport{Sweep: name, StartedAt: s.now()}

	held, err := s.acquire(ctx, "sweep:"+string(name), s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !held {
		report.Skipped = true
		report.FinishedAt = s.now()
		s.log.Info("sweep already running elsewhere", zap.String("sweep", string(name)))
		return report, nil
	}
	defer s.release(context.WithoutCancel(ctx), "sweep:"+string(name))

	var ids []string
	var handle func(context.Context, string) error
	switch name {
	case SweepAutoRelease:
		ids, err = s.dueForRelease(ctx)
		handle = s.autoRelease
	case SweepIncompleteBookings:
		ids, err = s.overdueCompletions(ctx)
		handle = s.remind
	case SweepCompliance:
		ids, err = s.compliance.EnforcementCandidates(ctx, s.cfg.BatchSize)
		handle = s.enforce
	default:
		return nil, validationError(fmt.Sprintf("Unknown sweep %q", name))
	}
	if err != nil {
		return nil, err
	}

	s.process(ctx, report, ids, handle)
	report.FinishedAt = s.now()

	s.log.Info("sweep finished",
		zap.String("sweep", string(name)),
		zap.Int("processed", report.Processed),
		zap.Int("successful", report.Successful),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *SettlementScheduler) process(ctx context.Context, report *SweepReport, ids []string, handle func(context.Context, string) error) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	for _, id := range ids {
		id := id // per-iteration copy; module targets go 1.21 loop semantics
		g.Go(func() error {
			err := s.safely(ctx, id, handle)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if err == nil {
				report.Successful++
				return nil
			}
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ID: id, Error: sweepErrorMessage(err)})
			s.log.Warn("sweep item failed", zap.String("sweep", string(report.Sweep)), zap.String("id", id), zap.Error(err))
			return nil
		})
	}
	_ = g.Wait()
}

func (s *SettlementScheduler) safely(ctx context.Context, id string, handle func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s: %v", id, r)
		}
	}()
	return handle(ctx, id)
}

func (s *SettlementScheduler) autoRelease(ctx context.Context, bookingID string) error {
	_, err := s.escrow.ReleaseForBooking(ctx, bookingID, "", models.ReleaseAuto, false)
	return err
}

func (s *SettlementScheduler) enforce(ctx context.Context, musicianID string) error {
	_, err := s.compliance.Enforce(ctx, musicianID)
	return err
}

func (s *SettlementScheduler) remind(ctx context.Context, bookingID string) error {
	held, err := s.acquire(ctx, "reminder:"+bookingID, s.cfg.ReminderEvery)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}

	var musicianID string
	var eventStart time.Time
	if err := s.db.QueryRowContext(ctx,
		`SELECT musician_id, event_start FROM bookings WHERE id = $1`, bookingID).
		Scan(&musicianID, &eventStart); err != nil {
		return err
	}

	notifyAll(ctx, s.notifier, models.Notification{
		UserID:  musicianID,
		Type:    models.NotifyCompletionReminder,
		Title:   "Mark your gig complete",
		Message: "Your gig has finished. Mark the booking complete so your payment can be released.",
		Data: map[string]any{
			"bookingId":  bookingID,
			"eventStart": eventStart,
		},
	})
	return nil
}

func (s *SettlementScheduler) dueForRelease(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM bookings
		WHERE status = 'completed' AND payment_status = 'paid' AND funds_released_at IS NULL
			AND marked_complete_at <= $1
		ORDER BY marked_complete_at
		LIMIT $2`,
		s.now().Add(-s.cfg.AutoReleaseAfter), s.cfg.BatchSize)
}

func (s *SettlementScheduler) overdueCompletions(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM bookings
		WHERE status = 'confirmed' AND payment_status = 'paid' AND marked_complete_at IS NULL
			AND event_start < $1
		ORDER BY event_start
		LIMIT $2`,
		s.now().Add(-s.cfg.IncompleteAfter), s.cfg.BatchSize)
}

func (s *SettlementScheduler) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SettlementScheduler) acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.locker == nil {
		return true, nil
	}
	return s.locker.Acquire(ctx, key, ttl)
}

func (s *SettlementScheduler) release(ctx context.Context, key string) {
	if s.locker == nil {
		return
	}
	if err := s.locker.Release(ctx, key); err != nil {
		s.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
	}
}

func sweepErrorMessage(err error) string {
	if msg := ClientMessage(err); msg != "" {
		return msg
	}
	return MsgInternal
}
