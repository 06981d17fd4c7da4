package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gigbook/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const complianceColumns = `musician_id, late_cancellations, no_shows, complaints, status,
	warned_at, suspended_at, updated_at`

// ComplianceThresholds decide when a musician is warned or suspended. The
// no-show limit is an independent trigger, not a weight on the sum.
type ComplianceThresholds struct {
	Warning          int
	Suspension       int
	NoShowSuspension int
}

func DefaultComplianceThresholds() ComplianceThresholds {
	return ComplianceThresholds{Warning: 3, Suspension: 5, NoShowSuspension: 2}
}

// Evaluate returns the status a record should hold. It never returns a status
// below the record's current one.
func (t ComplianceThresholds) Evaluate(r models.ComplianceRecord) models.ComplianceStatus {
	target := models.ComplianceNormal
	switch {
	case r.Total() >= t.Suspension || r.NoShows >= t.NoShowSuspension:
		target = models.ComplianceSuspended
	case r.Total() >= t.Warning:
		target = models.ComplianceWarned
	}

	if r.Status.Rank() > target.Rank() {
		return r.Status
	}
	return target
}

// ComplianceTransition is a status change that was durably applied.
type ComplianceTransition struct {
	MusicianID string                  `json:"musician_id"`
	From       models.ComplianceStatus `json:"from"`
	To         models.ComplianceStatus `json:"to"`
	Record     models.ComplianceRecord `json:"record"`
}

type ViolationInput struct {
	MusicianID     string
	Kind           models.ViolationKind
	BookingID      string
	CancellationID string
}

type ComplianceService struct {
	db         *sql.DB
	thresholds ComplianceThresholds
	notifier   Notifier
	log        *zap.Logger
	now        func() time.Time
}

func NewComplianceService(db *sql.DB, thresholds ComplianceThresholds, notifier Notifier, log *zap.Logger) *ComplianceService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ComplianceService{
		db:         db,
		thresholds: thresholds,
		notifier:   orNopNotifier(notifier),
		log:        log.Named("compliance"),
		now:        time.Now,
	}
}

// IsLateCancellation reports whether a cancellation at cancelledAt falls
// inside the window before the event start. Cancelling after the start is
// late too.
func IsLateCancellation(eventStart, cancelledAt time.Time, window time.Duration) bool {
	return eventStart.Sub(cancelledAt) < window
}

// ViolationFor maps a cancellation to the musician counter it increments, if
// any. Client-requested cancellations never penalise the musician.
func ViolationFor(category models.CancellationCategory, late bool) (models.ViolationKind, bool) {
	switch category {
	case models.CategoryNoShow:
		return models.ViolationNoShow, true
	case models.CategoryMusicianRequest:
		if late {
			return models.ViolationLateCancellation, true
		}
	}
	return "", false
}

// RecordViolationTx increments one counter and applies any threshold
// transition within the caller's transaction. The returned transition is nil
// when the status did not change.
func (s *ComplianceService) RecordViolationTx(ctx context.Context, tx *sql.Tx, in ViolationInput) (*ComplianceTransition, error) {
	var late, noShows, complaints int
	switch in.Kind {
	case models.ViolationLateCancellation:
		late = 1
	case models.ViolationNoShow:
		noShows = 1
	case models.ViolationComplaint:
		complaints = 1
	default:
		return nil, fmt.Errorf("unknown violation kind %q", in.Kind)
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO compliance_records (musician_id, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (musician_id) DO NOTHING`,
		in.MusicianID, now); err != nil {
		return nil, err
	}

	record := models.ComplianceRecord{MusicianID: in.MusicianID, UpdatedAt: now}
	err := tx.QueryRowContext(ctx, `
		UPDATE compliance_records
		SET late_cancellations = late_cancellations + $1, no_shows = no_shows + $2,
			complaints = complaints + $3, updated_at = $4
		WHERE musician_id = $5
		RETURNING late_cancellations, no_shows, complaints, status`,
		late, noShows, complaints, now, in.MusicianID).
		Scan(&record.LateCancellations, &record.NoShows, &record.Complaints, &record.Status)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO compliance_events (id, musician_id, booking_id, cancellation_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), in.MusicianID, nullString(in.BookingID), nullString(in.CancellationID),
		string(in.Kind), now); err != nil {
		return nil, err
	}

	return s.applyTransitionTx(ctx, tx, &record)
}

// RecordComplaint adds a complaint against a musician.
func (s *ComplianceService) RecordComplaint(ctx context.Context, musicianID, bookingID string) (*ComplianceTransition, error) {
	if musicianID == "" {
		return nil, validationError("Musician is required")
	}

	var transition *ComplianceTransition
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		transition, err = s.RecordViolationTx(ctx, tx, ViolationInput{
			MusicianID: musicianID,
			Kind:       models.ViolationComplaint,
			BookingID:  bookingID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Announce(ctx, transition)
	return transition, nil
}

// EnforcementCandidates lists musicians whose counters cross a threshold
// above their current status.
func (s *ComplianceService) EnforcementCandidates(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT musician_id FROM compliance_records
		WHERE (status = 'normal' AND (late_cancellations + no_shows + complaints >= $1 OR no_shows >= $3))
			OR (status = 'warned' AND (late_cancellations + no_shows + complaints >= $2 OR no_shows >= $3))
		ORDER BY musician_id
		LIMIT $4`,
		s.thresholds.Warning, s.thresholds.Suspension, s.thresholds.NoShowSuspension, limit)
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

// Enforce re-evaluates one musician's record and applies the transition the
// counters call for.
func (s *ComplianceService) Enforce(ctx context.Context, musicianID string) (*ComplianceTransition, error) {
	var transition *ComplianceTransition
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		record, err := scanCompliance(tx.QueryRowContext(ctx,
			`SELECT `+complianceColumns+` FROM compliance_records WHERE musician_id = $1 FOR UPDATE`, musicianID))
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError(MsgComplianceNotFound)
		}
		if err != nil {
			return err
		}

		transition, err = s.applyTransitionTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Announce(ctx, transition)
	return transition, nil
}

func (s *ComplianceService) GetRecord(ctx context.Context, musicianID string) (*models.ComplianceRecord, error) {
	record, err := scanCompliance(s.db.QueryRowContext(ctx,
		`SELECT `+complianceColumns+` FROM compliance_records WHERE musician_id = $1`, musicianID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError(MsgComplianceNotFound)
	}
	return record, err
}

// Reset is the administrative reset: counters go back to zero, status to
// normal and the musician becomes available again.
func (s *ComplianceService) Reset(ctx context.Context, musicianID, actor string) error {
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.now()
		result, err := tx.ExecContext(ctx, `
			UPDATE compliance_records
			SET late_cancellations = 0, no_shows = 0, complaints = 0, status = 'normal',
				warned_at = NULL, suspended_at = NULL, updated_at = $1
			WHERE musician_id = $2`,
			now, musicianID)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return notFoundError(MsgComplianceNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE musicians SET is_available = TRUE, updated_at = $1 WHERE id = $2`,
			now, musicianID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("compliance record reset", zap.String("musician_id", musicianID), zap.String("actor", actor))
	return nil
}

// Announce notifies the musician about a transition. Nil is ignored.
func (s *ComplianceService) Announce(ctx context.Context, t *ComplianceTransition) {
	if t == nil {
		return
	}

	note := models.Notification{
		UserID: t.MusicianID,
		Data: map[string]any{
			"lateCancellations": t.Record.LateCancellations,
			"noShows":           t.Record.NoShows,
			"complaints":        t.Record.Complaints,
		},
	}
	switch t.To {
	case models.ComplianceWarned:
		note.Type = models.NotifyComplianceWarning
		note.Title = "Account warning"
		note.Message = "Your cancellations and no-shows have reached the warning level. Further violations will suspend your account."
	case models.ComplianceSuspended:
		note.Type = models.NotifySuspension
		note.Title = "Account suspended"
		note.Message = "Your account has been suspended and you are no longer listed as available. Contact support to appeal."
	default:
		return
	}
	notifyAll(ctx, s.notifier, note)
}

func (s *ComplianceService) applyTransitionTx(ctx context.Context, tx *sql.Tx, record *models.ComplianceRecord) (*ComplianceTransition, error) {
	target := s.thresholds.Evaluate(*record)
	if target.Rank() <= record.Status.Rank() {
		return nil, nil
	}

	now := s.now()
	var result sql.Result
	var err error
	switch target {
	case models.ComplianceWarned:
		result, err = tx.ExecContext(ctx, `
			UPDATE compliance_records SET status = 'warned', warned_at = $1, updated_at = $1
			WHERE musician_id = $2 AND status = 'normal'`,
			now, record.MusicianID)
	case models.ComplianceSuspended:
		result, err = tx.ExecContext(ctx, `
			UPDATE compliance_records
			SET status = 'suspended', suspended_at = $1, warned_at = COALESCE(warned_at, $1), updated_at = $1
			WHERE musician_id = $2 AND status <> 'suspended'`,
			now, record.MusicianID)
	}
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	if target == models.ComplianceSuspended {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO musicians (id, is_available, updated_at)
			VALUES ($1, FALSE, $2)
			ON CONFLICT (id) DO UPDATE SET is_available = FALSE, updated_at = EXCLUDED.updated_at`,
			record.MusicianID, now); err != nil {
			return nil, err
		}
	}

	transition := &ComplianceTransition{MusicianID: record.MusicianID, From: record.Status, To: target}
	record.Status = target
	record.UpdatedAt = now
	transition.Record = *record

	s.log.Info("compliance status changed",
		zap.String("musician_id", record.MusicianID),
		zap.String("from", string(transition.From)),
		zap.String("to", string(transition.To)),
	)
	return transition, nil
}

func scanCompliance(row rowScanner) (*models.ComplianceRecord, error) {
	var r models.ComplianceRecord
	var warnedAt, suspendedAt sql.NullTime
	err := row.Scan(&r.MusicianID, &r.LateCancellations, &r.NoShows, &r.Complaints, &r.Status,
		&warnedAt, &suspendedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.WarnedAt = timePtr(warnedAt)
	r.SuspendedAt = timePtr(suspendedAt)
	return &r, nil
}
