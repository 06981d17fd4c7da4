package models

import "time"

type ComplianceStatus string

const (
	ComplianceNormal    ComplianceStatus = "normal"
	ComplianceWarned    ComplianceStatus = "warned"
	ComplianceSuspended ComplianceStatus = "suspended"
)

// Rank orders statuses so transitions can only move forward.
func (s ComplianceStatus) Rank() int {
	switch s {
	case ComplianceWarned:
		return 1
	case ComplianceSuspended:
		return 2
	default:
		return 0
	}
}

type ViolationKind string

const (
	ViolationLateCancellation ViolationKind = "late_cancellation"
	ViolationNoShow           ViolationKind = "no_show"
	ViolationComplaint        ViolationKind = "complaint"
)

type ComplianceRecord struct {
	MusicianID        string           `json:"musician_id" db:"musician_id"`
	LateCancellations int              `json:"late_cancellations" db:"late_cancellations"`
	NoShows           int              `json:"no_shows" db:"no_shows"`
	Complaints        int              `json:"complaints" db:"complaints"`
	Status            ComplianceStatus `json:"status" db:"status"`
	WarnedAt          *time.Time       `json:"warned_at,omitempty" db:"warned_at"`
	SuspendedAt       *time.Time       `json:"suspended_at,omitempty" db:"suspended_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// Total is the additive violation count used by the warning and suspension thresholds.
func (r *ComplianceRecord) Total() int {
	return r.LateCancellations + r.NoShows + r.Complaints
}

// Musician is the slice of a musician profile the settlement engine touches.
type Musician struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
