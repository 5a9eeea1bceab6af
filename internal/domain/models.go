// Package domain defines the core data types of the posting backend: the
// ledger record written for every post attempt, the per-user usage record
// backing the daily free-tier quota, and the post method discriminant.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// PostMethod discriminates how a post reached the platform.
//
//   - MethodAPI: this system called the posting platform itself.
//   - MethodManual / MethodCommunity: a human posted out-of-band and is
//     recording the post after the fact; a platform id may arrive later.
type PostMethod string

const (
	MethodAPI       PostMethod = "api"
	MethodManual    PostMethod = "manual"
	MethodCommunity PostMethod = "community"
)

// Valid reports whether m is one of the known post methods.
func (m PostMethod) Valid() bool {
	switch m {
	case MethodAPI, MethodManual, MethodCommunity:
		return true
	}
	return false
}

// ParseMethod normalizes and validates a user-supplied method string.
func ParseMethod(s string) (PostMethod, bool) {
	m := PostMethod(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

// LedgerRecord is one entry in the post ledger: exactly one per logical post
// attempt. Records are keyed by "<method>_<unix millis>"; the key is monotonic
// enough in practice and a collision overwrites (last write wins) rather than
// erroring.
//
// MonthKey is derived from CreatedAt once and never changes afterwards; the
// monthly platform-write quota counts only MethodAPI records for the current
// month. NormalizedText (whitespace collapsed, case preserved) is what the
// duplicate guard matches on.
type LedgerRecord struct {
	ID             string     `json:"id"`
	CreatedAt      int64      `json:"ts"`    // seconds since epoch, UTC
	MonthKey       string     `json:"month"` // "YYYY-MM" from CreatedAt
	NormalizedText string     `json:"norm_text"`
	Method         PostMethod `json:"method"`
	PlatformID     string     `json:"platform_id,omitempty"`
	PlatformURL    string     `json:"platform_url,omitempty"`
}

// NewRecordID builds the ledger key for a record created at t.
func NewRecordID(method PostMethod, t time.Time) string {
	return fmt.Sprintf("%s_%d", method, t.UnixMilli())
}

// MonthKeyFor formats the quota window key for t in UTC.
func MonthKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayKeyFor formats the daily usage window key for t in UTC.
func DayKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NormalizeText collapses all runs of whitespace to single spaces and trims
// the ends. Case is preserved; the duplicate guard is deliberately
// case-sensitive.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// UsageRecord tracks a user's daily generation count. The count is never
// reset by a job: readers compare DayKey against today and treat a stale key
// as zero (lazy rollover).
type UsageRecord struct {
	UserID      string    `json:"user_id"     gorm:"type:varchar(64);primaryKey"`
	DayKey      string    `json:"day_key"     gorm:"type:char(10);not null"`
	Generations int       `json:"generations" gorm:"not null;default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for UsageRecord.
func (UsageRecord) TableName() string { return "usage_records" }
