// Package usage implements the per-user daily generation allowance.
//
// Free users get a fixed number of generations per UTC day; paid users are
// unlimited. Day rollover is lazy: the stored day key is compared against the
// current day on every read, and a stale row simply counts as zero. Nothing
// resets rows in the background.
//
// The tracker is deliberately forgiving: a failed plan lookup or a failed
// counter read treats the user as a free user with an intact allowance, and a
// failed counter write is retried a few times and then dropped with a log
// line. Undercounting a generation is preferred over blocking one.
package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-banger-backend/internal/domain"
	"github.com/tbourn/go-banger-backend/internal/repo"
)

// AnonymousUser is the bucket all unauthenticated requests share.
const AnonymousUser = "anonymous"

// Plan reasons reported alongside an allowance decision.
const (
	ReasonUnlimited    = "unlimited"
	ReasonFreeTier     = "free_tier"
	ReasonLimitReached = "limit_reached"
)

// PlanSource answers whether a user is on a paid plan. The zero decision
// (free) must be returned with a nil error when the source has no data for
// the user.
type PlanSource interface {
	IsPaid(ctx context.Context, userID string) (bool, error)
}

// Status is the point-in-time usage view returned to callers. DailyLimit
// and Remaining are -1 for unlimited plans.
type Status struct {
	UserID      string `json:"user_id"`
	Plan        string `json:"plan"`
	DailyLimit  int    `json:"daily_limit"`
	Used        int    `json:"used"`
	Remaining   int    `json:"remaining"`
	CanGenerate bool   `json:"can_generate"`
	IsPaid      bool   `json:"is_paid"`
	DayKey      string `json:"day"`
}

// Tracker enforces the daily generation allowance.
type Tracker struct {
	// DB is the database handle used for usage rows.
	DB *gorm.DB
	// Plans resolves paid status; nil means everyone is free tier.
	Plans PlanSource
	// FreeDailyLimit is the allowance for free users per UTC day.
	FreeDailyLimit int

	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time
	// Retries and Backoff govern counter writes; attempt n waits n*Backoff.
	Retries int
	Backoff time.Duration

	mu sync.Mutex
}

// NewTracker constructs a Tracker with the default write-retry posture.
func NewTracker(db *gorm.DB, plans PlanSource, freeDailyLimit int) *Tracker {
	return &Tracker{
		DB:             db,
		Plans:          plans,
		FreeDailyLimit: freeDailyLimit,
		Now:            time.Now,
		Retries:        3,
		Backoff:        500 * time.Millisecond,
	}
}

// CanGenerate decides whether userID may generate right now. It returns the
// decision, the remaining allowance (-1 for unlimited), and the reason.
// Lookup failures fail open: the user is treated as free with whatever
// allowance the local counter allows.
func (t *Tracker) CanGenerate(ctx context.Context, userID string) (bool, int, string) {
	userID = normalizeUser(userID)

	if t.isPaid(ctx, userID) {
		return true, -1, ReasonUnlimited
	}

	used := t.usedToday(ctx, userID)
	if used >= t.FreeDailyLimit {
		return false, 0, ReasonLimitReached
	}
	return true, t.FreeDailyLimit - used, ReasonFreeTier
}

// Increment records one generation for userID. Paid users are not counted.
// Write failures are retried and then dropped; Increment never blocks the
// caller's request on storage health.
func (t *Tracker) Increment(ctx context.Context, userID string) {
	userID = normalizeUser(userID)
	if t.isPaid(ctx, userID) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	day := domain.DayKeyFor(t.now())
	err := t.withRetry(ctx, func() error {
		rec, err := repo.GetUsage(ctx, t.DB, userID)
		if errors.Is(err, repo.ErrNotFound) {
			rec = &domain.UsageRecord{UserID: userID, DayKey: day}
		} else if err != nil {
			return err
		}
		if rec.DayKey != day {
			rec.DayKey = day
			rec.Generations = 0
		}
		rec.Generations++
		return repo.SaveUsage(ctx, t.DB, rec)
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).
			Msg("usage: dropping generation count after retries")
	}
}

// Status reports the current allowance for userID.
func (t *Tracker) Status(ctx context.Context, userID string) Status {
	userID = normalizeUser(userID)
	day := domain.DayKeyFor(t.now())

	if t.isPaid(ctx, userID) {
		return Status{
			UserID:      userID,
			Plan:        ReasonUnlimited,
			DailyLimit:  -1,
			Remaining:   -1,
			CanGenerate: true,
			IsPaid:      true,
			DayKey:      day,
		}
	}

	used := t.usedToday(ctx, userID)
	remaining := t.FreeDailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		UserID:      userID,
		Plan:        "free",
		DailyLimit:  t.FreeDailyLimit,
		Used:        used,
		Remaining:   remaining,
		CanGenerate: remaining > 0,
		DayKey:      day,
	}
}

// usedToday reads the counter for the current UTC day; stale rows and read
// errors count as zero.
func (t *Tracker) usedToday(ctx context.Context, userID string) int {
	rec, err := repo.GetUsage(ctx, t.DB, userID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("usage: counter read failed, assuming zero")
		}
		return 0
	}
	if rec.DayKey != domain.DayKeyFor(t.now()) {
		return 0
	}
	return rec.Generations
}

func (t *Tracker) isPaid(ctx context.Context, userID string) bool {
	if t.Plans == nil || userID == AnonymousUser {
		return false
	}
	paid, err := t.Plans.IsPaid(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("usage: plan lookup failed, assuming free tier")
		return false
	}
	return paid
}

func (t *Tracker) withRetry(ctx context.Context, op func() error) error {
	attempts := t.Retries
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * t.Backoff):
			}
		}
		if last = op(); last == nil {
			return nil
		}
	}
	return last
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeUser(userID string) string {
	if userID == "" {
		return AnonymousUser
	}
	return userID
}
