// Ledger service.
//
// The ledger is the single authority on whether a platform write may happen:
// it owns the monthly write quota, the time-windowed duplicate guard, and the
// idempotent record of every post attempt (platform-published or recorded
// after a human posted out-of-band).
//
// Concurrency: record and publish both perform a read-check-then-write
// sequence over shared state, so the whole sequence runs under one mutex.
// Concurrent recordings of the same normalized text therefore cannot race
// into duplicate inserts.
//
// Storage: the remote store is authoritative when reachable; Load replaces
// the local snapshot with a full remote read. When the remote is down the
// ledger keeps serving from the local snapshot and logs every fallback; this
// is an accepted availability/consistency tradeoff, not an error path.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-banger-backend/internal/domain"
	"github.com/tbourn/go-banger-backend/internal/platform"
)

// remoteTable is the remote-store table the ledger mirrors into.
const remoteTable = "post_ledger"

// Publisher is the slice of the posting platform the ledger needs.
type Publisher interface {
	// CreatePost publishes text and returns the platform-assigned id.
	CreatePost(ctx context.Context, text string) (string, error)
}

// RemoteStore is the slice of the durable remote store the ledger needs.
type RemoteStore interface {
	Configured() bool
	SelectAll(ctx context.Context, table string) ([]map[string]any, error)
	Upsert(ctx context.Context, table string, row map[string]any, conflictColumn string) error
}

// Reason codes returned by Publish without contacting the platform.
const (
	ReasonEmptyText    = "empty_text"
	ReasonOverLength   = "over_280_chars"
	ReasonDuplicate    = "duplicate_guard_48h"
	ReasonQuotaReached = "monthly_quota_reached"
)

// PublishResult reports the outcome of a publish attempt. Rejections by the
// admission gates and platform-reported failures are normal negative results,
// not errors: Err carries the gate's reason code or the platform's message
// verbatim.
type PublishResult struct {
	Success     bool
	PlatformID  string
	PlatformURL string
	Err         string
	Remaining   int
}

// Ledger enforces the publication gates and records every attempt.
type Ledger struct {
	// MonthlyLimit caps MethodAPI records per calendar month.
	MonthlyLimit int
	// DuplicateWindow is how long the same normalized text is blocked.
	DuplicateWindow time.Duration
	// MaxPostChars is the platform's length limit.
	MaxPostChars int

	// Now supplies the current time; defaults to time.Now. Injected so the
	// month/window arithmetic is unit-testable.
	Now func() time.Time

	store    *FileStore
	remote   RemoteStore
	platform Publisher

	mu       sync.Mutex
	records  map[string]domain.LedgerRecord
	inflight map[string]bool
}

// New constructs a Ledger over the given local store, remote mirror, and
// platform client. Call Load before serving.
func New(store *FileStore, rs RemoteStore, pub Publisher, monthlyLimit, maxPostChars int, window time.Duration) *Ledger {
	return &Ledger{
		MonthlyLimit:    monthlyLimit,
		DuplicateWindow: window,
		MaxPostChars:    maxPostChars,
		Now:             time.Now,
		store:           store,
		remote:          rs,
		platform:        pub,
		records:         make(map[string]domain.LedgerRecord),
		inflight:        make(map[string]bool),
	}
}

// Load populates the in-memory ledger. A reachable remote store wins and its
// contents overwrite the local file; otherwise the local snapshot is used and
// the fallback is logged.
func (l *Ledger) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.remote != nil && l.remote.Configured() {
		rows, err := l.remote.SelectAll(ctx, remoteTable)
		if err == nil {
			l.records = recordsFromRows(rows)
			if err := l.store.Save(l.records); err != nil {
				log.Warn().Err(err).Msg("ledger: failed to mirror remote snapshot locally")
			}
			log.Info().Int("records", len(l.records)).Msg("ledger: loaded from remote store")
			return
		}
		log.Warn().Err(err).Msg("ledger: remote store unreachable on load, falling back to local snapshot")
	}
	l.records = l.store.Load()
	log.Info().Int("records", len(l.records)).Msg("ledger: loaded from local store")
}

// RemainingQuota returns how many platform writes are left this month. Only
// MethodAPI records count against the quota; the result is never negative.
func (l *Ledger) RemainingQuota() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remainingLocked()
}

func (l *Ledger) remainingLocked() int {
	mk := domain.MonthKeyFor(l.now())
	used := 0
	for _, rec := range l.records {
		if rec.Method == domain.MethodAPI && rec.MonthKey == mk {
			used++
		}
	}
	if used >= l.MonthlyLimit {
		return 0
	}
	return l.MonthlyLimit - used
}

// IsRecentDuplicate reports whether text (after normalization) was recorded
// within window of now.
func (l *Ledger) IsRecentDuplicate(text string, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, dup := l.findRecentLocked(domain.NormalizeText(text), window)
	return dup
}

// findRecentLocked returns the id of a record matching norm within window.
func (l *Ledger) findRecentLocked(norm string, window time.Duration) (string, bool) {
	if norm == "" {
		return "", false
	}
	cutoff := l.now().Add(-window).Unix()
	for id, rec := range l.records {
		if rec.NormalizedText == norm && rec.CreatedAt >= cutoff {
			return id, true
		}
	}
	return "", false
}

// Record idempotently writes a post attempt to the ledger.
//
// If the same normalized text already exists within the duplicate window:
//   - when the existing record has no platform id and one is supplied now,
//     the id (and derived URL) is attached to the existing record,
//     reconciling a manually-recorded post with its eventual platform
//     identifier;
//   - otherwise the call is a no-op and the existing record is returned.
//
// Otherwise a new record keyed by method+timestamp is inserted. Empty text
// is ignored and returns nil.
func (l *Ledger) Record(ctx context.Context, text string, method domain.PostMethod, platformID string) *domain.LedgerRecord {
	norm := domain.NormalizeText(text)
	if norm == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, dup := l.findRecentLocked(norm, l.DuplicateWindow); dup {
		rec := l.records[id]
		if rec.PlatformID == "" && platformID != "" {
			rec.PlatformID = platformID
			rec.PlatformURL = platform.PostURL(platformID)
			l.records[id] = rec
			l.persistLocked(ctx, rec)
			log.Info().Str("record_id", id).Str("platform_id", platformID).
				Msg("ledger: attached late platform id to existing record")
		}
		return &rec
	}

	now := l.now()
	rec := domain.LedgerRecord{
		ID:             domain.NewRecordID(method, now),
		CreatedAt:      now.Unix(),
		MonthKey:       domain.MonthKeyFor(now),
		NormalizedText: norm,
		Method:         method,
		PlatformID:     platformID,
		PlatformURL:    platform.PostURL(platformID),
	}
	l.records[rec.ID] = rec
	l.persistLocked(ctx, rec)
	return &rec
}

// Publish is the only path that calls the posting platform. It rejects,
// without a platform call, empty text, over-length text, recent duplicates,
// and exhausted quota. On platform success the attempt is recorded with
// method=api; on platform failure the error is passed through verbatim and
// the ledger is left untouched.
func (l *Ledger) Publish(ctx context.Context, text string) PublishResult {
	trimmed := domain.NormalizeText(text)

	l.mu.Lock()
	remaining := l.remainingLocked()

	switch {
	case trimmed == "":
		l.mu.Unlock()
		return PublishResult{Err: ReasonEmptyText, Remaining: remaining}
	case len([]rune(text)) > l.MaxPostChars:
		l.mu.Unlock()
		return PublishResult{Err: ReasonOverLength, Remaining: remaining}
	}
	if _, dup := l.findRecentLocked(trimmed, l.DuplicateWindow); dup {
		l.mu.Unlock()
		publishRejections.WithLabelValues(ReasonDuplicate).Inc()
		return PublishResult{Err: ReasonDuplicate, Remaining: remaining}
	}
	if l.inflight[trimmed] {
		l.mu.Unlock()
		publishRejections.WithLabelValues(ReasonDuplicate).Inc()
		return PublishResult{Err: ReasonDuplicate, Remaining: remaining}
	}
	if remaining <= 0 {
		l.mu.Unlock()
		publishRejections.WithLabelValues(ReasonQuotaReached).Inc()
		return PublishResult{Err: ReasonQuotaReached, Remaining: 0}
	}
	// The platform call happens outside the lock. The in-flight marker keeps
	// a concurrent identical publish out of the platform until this one has
	// either been recorded or failed.
	l.inflight[trimmed] = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.inflight, trimmed)
		l.mu.Unlock()
	}()

	id, err := l.platform.CreatePost(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("ledger: platform rejected post")
		return PublishResult{Err: err.Error(), Remaining: l.RemainingQuota()}
	}

	l.Record(ctx, text, domain.MethodAPI, id)
	postsPublished.Inc()
	return PublishResult{
		Success:     true,
		PlatformID:  id,
		PlatformURL: platform.PostURL(id),
		Remaining:   l.RemainingQuota(),
	}
}

// persistLocked writes the full local snapshot and mirrors rec to the remote
// store best-effort. Callers must hold l.mu.
func (l *Ledger) persistLocked(ctx context.Context, rec domain.LedgerRecord) {
	if err := l.store.Save(l.records); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID).Msg("ledger: local save failed")
	}
	if l.remote == nil || !l.remote.Configured() {
		return
	}
	if err := l.remote.Upsert(ctx, remoteTable, rowFromRecord(rec), "id"); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).
			Msg("ledger: remote store unreachable on write, local snapshot is ahead")
	}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// rowFromRecord maps a record to the remote table's column names, which match
// the JSON field names of the local store.
func rowFromRecord(rec domain.LedgerRecord) map[string]any {
	row := map[string]any{
		"id":        rec.ID,
		"ts":        rec.CreatedAt,
		"month":     rec.MonthKey,
		"norm_text": rec.NormalizedText,
		"method":    string(rec.Method),
	}
	if rec.PlatformID != "" {
		row["platform_id"] = rec.PlatformID
		row["platform_url"] = rec.PlatformURL
	}
	return row
}

// recordsFromRows converts a remote read into the in-memory mapping, skipping
// rows without an id.
func recordsFromRows(rows []map[string]any) map[string]domain.LedgerRecord {
	out := make(map[string]domain.LedgerRecord, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		rec := domain.LedgerRecord{
			ID:             id,
			MonthKey:       asString(row["month"]),
			NormalizedText: asString(row["norm_text"]),
			Method:         domain.PostMethod(asString(row["method"])),
			PlatformID:     asString(row["platform_id"]),
			PlatformURL:    asString(row["platform_url"]),
		}
		switch ts := row["ts"].(type) {
		case float64:
			rec.CreatedAt = int64(ts)
		case int64:
			rec.CreatedAt = ts
		}
		out[id] = rec
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
