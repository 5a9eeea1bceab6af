// Handler wiring.
//
// This file declares the service contracts consumed by the HTTP layer and
// the Handlers aggregate that binds them. Handlers are transport-thin: they
// validate input, call application services, and translate results into HTTP
// responses. Business rules (quota, duplicate guard, gates) live in the
// services.
package handlers

import (
	"context"

	"github.com/tbourn/go-banger-backend/internal/cache"
	"github.com/tbourn/go-banger-backend/internal/domain"
	"github.com/tbourn/go-banger-backend/internal/generate"
	"github.com/tbourn/go-banger-backend/internal/ledger"
	"github.com/tbourn/go-banger-backend/internal/usage"
)

//
// Service contracts (context-aware)
//

// GenerateService drafts post options for a request context.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type GenerateService interface {
	// Mode returns the content mode in effect right now.
	Mode() string
	// Options drafts a set of distinct post options for the given mode.
	Options(ctx context.Context, mode string, c generate.Context) (*generate.Result, error)
}

// OptionsCache stores recent generation results keyed by their full request.
type OptionsCache interface {
	Get(key cache.Key) ([]string, bool)
	Set(key cache.Key, options []string)
}

// PostLedger is the admission-control surface in front of the posting
// platform.
type PostLedger interface {
	// Publish runs the admission gates and, when they pass, posts text.
	Publish(ctx context.Context, text string) ledger.PublishResult
	// Record idempotently writes a post attempt without contacting the
	// platform.
	Record(ctx context.Context, text string, method domain.PostMethod, platformID string) *domain.LedgerRecord
	// RemainingQuota returns how many platform writes are left this month.
	RemainingQuota() int
}

// UsageTracker enforces the per-user daily generation allowance.
type UsageTracker interface {
	CanGenerate(ctx context.Context, userID string) (bool, int, string)
	Increment(ctx context.Context, userID string)
	Status(ctx context.Context, userID string) usage.Status
}

// Mailer sends generated options to the owner's inbox.
type Mailer interface {
	SendOptions(ctx context.Context, subject string, options []string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for generation, publication, quota, and
// notification. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	gen    GenerateService
	cache  OptionsCache
	ledger PostLedger
	usage  UsageTracker
	mailer Mailer

	// MonthlyLimit mirrors the ledger's configured monthly write cap.
	MonthlyLimit int
	// CommunityURL is surfaced to clients for the community posting flow.
	CommunityURL string
}

// New constructs a Handlers instance bound to the given services.
func New(gen GenerateService, oc OptionsCache, pl PostLedger, ut UsageTracker, m Mailer, monthlyLimit int, communityURL string) *Handlers {
	return &Handlers{
		gen:          gen,
		cache:        oc,
		ledger:       pl,
		usage:        ut,
		mailer:       m,
		MonthlyLimit: monthlyLimit,
		CommunityURL: communityURL,
	}
}
