package storage

import (
	"context"

	"github.com/radiusdt/leadtrack/internal/models"
)

// MatchQuery carries the identifiers a status-update postback can be
// matched on. Empty fields are not matched.
type MatchQuery struct {
	LeadID   string
	OfferID  string
	Sub1     string
	Campaign string
	Adset    string
	Ad       string
}

// LeadFilter narrows lead listings. Date wins over the range; all string
// filters are exact and optional.
type LeadFilter struct {
	Date      string
	StartDate string
	EndDate   string
	OfferID   string
	Category  string
}

// =============================================
// LEAD STORE
// =============================================

// LeadStore defines operations over the leads table.
type LeadStore interface {
	// FindByLeadID returns the record carrying exactly that leadId, or nil.
	FindByLeadID(ctx context.Context, leadID string) (*models.LeadRecord, error)

	// FindBestMatch resolves a status update against existing records:
	// leadId match first, then offerId, then the (sub1,campaign,adset,ad)
	// tuple restricted to records still in the "lead" stage. Within the
	// highest tier that matches anything, the oldest record wins, ties by
	// smallest id. Returns nil when nothing matches.
	FindBestMatch(ctx context.Context, q MatchQuery) (*models.LeadRecord, error)

	GetByID(ctx context.Context, id int64) (*models.LeadRecord, error)
	Insert(ctx context.Context, rec *models.LeadRecord) (int64, error)

	// UpdateByID applies a partial mutation. The attribution date and
	// created_at are never touched.
	UpdateByID(ctx context.Context, id int64, upd models.LeadUpdate) error

	List(ctx context.Context, f LeadFilter) ([]*models.LeadRecord, error)
	ListAll(ctx context.Context) ([]*models.LeadRecord, error)
	ClearAll(ctx context.Context) error
}

// =============================================
// PRODUCT REPOSITORY
// =============================================

// ProductRepo defines operations for product reference data.
type ProductRepo interface {
	ListAll(ctx context.Context) ([]*models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	FindByOfferID(ctx context.Context, offerID string) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) (int64, error)

	// Update and Delete report whether a row was affected.
	Update(ctx context.Context, p *models.Product) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)

	ListAccounts(ctx context.Context) ([]string, error)
}

// =============================================
// STATS REPOSITORY
// =============================================

// StatsRepo defines operations over the denormalized campaign counters.
type StatsRepo interface {
	// Increment bumps one counter column by 1, creating the bucket when
	// absent, and refreshes metadata with fill-if-present semantics.
	Increment(ctx context.Context, campaign, adset, ad, column string, meta models.StatsMeta) error

	// Transition moves one unit from oldColumn to newColumn on the same
	// bucket. The decrement floors at zero.
	Transition(ctx context.Context, campaign, adset, ad, oldColumn, newColumn string, meta models.StatsMeta) error

	ListAll(ctx context.Context) ([]*models.CampaignStats, error)
	ClearAll(ctx context.Context) error
}

// =============================================
// VISIT REPOSITORY
// =============================================

// VisitRepo defines operations over ingested third-party visit stats.
type VisitRepo interface {
	// Upsert replaces the row keyed by (url, date).
	Upsert(ctx context.Context, v *models.VisitStats) error

	// List returns rows with date in [startDate, endDate]; empty bounds are
	// open.
	List(ctx context.Context, startDate, endDate string) ([]*models.VisitStats, error)
}
