package tracking

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/radiusdt/leadtrack/internal/metrics"
	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
	"go.uber.org/zap"
)

// PostbackService is the reconciliation engine: it classifies every
// inbound notification as a create or an update of a prior record and
// applies the merge.
type PostbackService struct {
	leads    storage.LeadStore
	products storage.ProductRepo
	stats    *StatsMaintainer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	loc      *time.Location
	locks    keyedMutex
}

// PostbackResult is the JSON body returned to the sender.
type PostbackResult struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id,omitempty"`
	Updated bool   `json:"updated,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewPostbackService(
	leads storage.LeadStore,
	products storage.ProductRepo,
	stats *StatsMaintainer,
	logger *zap.Logger,
	m *metrics.Metrics,
	loc *time.Location,
) *PostbackService {
	if loc == nil {
		loc = time.UTC
	}
	return &PostbackService{
		leads:    leads,
		products: products,
		stats:    stats,
		logger:   logger,
		metrics:  m,
		loc:      loc,
	}
}

// keyedMutex serializes work per lead identity so two notifications for
// the same lead cannot interleave their lookup and write. Distinct
// identities land on different shards and do not contend (except on hash
// collisions, which only cost latency).
type keyedMutex struct {
	shards [64]sync.Mutex
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.shards[h.Sum32()%uint32(len(k.shards))]
	m.Lock()
	return m
}

// identityKey picks the strongest identifier available, mirroring the
// resolution tiers.
func identityKey(n NormalizedPostback) string {
	if n.LeadID != "" {
		return "lead:" + n.LeadID
	}
	if n.OfferID != "" {
		return "offer:" + n.OfferID
	}
	return "hier:" + n.Sub1 + "|" + n.Campaign + "|" + n.Adset + "|" + n.Ad
}

// Process reconciles one inbound postback of the given notification type.
// The returned error is non-nil only when the store write itself failed;
// resolution ambiguity never fails a postback.
func (s *PostbackService) Process(ctx context.Context, params map[string]string, ntype string) (*PostbackResult, error) {
	if ntype == "" {
		ntype = models.TypeLead
	}

	start := time.Now()
	n := Normalize(params, start, s.loc)

	if s.metrics != nil {
		s.metrics.RecordPostback(ntype)
		defer func() {
			s.metrics.ObservePostbackDuration(ntype, time.Since(start))
		}()
	}

	mu := s.locks.lock(identityKey(n))
	defer mu.Unlock()

	target := s.resolve(ctx, n, ntype)
	if target != nil {
		return s.update(ctx, target, n, ntype)
	}
	return s.create(ctx, n, ntype)
}

// resolve finds the existing record this postback belongs to, or nil for
// a create. Lookup failures also resolve to nil: creating a possibly
// duplicate record beats dropping the postback.
func (s *PostbackService) resolve(ctx context.Context, n NormalizedPostback, ntype string) *models.LeadRecord {
	if ntype == models.TypeLead {
		// A new lead without a leadId is never matched against existing
		// records; offers are shared between leads.
		if n.LeadID == "" {
			return nil
		}
		existing, err := s.leads.FindByLeadID(ctx, n.LeadID)
		if err != nil {
			s.logger.Warn("lead lookup failed, creating instead",
				zap.String("lead_id", n.LeadID),
				zap.Error(err),
			)
			return nil
		}
		return existing
	}

	match, err := s.leads.FindBestMatch(ctx, storage.MatchQuery{
		LeadID:   n.LeadID,
		OfferID:  n.OfferID,
		Sub1:     n.Sub1,
		Campaign: n.Campaign,
		Adset:    n.Adset,
		Ad:       n.Ad,
	})
	if err != nil {
		s.logger.Warn("match lookup failed, creating instead",
			zap.String("type", ntype),
			zap.Error(err),
		)
		return nil
	}
	if match == nil {
		s.logger.Warn("no matching lead for status update, creating new record",
			zap.String("type", ntype),
			zap.String("lead_id", n.LeadID),
			zap.String("offer_id", n.OfferID),
			zap.String("campaign", n.Campaign),
		)
		if s.metrics != nil {
			s.metrics.RecordCorrelationLoss(ntype)
		}
	}
	return match
}

func (s *PostbackService) create(ctx context.Context, n NormalizedPostback, ntype string) (*PostbackResult, error) {
	now := time.Now().In(s.loc)
	date := n.AttributionDate

	rec := &models.LeadRecord{
		LeadID:           nullString(n.LeadID),
		OfferID:          nullString(n.OfferID),
		Campaign:         nullString(n.Campaign),
		Adset:            nullString(n.Adset),
		Ad:               nullString(n.Ad),
		Sub1:             nullString(n.Sub1),
		Sub2:             nullString(n.Sub2),
		Sub3:             nullString(n.Sub3),
		Sub4:             nullString(n.Sub4),
		Sub5:             nullString(n.Sub5),
		Sub6:             nullString(n.Sub6),
		Sub7:             nullString(n.Sub7),
		Sub8:             nullString(n.Sub8),
		Status:           nullString(n.Status),
		Payout:           n.Payout,
		Category:         s.lookupCategory(ctx, n.OfferID),
		NotificationType: ntype,
		UTMSource:        nullString(n.UTMSource),
		UTMMedium:        nullString(n.UTMMedium),
		Date:             &date,
		CreatedAt:        now,
	}

	id, err := s.leads.Insert(ctx, rec)
	if err != nil {
		s.logger.Error("failed to insert lead", zap.String("type", ntype), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordStoreError("insert")
		}
		return &PostbackResult{Success: false, Error: "failed to store lead"}, err
	}

	s.logger.Info("lead created",
		zap.Int64("id", id),
		zap.String("type", ntype),
		zap.String("lead_id", n.LeadID),
		zap.String("campaign", n.Campaign),
		zap.String("date", date),
	)
	if s.metrics != nil {
		s.metrics.RecordLeadCreated(ntype)
	}

	s.stats.RecordCreate(ctx, n.Campaign, n.Adset, n.Ad, ntype, metaFrom(n))

	return &PostbackResult{Success: true, ID: id}, nil
}

func (s *PostbackService) update(ctx context.Context, target *models.LeadRecord, n NormalizedPostback, ntype string) (*PostbackResult, error) {
	// Category is refreshed from the incoming offer when present, the
	// stored one otherwise; only a product hit overwrites it.
	offerForCategory := n.OfferID
	if offerForCategory == "" && target.OfferID != nil {
		offerForCategory = *target.OfferID
	}

	upd := models.LeadUpdate{
		NotificationType: ntype,
		Status:           nullString(n.Status),
		Payout:           n.Payout,
		LeadID:           nullString(n.LeadID),
		OfferID:          nullString(n.OfferID),
		Category:         s.lookupCategory(ctx, offerForCategory),
	}

	if err := s.leads.UpdateByID(ctx, target.ID, upd); err != nil {
		s.logger.Error("failed to update lead",
			zap.Int64("id", target.ID),
			zap.String("type", ntype),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordStoreError("update")
		}
		return &PostbackResult{Success: false, Error: "failed to update lead"}, err
	}

	s.logger.Info("lead updated",
		zap.Int64("id", target.ID),
		zap.String("from", target.NotificationType),
		zap.String("to", ntype),
	)
	if s.metrics != nil {
		s.metrics.RecordLeadUpdated(target.NotificationType, ntype)
	}

	// Counters follow the record's stored hierarchy; updates never move a
	// record between buckets.
	s.stats.RecordTransition(ctx,
		strValue(target.Campaign), strValue(target.Adset), strValue(target.Ad),
		target.NotificationType, ntype, metaFrom(n),
	)

	return &PostbackResult{Success: true, ID: target.ID, Updated: true}, nil
}

// lookupCategory returns the account name of the product selling offerID,
// or nil when unknown. Lookup failures degrade to nil.
func (s *PostbackService) lookupCategory(ctx context.Context, offerID string) *string {
	if offerID == "" {
		return nil
	}
	p, err := s.products.FindByOfferID(ctx, offerID)
	if err != nil {
		s.logger.Warn("product lookup failed", zap.String("offer_id", offerID), zap.Error(err))
		return nil
	}
	if p == nil {
		return nil
	}
	return &p.AccountName
}

func metaFrom(n NormalizedPostback) models.StatsMeta {
	return models.StatsMeta{
		CampaignID: n.CampaignID,
		AdsetID:    n.AdsetID,
		AdID:       n.AdID,
		Placement:  n.Placement,
		SiteSource: n.UTMSource,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
