package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/radiusdt/leadtrack/internal/models"
)

// In-memory implementations used when no database is configured and by
// tests. Semantics mirror the Postgres repos.

// =============================================
// LEAD STORE
// =============================================

type InMemoryLeadStore struct {
	mu     sync.RWMutex
	leads  []*models.LeadRecord
	nextID int64
	loc    *time.Location
}

func NewInMemoryLeadStore(loc *time.Location) *InMemoryLeadStore {
	if loc == nil {
		loc = time.UTC
	}
	return &InMemoryLeadStore{nextID: 1, loc: loc}
}

func copyLead(l *models.LeadRecord) *models.LeadRecord {
	c := *l
	return &c
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *InMemoryLeadStore) FindByLeadID(ctx context.Context, leadID string) (*models.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.LeadRecord
	for _, l := range s.leads {
		if strOrEmpty(l.LeadID) != leadID {
			continue
		}
		if best == nil || olderThan(l, best) {
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyLead(best), nil
}

func (s *InMemoryLeadStore) GetByID(ctx context.Context, id int64) (*models.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.leads {
		if l.ID == id {
			return copyLead(l), nil
		}
	}
	return nil, nil
}

func olderThan(a, b *models.LeadRecord) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *InMemoryLeadStore) FindBestMatch(ctx context.Context, q MatchQuery) (*models.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bestTier := 4
	var best *models.LeadRecord
	for _, l := range s.leads {
		tier := 4
		switch {
		case q.LeadID != "" && strOrEmpty(l.LeadID) == q.LeadID:
			tier = 1
		case q.OfferID != "" && strOrEmpty(l.OfferID) == q.OfferID:
			tier = 2
		case l.NotificationType == models.TypeLead &&
			(q.Sub1 != "" || q.Campaign != "" || q.Adset != "" || q.Ad != "") &&
			strOrEmpty(l.Sub1) == q.Sub1 &&
			strOrEmpty(l.Campaign) == q.Campaign &&
			strOrEmpty(l.Adset) == q.Adset &&
			strOrEmpty(l.Ad) == q.Ad:
			tier = 3
		}
		if tier == 4 {
			continue
		}
		if tier < bestTier || (tier == bestTier && olderThan(l, best)) {
			bestTier = tier
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyLead(best), nil
}

func (s *InMemoryLeadStore) Insert(ctx context.Context, rec *models.LeadRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := copyLead(rec)
	c.ID = s.nextID
	s.nextID++
	s.leads = append(s.leads, c)
	rec.ID = c.ID
	return c.ID, nil
}

func (s *InMemoryLeadStore) UpdateByID(ctx context.Context, id int64, upd models.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.leads {
		if l.ID != id {
			continue
		}
		l.NotificationType = upd.NotificationType
		if upd.Status != nil {
			l.Status = upd.Status
		}
		if upd.Payout != nil {
			l.Payout = upd.Payout
		}
		if l.LeadID == nil && upd.LeadID != nil {
			l.LeadID = upd.LeadID
		}
		if l.OfferID == nil && upd.OfferID != nil {
			l.OfferID = upd.OfferID
		}
		if upd.Category != nil {
			l.Category = upd.Category
		}
		return nil
	}
	return fmt.Errorf("lead %d not found", id)
}

func (s *InMemoryLeadStore) List(ctx context.Context, f LeadFilter) ([]*models.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.LeadRecord
	for _, l := range s.leads {
		d := l.EffectiveDate(s.loc)
		if f.Date != "" {
			if d != f.Date {
				continue
			}
		} else {
			if f.StartDate != "" && d < f.StartDate {
				continue
			}
			if f.EndDate != "" && d > f.EndDate {
				continue
			}
		}
		if f.OfferID != "" && strOrEmpty(l.OfferID) != f.OfferID {
			continue
		}
		if f.Category != "" && strOrEmpty(l.Category) != f.Category {
			continue
		}
		out = append(out, copyLead(l))
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].EffectiveDate(s.loc), out[j].EffectiveDate(s.loc)
		if di != dj {
			return di > dj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryLeadStore) ListAll(ctx context.Context) ([]*models.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.LeadRecord, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, copyLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return olderThan(out[i], out[j]) })
	return out, nil
}

func (s *InMemoryLeadStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = nil
	return nil
}

// =============================================
// PRODUCTS
// =============================================

type InMemoryProductRepo struct {
	mu       sync.RWMutex
	products []*models.Product
	nextID   int64
}

func NewInMemoryProductRepo() *InMemoryProductRepo {
	return &InMemoryProductRepo{nextID: 1}
}

func (r *InMemoryProductRepo) ListAll(ctx context.Context) ([]*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Product, 0, len(r.products))
	for _, p := range r.products {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryProductRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *InMemoryProductRepo) FindByOfferID(ctx context.Context, offerID string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.Product
	for _, p := range r.products {
		if p.OfferID != offerID {
			continue
		}
		if best == nil || p.ID < best.ID {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (r *InMemoryProductRepo) Create(ctx context.Context, p *models.Product) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *p
	c.ID = r.nextID
	r.nextID++
	r.products = append(r.products, &c)
	p.ID = c.ID
	return c.ID, nil
}

func (r *InMemoryProductRepo) Update(ctx context.Context, p *models.Product) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.products {
		if existing.ID == p.ID {
			existing.Name = p.Name
			existing.OfferID = p.OfferID
			existing.AccountName = p.AccountName
			existing.UpdatedAt = p.UpdatedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryProductRepo) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.products {
		if p.ID == id {
			r.products = append(r.products[:i], r.products[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryProductRepo) ListAccounts(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, p := range r.products {
		if p.AccountName == "" || seen[p.AccountName] {
			continue
		}
		seen[p.AccountName] = true
		out = append(out, p.AccountName)
	}
	sort.Strings(out)
	return out, nil
}

// =============================================
// CAMPAIGN STATS
// =============================================

type InMemoryStatsRepo struct {
	mu      sync.RWMutex
	buckets map[string]*models.CampaignStats
}

func NewInMemoryStatsRepo() *InMemoryStatsRepo {
	return &InMemoryStatsRepo{buckets: make(map[string]*models.CampaignStats)}
}

func statsKey(campaign, adset, ad string) string {
	return campaign + "\x00" + adset + "\x00" + ad
}

func (r *InMemoryStatsRepo) bucket(campaign, adset, ad string) *models.CampaignStats {
	key := statsKey(campaign, adset, ad)
	b, ok := r.buckets[key]
	if !ok {
		b = &models.CampaignStats{Campaign: campaign, Adset: adset, Ad: ad}
		r.buckets[key] = b
	}
	return b
}

func fillMeta(b *models.CampaignStats, meta models.StatsMeta) {
	if meta.CampaignID != "" {
		b.CampaignID = meta.CampaignID
	}
	if meta.AdsetID != "" {
		b.AdsetID = meta.AdsetID
	}
	if meta.AdID != "" {
		b.AdID = meta.AdID
	}
	if meta.Placement != "" {
		b.Placement = meta.Placement
	}
	if meta.SiteSource != "" {
		b.SiteSource = meta.SiteSource
	}
	b.UpdatedAt = time.Now()
}

func addColumn(b *models.CampaignStats, column string, delta int64) error {
	var field *int64
	switch column {
	case "leads":
		field = &b.Leads
	case "conversoes":
		field = &b.Conversoes
	case "trash":
		field = &b.Trash
	case "cancel":
		field = &b.Cancel
	default:
		return fmt.Errorf("unknown stats column %q", column)
	}
	*field += delta
	if *field < 0 {
		*field = 0
	}
	return nil
}

func (r *InMemoryStatsRepo) Increment(ctx context.Context, campaign, adset, ad, column string, meta models.StatsMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bucket(campaign, adset, ad)
	if err := addColumn(b, column, 1); err != nil {
		return err
	}
	fillMeta(b, meta)
	return nil
}

func (r *InMemoryStatsRepo) Transition(ctx context.Context, campaign, adset, ad, oldColumn, newColumn string, meta models.StatsMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := statsKey(campaign, adset, ad)
	b, ok := r.buckets[key]
	if !ok {
		b = r.bucket(campaign, adset, ad)
		if err := addColumn(b, newColumn, 1); err != nil {
			return err
		}
		fillMeta(b, meta)
		return nil
	}
	if err := addColumn(b, oldColumn, -1); err != nil {
		return err
	}
	if err := addColumn(b, newColumn, 1); err != nil {
		return err
	}
	fillMeta(b, meta)
	return nil
}

func (r *InMemoryStatsRepo) ListAll(ctx context.Context) ([]*models.CampaignStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.CampaignStats, 0, len(r.buckets))
	for _, b := range r.buckets {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		ki := statsKey(out[i].Campaign, out[i].Adset, out[i].Ad)
		kj := statsKey(out[j].Campaign, out[j].Adset, out[j].Ad)
		return ki < kj
	})
	return out, nil
}

func (r *InMemoryStatsRepo) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[string]*models.CampaignStats)
	return nil
}

// =============================================
// PAGE VISITS
// =============================================

type InMemoryVisitRepo struct {
	mu     sync.RWMutex
	visits map[string]*models.VisitStats
}

func NewInMemoryVisitRepo() *InMemoryVisitRepo {
	return &InMemoryVisitRepo{visits: make(map[string]*models.VisitStats)}
}

func (r *InMemoryVisitRepo) Upsert(ctx context.Context, v *models.VisitStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *v
	r.visits[v.URL+"\x00"+v.Date] = &c
	return nil
}

func (r *InMemoryVisitRepo) List(ctx context.Context, startDate, endDate string) ([]*models.VisitStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.VisitStats
	for _, v := range r.visits {
		if startDate != "" && v.Date < startDate {
			continue
		}
		if endDate != "" && v.Date > endDate {
			continue
		}
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return strings.Compare(out[i].URL, out[j].URL) < 0
	})
	return out, nil
}
