package tracking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
)

// UntrackedLabel is the sentinel hierarchy name for rows where no real
// campaign/adset/ad could be determined.
const UntrackedLabel = "untracked"

// ReportingService reconstructs hierarchical and time-bucketed views from
// the lead store. All queries are read-only and recompute from LeadRecord;
// they never depend on the denormalized counters.
type ReportingService struct {
	leads  storage.LeadStore
	visits storage.VisitRepo
	loc    *time.Location
}

func NewReportingService(leads storage.LeadStore, visits storage.VisitRepo, loc *time.Location) *ReportingService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportingService{leads: leads, visits: visits, loc: loc}
}

// RollupTotals is one set of lifecycle counts plus the summed conversion
// payout.
type RollupTotals struct {
	Leads       int64   `json:"leads"`
	Conversoes  int64   `json:"conversoes"`
	Cancelados  int64   `json:"cancelados"`
	Trash       int64   `json:"trash"`
	TotalPayout float64 `json:"total_payout"`
}

func (t *RollupTotals) add(o RollupTotals) {
	t.Leads += o.Leads
	t.Conversoes += o.Conversoes
	t.Cancelados += o.Cancelados
	t.Trash += o.Trash
	t.TotalPayout += o.TotalPayout
}

// AdRollup is the leaf level of the hierarchy report.
type AdRollup struct {
	Name string `json:"name"`
	RollupTotals
}

type AdsetRollup struct {
	Name string `json:"name"`
	RollupTotals
	Ads []*AdRollup `json:"ads"`
}

type CampaignRollup struct {
	Name string `json:"name"`
	RollupTotals
	Adsets []*AdsetRollup `json:"adsets"`
}

// HierarchyReport is the campaign > adset > ad rollup for one attribution
// date.
type HierarchyReport struct {
	Date      string            `json:"date"`
	Totals    RollupTotals      `json:"totals"`
	Campaigns []*CampaignRollup `json:"campaigns"`
}

// leadIdentity pairs the two row selections reporting is built on: the
// oldest row fixes attribution (date, hierarchy), the newest fixes state.
type leadIdentity struct {
	first  *models.LeadRecord
	latest *models.LeadRecord
}

func firstSeenBefore(a, b *models.LeadRecord) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// groupIdentities folds rows into per-identity first-seen/latest-status
// pairs.
func groupIdentities(records []*models.LeadRecord) map[string]*leadIdentity {
	out := make(map[string]*leadIdentity)
	for _, l := range records {
		key := l.Identity()
		id, ok := out[key]
		if !ok {
			out[key] = &leadIdentity{first: l, latest: l}
			continue
		}
		if firstSeenBefore(l, id.first) {
			id.first = l
		}
		if firstSeenBefore(id.latest, l) {
			id.latest = l
		}
	}
	return out
}

// classify buckets a record's current notification type, honoring the
// raw status synonyms some networks send.
func classify(ntype string) string {
	switch ntype {
	case models.TypeConversao, "approval":
		return "conversao"
	case models.TypeCancel, "rejection":
		return "cancel"
	case models.TypeTrash:
		return "trash"
	default:
		return "lead"
	}
}

func totalsFor(latest *models.LeadRecord) RollupTotals {
	var t RollupTotals
	switch classify(latest.NotificationType) {
	case "conversao":
		t.Conversoes = 1
		if latest.Payout != nil {
			t.TotalPayout = *latest.Payout
		}
	case "cancel":
		t.Cancelados = 1
	case "trash":
		t.Trash = 1
	default:
		t.Leads = 1
	}
	return t
}

// normalizeName maps missing or placeholder hierarchy values to the
// untracked sentinel.
func normalizeName(s *string) string {
	if s == nil {
		return UntrackedLabel
	}
	v := strings.TrimSpace(*s)
	if v == "" || v == "N/A" || strings.EqualFold(v, "sem-trackeamento") {
		return UntrackedLabel
	}
	return v
}

// Today returns the current calendar date in the reporting timezone.
func (r *ReportingService) Today() string {
	return time.Now().In(r.loc).Format("2006-01-02")
}

// Hierarchy builds the campaign > adset > ad rollup for the given
// attribution date. Identities are selected by their first-seen date and
// classified by their latest state.
func (r *ReportingService) Hierarchy(ctx context.Context, date string) (*HierarchyReport, error) {
	if date == "" {
		date = r.Today()
	}

	records, err := r.leads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads for hierarchy: %w", err)
	}

	type adsetMap map[string]*AdsetRollup
	campaigns := map[string]*CampaignRollup{}
	adsets := map[string]adsetMap{}
	ads := map[string]map[string]*AdRollup{}

	report := &HierarchyReport{Date: date}

	for _, id := range groupIdentities(records) {
		if id.first.EffectiveDate(r.loc) != date {
			continue
		}
		t := totalsFor(id.latest)

		campaignName := normalizeName(id.first.Campaign)
		adsetName := normalizeName(id.first.Adset)
		adName := normalizeName(id.first.Ad)

		c, ok := campaigns[campaignName]
		if !ok {
			c = &CampaignRollup{Name: campaignName}
			campaigns[campaignName] = c
			adsets[campaignName] = adsetMap{}
			ads[campaignName] = map[string]*AdRollup{}
			report.Campaigns = append(report.Campaigns, c)
		}
		as, ok := adsets[campaignName][adsetName]
		if !ok {
			as = &AdsetRollup{Name: adsetName}
			adsets[campaignName][adsetName] = as
			c.Adsets = append(c.Adsets, as)
		}
		adKey := adsetName + "\x00" + adName
		a, ok := ads[campaignName][adKey]
		if !ok {
			a = &AdRollup{Name: adName}
			ads[campaignName][adKey] = a
			as.Ads = append(as.Ads, a)
		}

		a.add(t)
		as.add(t)
		c.add(t)
		report.Totals.add(t)
	}

	sort.Slice(report.Campaigns, func(i, j int) bool {
		return report.Campaigns[i].Leads+report.Campaigns[i].Conversoes > report.Campaigns[j].Leads+report.Campaigns[j].Conversoes
	})
	for _, c := range report.Campaigns {
		sort.Slice(c.Adsets, func(i, j int) bool { return c.Adsets[i].Name < c.Adsets[j].Name })
		for _, as := range c.Adsets {
			sort.Slice(as.Ads, func(i, j int) bool { return as.Ads[i].Name < as.Ads[j].Name })
		}
	}

	return report, nil
}

// DayStats is one day's first-seen/latest-status aggregate.
type DayStats struct {
	Date string `json:"date"`
	RollupTotals
}

// DailyStats aggregates identities by first-seen date across a range.
// Empty bounds are open; offerID and category filter on the first-seen
// row.
func (r *ReportingService) DailyStats(ctx context.Context, startDate, endDate, offerID, category string) ([]*DayStats, error) {
	records, err := r.leads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads for stats: %w", err)
	}

	days := map[string]*DayStats{}
	for _, id := range groupIdentities(records) {
		d := id.first.EffectiveDate(r.loc)
		if startDate != "" && d < startDate {
			continue
		}
		if endDate != "" && d > endDate {
			continue
		}
		if offerID != "" && strValue(id.first.OfferID) != offerID {
			continue
		}
		if category != "" && strValue(id.first.Category) != category {
			continue
		}

		ds, ok := days[d]
		if !ok {
			ds = &DayStats{Date: d}
			days[d] = ds
		}
		ds.add(totalsFor(id.latest))
	}

	out := make([]*DayStats, 0, len(days))
	for _, ds := range days {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// LeadsForDate returns the latest-status rows of identities first seen on
// the given date.
func (r *ReportingService) LeadsForDate(ctx context.Context, date string) ([]*models.LeadRecord, error) {
	records, err := r.leads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	var out []*models.LeadRecord
	for _, id := range groupIdentities(records) {
		if id.first.EffectiveDate(r.loc) == date {
			out = append(out, id.latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DateCount is one attribution date with its raw row count.
type DateCount struct {
	Date  string `json:"date"`
	Total int64  `json:"total"`
}

// DatesWithCounts lists every distinct attribution date with the number
// of rows credited to it.
func (r *ReportingService) DatesWithCounts(ctx context.Context) ([]*DateCount, error) {
	records, err := r.leads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	counts := map[string]int64{}
	for _, l := range records {
		counts[l.EffectiveDate(r.loc)]++
	}

	out := make([]*DateCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, &DateCount{Date: d, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// Sub2Row is the per-landing-page-variant report row, joined with
// third-party visit counts when available.
type Sub2Row struct {
	Sub2        string  `json:"sub2"`
	TotalLeads  int64   `json:"total_leads"`
	Leads       int64   `json:"leads"`
	Conversoes  int64   `json:"conversoes"`
	Cancelados  int64   `json:"cancelados"`
	Trash       int64   `json:"trash"`
	ValorTotal  float64 `json:"valor_total"`
	ValorMedio  float64 `json:"valor_medio"`
	Sessions    int64   `json:"sessions"`
	UniqueUsers int64   `json:"unique_users"`
	// TaxaConversao is conversions over visits when visit data exists,
	// over total leads otherwise.
	TaxaConversao float64 `json:"taxa_conversao"`
	HasVisitData  bool    `json:"has_visit_data"`
}

// Sub2Report is the full per-sub2 breakdown plus the totals block.
type Sub2Report struct {
	Rows   []*Sub2Row `json:"rows"`
	Totals Sub2Row    `json:"totals"`
}

// visitJoinKey normalizes a sub2 value for joining leads against visit
// identifiers: variant suffixes and underscore/hyphen differences do not
// split the group.
func visitJoinKey(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "-pr2")
	v = strings.TrimSuffix(v, "pr2")
	v = strings.ReplaceAll(v, "_", "-")
	return strings.Trim(v, "-")
}

// Sub2Metrics groups identities by their sub2 slot and joins third-party
// visit counts by normalized identifier.
func (r *ReportingService) Sub2Metrics(ctx context.Context, startDate, endDate string) (*Sub2Report, error) {
	records, err := r.leads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	rows := map[string]*Sub2Row{}
	for _, id := range groupIdentities(records) {
		d := id.first.EffectiveDate(r.loc)
		if startDate != "" && d < startDate {
			continue
		}
		if endDate != "" && d > endDate {
			continue
		}

		sub2 := strValue(id.first.Sub2)
		if sub2 == "" {
			sub2 = UntrackedLabel
		}
		row, ok := rows[sub2]
		if !ok {
			row = &Sub2Row{Sub2: sub2}
			rows[sub2] = row
		}

		row.TotalLeads++
		t := totalsFor(id.latest)
		row.Leads += t.Leads
		row.Conversoes += t.Conversoes
		row.Cancelados += t.Cancelados
		row.Trash += t.Trash
		row.ValorTotal += t.TotalPayout
	}

	// Visit counts summed per normalized identifier over the same range.
	visitTotals := map[string]*models.VisitStats{}
	if r.visits != nil {
		visits, err := r.visits.List(ctx, startDate, endDate)
		if err != nil {
			return nil, fmt.Errorf("failed to load visit stats: %w", err)
		}
		for _, v := range visits {
			key := visitJoinKey(v.Sub2)
			agg, ok := visitTotals[key]
			if !ok {
				agg = &models.VisitStats{Sub2: key}
				visitTotals[key] = agg
			}
			agg.Sessions += v.Sessions
			agg.UniqueUsers += v.UniqueUsers
		}
	}

	report := &Sub2Report{Totals: Sub2Row{Sub2: "total"}}
	for _, row := range rows {
		if v, ok := visitTotals[visitJoinKey(row.Sub2)]; ok {
			row.Sessions = v.Sessions
			row.UniqueUsers = v.UniqueUsers
			row.HasVisitData = true
		}

		if row.Conversoes > 0 {
			row.ValorMedio = row.ValorTotal / float64(row.Conversoes)
		}
		switch {
		case row.HasVisitData && row.Sessions > 0:
			row.TaxaConversao = float64(row.Conversoes) / float64(row.Sessions) * 100
		case row.TotalLeads > 0:
			row.TaxaConversao = float64(row.Conversoes) / float64(row.TotalLeads) * 100
		}

		report.Rows = append(report.Rows, row)

		report.Totals.TotalLeads += row.TotalLeads
		report.Totals.Leads += row.Leads
		report.Totals.Conversoes += row.Conversoes
		report.Totals.Cancelados += row.Cancelados
		report.Totals.Trash += row.Trash
		report.Totals.ValorTotal += row.ValorTotal
		report.Totals.Sessions += row.Sessions
		report.Totals.UniqueUsers += row.UniqueUsers
	}

	if report.Totals.Conversoes > 0 {
		report.Totals.ValorMedio = report.Totals.ValorTotal / float64(report.Totals.Conversoes)
	}
	switch {
	case report.Totals.Sessions > 0:
		report.Totals.TaxaConversao = float64(report.Totals.Conversoes) / float64(report.Totals.Sessions) * 100
	case report.Totals.TotalLeads > 0:
		report.Totals.TaxaConversao = float64(report.Totals.Conversoes) / float64(report.Totals.TotalLeads) * 100
	}

	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].TotalLeads > report.Rows[j].TotalLeads })
	return report, nil
}

// HourCount is one hour's lead arrivals.
type HourCount struct {
	Hour  string `json:"hour"`
	Leads int64  `json:"leads"`
}

// HourlyDistribution counts identities first seen on the given date per
// arrival hour, zero-filled for all 24 hours.
func (r *ReportingService) HourlyDistribution(ctx context.Context, date string) ([]*HourCount, error) {
	if date == "" {
		date = r.Today()
	}

	records, err := r.leads.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	hours := make([]*HourCount, 24)
	for h := 0; h < 24; h++ {
		hours[h] = &HourCount{Hour: fmt.Sprintf("%02d", h)}
	}
	for _, id := range groupIdentities(records) {
		if id.first.EffectiveDate(r.loc) != date {
			continue
		}
		hours[id.first.CreatedAt.In(r.loc).Hour()].Leads++
	}
	return hours, nil
}
