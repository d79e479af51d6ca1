package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
)

type seedRow struct {
	leadID   string
	ntype    string
	created  time.Time
	date     string
	campaign string
	adset    string
	ad       string
	sub2     string
	offerID  string
	payout   float64
}

func seedLeads(t *testing.T, store *storage.InMemoryLeadStore, rows []seedRow) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rows {
		rec := &models.LeadRecord{
			LeadID:           nullString(r.leadID),
			OfferID:          nullString(r.offerID),
			Campaign:         nullString(r.campaign),
			Adset:            nullString(r.adset),
			Ad:               nullString(r.ad),
			Sub2:             nullString(r.sub2),
			NotificationType: r.ntype,
			Date:             nullString(r.date),
			CreatedAt:        r.created,
		}
		if r.payout != 0 {
			p := r.payout
			rec.Payout = &p
		}
		_, err := store.Insert(ctx, rec)
		require.NoError(t, err)
	}
}

func TestHierarchyRollup(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeConversao, created: day, date: "2024-04-01", campaign: "CampA", adset: "AdsetB", ad: "AdC", payout: 30},
		{leadID: "L2", ntype: models.TypeLead, created: day.Add(time.Hour), date: "2024-04-01", campaign: "CampA", adset: "AdsetB", ad: "AdC"},
		{leadID: "L3", ntype: models.TypeCancel, created: day.Add(2 * time.Hour), date: "2024-04-01", campaign: "CampA", adset: "AdsetD", ad: "AdE"},
		{leadID: "L4", ntype: models.TypeLead, created: day, date: "2024-04-01"},
		{leadID: "L5", ntype: models.TypeLead, created: day, date: "2024-03-31", campaign: "CampA"},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)
	report, err := svc.Hierarchy(context.Background(), "2024-04-01")
	require.NoError(t, err)

	require.Equal(t, "2024-04-01", report.Date)
	require.Equal(t, int64(2), report.Totals.Leads)
	require.Equal(t, int64(1), report.Totals.Conversoes)
	require.Equal(t, int64(1), report.Totals.Cancelados)
	require.Equal(t, 30.0, report.Totals.TotalPayout)

	require.Len(t, report.Campaigns, 2)
	byName := map[string]*CampaignRollup{}
	for _, c := range report.Campaigns {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "CampA")
	require.Contains(t, byName, UntrackedLabel)

	campA := byName["CampA"]
	require.Equal(t, int64(1), campA.Leads)
	require.Equal(t, int64(1), campA.Conversoes)
	require.Equal(t, int64(1), campA.Cancelados)
	require.Len(t, campA.Adsets, 2)

	// Campaign totals equal the sum of their adsets.
	var sum RollupTotals
	for _, as := range campA.Adsets {
		sum.add(as.RollupTotals)
	}
	require.Equal(t, campA.RollupTotals, sum)
}

func TestHierarchyUsesFirstSeenRowForAttribution(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeLead, created: day, date: "2024-04-01", campaign: "CampA", payout: 0},
		// A later row for the same identity with a different campaign and
		// date: classification comes from here, attribution does not.
		{leadID: "L1", ntype: models.TypeConversao, created: day.Add(48 * time.Hour), date: "2024-04-03", campaign: "CampB", payout: 50},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)

	report, err := svc.Hierarchy(context.Background(), "2024-04-01")
	require.NoError(t, err)
	require.Len(t, report.Campaigns, 1)
	require.Equal(t, "CampA", report.Campaigns[0].Name)
	require.Equal(t, int64(1), report.Campaigns[0].Conversoes)
	require.Equal(t, 50.0, report.Campaigns[0].TotalPayout)

	// Nothing attributed to the later date.
	report, err = svc.Hierarchy(context.Background(), "2024-04-03")
	require.NoError(t, err)
	require.Empty(t, report.Campaigns)
}

func TestDailyStatsFilters(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeConversao, created: day, date: "2024-04-01", offerID: "OFF-1", payout: 10},
		{leadID: "L2", ntype: models.TypeLead, created: day.Add(24 * time.Hour), date: "2024-04-02", offerID: "OFF-2"},
		{leadID: "L3", ntype: models.TypeLead, created: day.Add(72 * time.Hour), date: "2024-04-04", offerID: "OFF-1"},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)
	ctx := context.Background()

	stats, err := svc.DailyStats(ctx, "2024-04-01", "2024-04-02", "", "")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, "2024-04-02", stats[0].Date) // newest first
	require.Equal(t, "2024-04-01", stats[1].Date)
	require.Equal(t, int64(1), stats[1].Conversoes)
	require.Equal(t, 10.0, stats[1].TotalPayout)

	stats, err = svc.DailyStats(ctx, "", "", "OFF-1", "")
	require.NoError(t, err)
	require.Len(t, stats, 2)
}

func TestLeadsForDateReturnsLatestState(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeLead, created: day, date: "2024-04-01"},
		{leadID: "L1", ntype: models.TypeConversao, created: day.Add(time.Hour), date: "2024-04-02"},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)
	leads, err := svc.LeadsForDate(context.Background(), "2024-04-01")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	require.Equal(t, models.TypeConversao, leads[0].NotificationType)
}

func TestDatesWithCountsAreRawRowCounts(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeLead, created: day, date: "2024-04-01"},
		{leadID: "L1", ntype: models.TypeConversao, created: day.Add(time.Hour), date: "2024-04-01"},
		{leadID: "L2", ntype: models.TypeLead, created: day.Add(24 * time.Hour), date: "2024-04-02"},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)
	dates, err := svc.DatesWithCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, dates, 2)
	require.Equal(t, "2024-04-02", dates[0].Date)
	require.Equal(t, int64(1), dates[0].Total)
	require.Equal(t, "2024-04-01", dates[1].Date)
	require.Equal(t, int64(2), dates[1].Total)
}

func TestSub2MetricsJoinsVisitData(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	visits := storage.NewInMemoryVisitRepo()
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeConversao, created: day, date: "2024-04-01", sub2: "my_page-pr2", payout: 40},
		{leadID: "L2", ntype: models.TypeLead, created: day, date: "2024-04-01", sub2: "my_page-pr2"},
		{leadID: "L3", ntype: models.TypeLead, created: day, date: "2024-04-01"},
	})

	ctx := context.Background()
	// Visit identifier differs by separator and variant suffix but joins
	// with the sub2 group.
	require.NoError(t, visits.Upsert(ctx, &models.VisitStats{
		URL: "/lp/my-page/index.php", Sub2: "my-page", Sessions: 200, UniqueUsers: 150, Date: "2024-04-01",
	}))

	svc := NewReportingService(store, visits, time.UTC)
	report, err := svc.Sub2Metrics(ctx, "2024-04-01", "2024-04-01")
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	require.Equal(t, "my_page-pr2", report.Rows[0].Sub2)
	row := report.Rows[0]
	require.True(t, row.HasVisitData)
	require.Equal(t, int64(200), row.Sessions)
	require.Equal(t, int64(2), row.TotalLeads)
	require.Equal(t, int64(1), row.Conversoes)
	require.Equal(t, 40.0, row.ValorTotal)
	require.Equal(t, 40.0, row.ValorMedio)
	require.InDelta(t, 0.5, row.TaxaConversao, 1e-9) // 1 of 200 sessions

	untracked := report.Rows[1]
	require.Equal(t, UntrackedLabel, untracked.Sub2)
	require.False(t, untracked.HasVisitData)

	require.Equal(t, int64(3), report.Totals.TotalLeads)
	require.Equal(t, int64(200), report.Totals.Sessions)
}

func TestSub2ConversionRateWithoutVisits(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	day := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeConversao, created: day, date: "2024-04-01", sub2: "page-a", payout: 10},
		{leadID: "L2", ntype: models.TypeLead, created: day, date: "2024-04-01", sub2: "page-a"},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)
	report, err := svc.Sub2Metrics(context.Background(), "2024-04-01", "2024-04-01")
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	require.InDelta(t, 50.0, report.Rows[0].TaxaConversao, 1e-9) // 1 of 2 leads
}

func TestHourlyDistributionZeroFilled(t *testing.T) {
	store := storage.NewInMemoryLeadStore(time.UTC)
	seedLeads(t, store, []seedRow{
		{leadID: "L1", ntype: models.TypeLead, created: time.Date(2024, 4, 1, 9, 15, 0, 0, time.UTC), date: "2024-04-01"},
		{leadID: "L2", ntype: models.TypeLead, created: time.Date(2024, 4, 1, 9, 45, 0, 0, time.UTC), date: "2024-04-01"},
		{leadID: "L3", ntype: models.TypeLead, created: time.Date(2024, 4, 1, 23, 0, 0, 0, time.UTC), date: "2024-04-01"},
	})

	svc := NewReportingService(store, storage.NewInMemoryVisitRepo(), time.UTC)
	hours, err := svc.HourlyDistribution(context.Background(), "2024-04-01")
	require.NoError(t, err)
	require.Len(t, hours, 24)
	require.Equal(t, "00", hours[0].Hour)
	require.Equal(t, int64(2), hours[9].Leads)
	require.Equal(t, int64(1), hours[23].Leads)

	var total int64
	for _, h := range hours {
		total += h.Leads
	}
	require.Equal(t, int64(3), total)
}
