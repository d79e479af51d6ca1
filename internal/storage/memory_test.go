package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiusdt/leadtrack/internal/models"
)

func strPtr(s string) *string { return &s }

func insertLead(t *testing.T, s *InMemoryLeadStore, rec *models.LeadRecord) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func TestFindBestMatchTierPrecedence(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	byTuple := insertLead(t, s, &models.LeadRecord{
		Sub1: strPtr("v1"), Campaign: strPtr("CampA"), Adset: strPtr("AdsetB"), Ad: strPtr("AdC"),
		NotificationType: models.TypeLead, CreatedAt: base,
	})
	byOffer := insertLead(t, s, &models.LeadRecord{
		OfferID: strPtr("OFF-1"), NotificationType: models.TypeLead, CreatedAt: base.Add(time.Minute),
	})
	byLead := insertLead(t, s, &models.LeadRecord{
		LeadID: strPtr("L1"), NotificationType: models.TypeLead, CreatedAt: base.Add(2 * time.Minute),
	})

	q := MatchQuery{LeadID: "L1", OfferID: "OFF-1", Sub1: "v1", Campaign: "CampA", Adset: "AdsetB", Ad: "AdC"}

	got, err := s.FindBestMatch(ctx, q)
	require.NoError(t, err)
	require.Equal(t, byLead, got.ID)

	q.LeadID = ""
	got, err = s.FindBestMatch(ctx, q)
	require.NoError(t, err)
	require.Equal(t, byOffer, got.ID)

	q.OfferID = ""
	got, err = s.FindBestMatch(ctx, q)
	require.NoError(t, err)
	require.Equal(t, byTuple, got.ID)

	got, err = s.FindBestMatch(ctx, MatchQuery{LeadID: "nope"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindBestMatchPicksOldestInTier(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	insertLead(t, s, &models.LeadRecord{OfferID: strPtr("OFF-1"), NotificationType: models.TypeLead, CreatedAt: base.Add(time.Hour)})
	oldest := insertLead(t, s, &models.LeadRecord{OfferID: strPtr("OFF-1"), NotificationType: models.TypeLead, CreatedAt: base})

	got, err := s.FindBestMatch(ctx, MatchQuery{OfferID: "OFF-1"})
	require.NoError(t, err)
	require.Equal(t, oldest, got.ID)
}

func TestFindBestMatchTiesBreakOnSmallestID(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	at := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	first := insertLead(t, s, &models.LeadRecord{OfferID: strPtr("OFF-1"), NotificationType: models.TypeLead, CreatedAt: at})
	insertLead(t, s, &models.LeadRecord{OfferID: strPtr("OFF-1"), NotificationType: models.TypeLead, CreatedAt: at})

	got, err := s.FindBestMatch(ctx, MatchQuery{OfferID: "OFF-1"})
	require.NoError(t, err)
	require.Equal(t, first, got.ID)
}

func TestFindBestMatchTupleRequiresLeadType(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	at := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	insertLead(t, s, &models.LeadRecord{
		Sub1: strPtr("v1"), Campaign: strPtr("CampA"), Adset: strPtr("AdsetB"), Ad: strPtr("AdC"),
		NotificationType: models.TypeConversao, CreatedAt: at,
	})

	got, err := s.FindBestMatch(ctx, MatchQuery{Sub1: "v1", Campaign: "CampA", Adset: "AdsetB", Ad: "AdC"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindBestMatchEmptyTupleNeverMatches(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	at := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	// Untracked lead with no hierarchy at all.
	insertLead(t, s, &models.LeadRecord{NotificationType: models.TypeLead, CreatedAt: at})

	got, err := s.FindBestMatch(ctx, MatchQuery{})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateByIDMergeSemantics(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	at := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	payout := 10.0
	id := insertLead(t, s, &models.LeadRecord{
		LeadID:           strPtr("L1"),
		Status:           strPtr("pending"),
		Payout:           &payout,
		Category:         strPtr("conta-a"),
		NotificationType: models.TypeLead,
		Date:             strPtr("2024-04-01"),
		CreatedAt:        at,
	})

	// Sparse update: only the type changes, everything else survives.
	require.NoError(t, s.UpdateByID(ctx, id, models.LeadUpdate{NotificationType: models.TypeConversao}))
	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.TypeConversao, got.NotificationType)
	require.Equal(t, "pending", *got.Status)
	require.Equal(t, 10.0, *got.Payout)
	require.Equal(t, "conta-a", *got.Category)
	require.Equal(t, "2024-04-01", *got.Date)

	// Present fields overwrite, lead_id and offer_id only fill gaps.
	newPayout := 55.0
	require.NoError(t, s.UpdateByID(ctx, id, models.LeadUpdate{
		NotificationType: models.TypeConversao,
		Status:           strPtr("approved"),
		Payout:           &newPayout,
		LeadID:           strPtr("L-other"),
		OfferID:          strPtr("OFF-9"),
	}))
	got, err = s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "approved", *got.Status)
	require.Equal(t, 55.0, *got.Payout)
	require.Equal(t, "L1", *got.LeadID)     // already set, kept
	require.Equal(t, "OFF-9", *got.OfferID) // was empty, filled
}

func TestUpdateByIDUnknownID(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	err := s.UpdateByID(context.Background(), 42, models.LeadUpdate{NotificationType: models.TypeLead})
	require.Error(t, err)
}

func TestListFiltersByEffectiveDate(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()

	insertLead(t, s, &models.LeadRecord{
		LeadID: strPtr("L1"), NotificationType: models.TypeLead,
		Date: strPtr("2024-04-01"), CreatedAt: time.Date(2024, 4, 3, 1, 0, 0, 0, time.UTC),
	})
	// No explicit date: falls back to created_at's calendar day.
	insertLead(t, s, &models.LeadRecord{
		LeadID: strPtr("L2"), NotificationType: models.TypeLead,
		CreatedAt: time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC),
	})

	got, err := s.List(ctx, LeadFilter{Date: "2024-04-01"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "L1", *got[0].LeadID)

	got, err = s.List(ctx, LeadFilter{StartDate: "2024-04-01", EndDate: "2024-04-02"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "L2", *got[0].LeadID) // newest effective date first

	got, err = s.List(ctx, LeadFilter{StartDate: "2024-04-03", EndDate: "2024-04-03"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFindByLeadIDReturnsOldest(t *testing.T) {
	s := NewInMemoryLeadStore(time.UTC)
	ctx := context.Background()
	base := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	insertLead(t, s, &models.LeadRecord{LeadID: strPtr("L1"), NotificationType: models.TypeConversao, CreatedAt: base.Add(time.Hour)})
	oldest := insertLead(t, s, &models.LeadRecord{LeadID: strPtr("L1"), NotificationType: models.TypeLead, CreatedAt: base})

	got, err := s.FindByLeadID(ctx, "L1")
	require.NoError(t, err)
	require.Equal(t, oldest, got.ID)

	got, err = s.FindByLeadID(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestProductRepoCRUD(t *testing.T) {
	r := NewInMemoryProductRepo()
	ctx := context.Background()

	id, err := r.Create(ctx, &models.Product{Name: "Curso X", OfferID: "OFF-1", AccountName: "conta-a"})
	require.NoError(t, err)
	_, err = r.Create(ctx, &models.Product{Name: "Curso Y", OfferID: "OFF-2", AccountName: "conta-b"})
	require.NoError(t, err)

	p, err := r.FindByOfferID(ctx, "OFF-1")
	require.NoError(t, err)
	require.Equal(t, "conta-a", p.AccountName)

	ok, err := r.Update(ctx, &models.Product{ID: id, Name: "Curso X2", OfferID: "OFF-1", AccountName: "conta-a"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Update(ctx, &models.Product{ID: 999, Name: "nope"})
	require.NoError(t, err)
	require.False(t, ok)

	accounts, err := r.ListAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"conta-a", "conta-b"}, accounts)

	ok, err = r.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	list, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestVisitRepoUpsertReplaces(t *testing.T) {
	r := NewInMemoryVisitRepo()
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &models.VisitStats{URL: "/lp/a/index.php", Sub2: "a", Sessions: 10, Date: "2024-04-01"}))
	require.NoError(t, r.Upsert(ctx, &models.VisitStats{URL: "/lp/a/index.php", Sub2: "a", Sessions: 25, Date: "2024-04-01"}))
	require.NoError(t, r.Upsert(ctx, &models.VisitStats{URL: "/lp/a/index.php", Sub2: "a", Sessions: 5, Date: "2024-04-02"}))

	got, err := r.List(ctx, "2024-04-01", "2024-04-01")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(25), got[0].Sessions)

	got, err = r.List(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
}
