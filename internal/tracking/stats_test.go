package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
)

func newTestMaintainer() (*StatsMaintainer, *storage.InMemoryStatsRepo) {
	repo := storage.NewInMemoryStatsRepo()
	return NewStatsMaintainer(repo, zap.NewNop(), nil), repo
}

func TestRecordCreateSkipsEmptyCampaign(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordCreate(ctx, "", "AdsetB", "AdC", models.TypeLead, models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, buckets)
}

func TestRecordCreateDefaultsAdsetAndAd(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordCreate(ctx, "CampA", "", "", models.TypeLead, models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, "CampA", buckets[0].Campaign)
	require.Equal(t, "N/A", buckets[0].Adset)
	require.Equal(t, "N/A", buckets[0].Ad)
	require.Equal(t, int64(1), buckets[0].Leads)
}

func TestRecordCreateStatusSynonyms(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordCreate(ctx, "CampA", "AdsetB", "AdC", "approval", models.StatsMeta{})
	sm.RecordCreate(ctx, "CampA", "AdsetB", "AdC", "rejection", models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, int64(1), buckets[0].Conversoes)
	require.Equal(t, int64(1), buckets[0].Cancel)
}

func TestRecordTransitionMovesOneUnit(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordCreate(ctx, "CampA", "AdsetB", "AdC", models.TypeLead, models.StatsMeta{})
	sm.RecordTransition(ctx, "CampA", "AdsetB", "AdC", models.TypeLead, models.TypeConversao, models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, int64(0), buckets[0].Leads)
	require.Equal(t, int64(1), buckets[0].Conversoes)
}

func TestRecordTransitionFloorsAtZero(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	// Transition into a bucket that never saw the create: the decremented
	// column cannot go negative.
	sm.RecordCreate(ctx, "CampA", "AdsetB", "AdC", models.TypeConversao, models.StatsMeta{})
	sm.RecordTransition(ctx, "CampA", "AdsetB", "AdC", models.TypeLead, models.TypeCancel, models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, int64(0), buckets[0].Leads)
	require.Equal(t, int64(1), buckets[0].Cancel)
	require.Equal(t, int64(1), buckets[0].Conversoes)
}

func TestRecordTransitionCreatesMissingBucket(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordTransition(ctx, "CampA", "AdsetB", "AdC", models.TypeLead, models.TypeConversao, models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, int64(0), buckets[0].Leads)
	require.Equal(t, int64(1), buckets[0].Conversoes)
}

func TestRecordTransitionSameTypeIsNoop(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordCreate(ctx, "CampA", "AdsetB", "AdC", models.TypeConversao, models.StatsMeta{})
	sm.RecordTransition(ctx, "CampA", "AdsetB", "AdC", models.TypeConversao, models.TypeConversao, models.StatsMeta{})
	// approval and conversao share a column, so this is a no-op too.
	sm.RecordTransition(ctx, "CampA", "AdsetB", "AdC", "approval", models.TypeConversao, models.StatsMeta{})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, int64(1), buckets[0].Conversoes)
}

func TestStatsMetadataFilledWhenPresent(t *testing.T) {
	sm, repo := newTestMaintainer()
	ctx := context.Background()

	sm.RecordCreate(ctx, "CampA", "AdsetB", "AdC", models.TypeLead, models.StatsMeta{
		CampaignID: "c-1",
		Placement:  "feed",
	})
	// Empty fields never wipe what a previous postback filled in.
	sm.RecordTransition(ctx, "CampA", "AdsetB", "AdC", models.TypeLead, models.TypeConversao, models.StatsMeta{
		AdID: "a-9",
	})

	buckets, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, "c-1", buckets[0].CampaignID)
	require.Equal(t, "feed", buckets[0].Placement)
	require.Equal(t, "a-9", buckets[0].AdID)
}
