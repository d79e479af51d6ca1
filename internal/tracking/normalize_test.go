package tracking

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)

func TestNormalizePlaceholdersTreatedAsAbsent(t *testing.T) {
	n := Normalize(map[string]string{
		"leadId":   "{leadid}",
		"offer_id": "{offer_id}",
		"sub1":     "{sub_id1}",
		"campaign": "{campaign}",
		"sub2":     "real-value",
	}, testNow, time.UTC)

	require.Empty(t, n.LeadID)
	require.Empty(t, n.OfferID)
	require.Empty(t, n.Sub1)
	require.Empty(t, n.Campaign)
	require.Equal(t, "real-value", n.Sub2)
}

func TestNormalizeAliasChains(t *testing.T) {
	n := Normalize(map[string]string{
		"lead_id":  "L-1",
		"order_id": "OFF-9",
		"state":    "approved",
		"price":    "12.50",
	}, testNow, time.UTC)

	require.Equal(t, "L-1", n.LeadID)
	require.Equal(t, "OFF-9", n.OfferID)
	require.Equal(t, "approved", n.Status)
	require.NotNil(t, n.Payout)
	require.Equal(t, 12.50, *n.Payout)
}

func TestNormalizePrimaryAliasWins(t *testing.T) {
	n := Normalize(map[string]string{
		"leadId": "primary",
		"leadid": "fallback",
		"payout": "5",
		"price":  "7",
	}, testNow, time.UTC)

	require.Equal(t, "primary", n.LeadID)
	require.Equal(t, 7.0, *n.Payout) // price outranks payout
}

func TestNormalizePixelFillsSub8(t *testing.T) {
	n := Normalize(map[string]string{"pixel": "px-123"}, testNow, time.UTC)
	require.Equal(t, "px-123", n.Sub8)

	n = Normalize(map[string]string{"pixel": "px-123", "sub8": "s8"}, testNow, time.UTC)
	require.Equal(t, "s8", n.Sub8)
}

func TestNormalizeHierarchyPrecedence(t *testing.T) {
	// UTM beats sub slots, which beat the direct field.
	n := Normalize(map[string]string{
		"utm_campaign": "utm-camp",
		"sub6":         "sub-camp",
		"campaign":     "direct-camp",
		"utm_content":  "utm-adset",
		"sub5":         "sub-adset",
		"utm_term":     "utm-ad",
		"sub4":         "sub-ad",
	}, testNow, time.UTC)

	require.Equal(t, "utm-camp", n.Campaign)
	require.Equal(t, "utm-adset", n.Adset)
	require.Equal(t, "utm-ad", n.Ad)

	n = Normalize(map[string]string{
		"sub6":     "sub-camp",
		"campaign": "direct-camp",
		"sub5":     "sub-adset",
		"adset":    "direct-adset",
		"sub4":     "sub-ad",
		"ad":       "direct-ad",
	}, testNow, time.UTC)

	require.Equal(t, "sub-camp", n.Campaign)
	require.Equal(t, "sub-adset", n.Adset)
	require.Equal(t, "sub-ad", n.Ad)
}

func TestNormalizeSub3FeedsCampaign(t *testing.T) {
	n := Normalize(map[string]string{
		"sub3":     "camp-from-sub3",
		"campaign": "direct-camp",
	}, testNow, time.UTC)

	require.Equal(t, "camp-from-sub3", n.Campaign)
}

func TestNormalizePayoutMalformed(t *testing.T) {
	n := Normalize(map[string]string{"payout": "abc"}, testNow, time.UTC)
	require.Nil(t, n.Payout)
}

func TestNormalizeAttributionDate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2024-03-05 14:00:00", "2024-03-05"},
		{"2024-03-05T14:00:00", "2024-03-05"},
		{"2024-03-05", "2024-03-05"},
		{"05/03/2024", "2024-03-05"},
		{"not-a-date", "2024-05-10"},
		{"", "2024-05-10"},
	}
	for _, tc := range cases {
		n := Normalize(map[string]string{"date": tc.raw}, testNow, time.UTC)
		require.Equal(t, tc.want, n.AttributionDate, "raw=%q", tc.raw)
	}
}

func TestNormalizeAttributionDateUnixTimestamps(t *testing.T) {
	ts := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	n := Normalize(map[string]string{"timestamp": strconv.FormatInt(ts.Unix(), 10)}, testNow, time.UTC)
	require.Equal(t, "2024-03-01", n.AttributionDate)

	n = Normalize(map[string]string{"timestamp": strconv.FormatInt(ts.UnixMilli(), 10)}, testNow, time.UTC)
	require.Equal(t, "2024-03-01", n.AttributionDate)
}

func TestNormalizeMetadataSlots(t *testing.T) {
	n := Normalize(map[string]string{
		"sub2":       "ad-77",
		"sub3":       "adset-88",
		"sub7":       "feed",
		"utm_source": "fb",
	}, testNow, time.UTC)

	require.Equal(t, "ad-77", n.AdID)
	require.Equal(t, "adset-88", n.AdsetID)
	require.Equal(t, "adset-88", n.CampaignID)
	require.Equal(t, "feed", n.Placement)
	require.Equal(t, "fb", n.UTMSource)

	// Dedicated ids outrank the sub slots.
	n = Normalize(map[string]string{
		"ad_id": "real-ad",
		"sub2":  "ad-77",
	}, testNow, time.UTC)
	require.Equal(t, "real-ad", n.AdID)
}
