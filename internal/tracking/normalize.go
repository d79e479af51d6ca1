package tracking

import (
	"strconv"
	"strings"
	"time"
)

// NormalizedPostback is the canonical field set extracted from an inbound
// parameter bag. Empty string means absent.
type NormalizedPostback struct {
	Sub1, Sub2, Sub3, Sub4 string
	Sub5, Sub6, Sub7, Sub8 string

	Campaign string
	Adset    string
	Ad       string

	LeadID  string
	OfferID string
	Status  string
	Payout  *float64

	CampaignID string
	AdsetID    string
	AdID       string
	Placement  string
	UTMSource  string
	UTMMedium  string

	// AttributionDate is the calendar day (YYYY-MM-DD) the lead is credited
	// to, already in the tracking timezone. Only consumed on the CREATE
	// path.
	AttributionDate string
}

// placeholderTokens are macro values upstream networks send through when a
// template slot was never substituted.
var placeholderTokens = map[string]bool{
	"{leadid}":   true,
	"{lead_id}":  true,
	"{offer_id}": true,
	"{offerid}":  true,
	"{campaign}": true,
	"{adset}":    true,
	"{ad}":       true,
	"{sub_id}":   true,
	"{sub_id1}":  true,
	"{sub_id2}":  true,
	"{sub_id3}":  true,
	"{sub_id4}":  true,
	"{sub_id5}":  true,
	"{sub_id6}":  true,
}

// isValidValue reports whether a raw parameter value is usable. Empty
// values and unsubstituted template markers are treated as absent.
func isValidValue(v string) bool {
	if v == "" {
		return false
	}
	if strings.Contains(v, "{") && strings.Contains(v, "}") {
		return false
	}
	return !placeholderTokens[strings.ToLower(v)]
}

// pick returns the first valid value among the aliased keys.
func pick(params map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok && isValidValue(v) {
			return v
		}
	}
	return ""
}

// Normalize extracts the canonical field set from a raw parameter bag.
// Pure function; now and loc fix the attribution-date computation.
func Normalize(params map[string]string, now time.Time, loc *time.Location) NormalizedPostback {
	n := NormalizedPostback{
		Sub1: pick(params, "sub1", "sub_id1", "sub_id"),
		Sub2: pick(params, "sub2", "sub_id2"),
		Sub3: pick(params, "sub3", "sub_id3"),
		Sub4: pick(params, "sub4", "sub_id4"),
		Sub5: pick(params, "sub5", "sub_id5"),
		Sub6: pick(params, "sub6", "sub_id6"),
		Sub7: pick(params, "sub7", "sub_id7"),
		Sub8: pick(params, "sub8", "sub_id8", "pixel"),

		LeadID:  pick(params, "leadId", "lead_id", "leadid"),
		OfferID: pick(params, "offer_id", "offerId", "offerid", "order_id", "orderId", "orderid", "order", "id"),
		Status:  pick(params, "status", "state"),

		Placement: pick(params, "placement", "sub7", "sub_id7"),
		UTMSource: pick(params, "utm_source"),
		UTMMedium: pick(params, "utm_medium"),
	}

	n.AdID = pick(params, "ad_id", "sub2")
	n.AdsetID = pick(params, "adset_id", "sub3")
	n.CampaignID = pick(params, "campaign_id", "sub3")

	// Hierarchy names: UTM field wins, then the dedicated sub slot, then
	// the direct field.
	// Some senders put the campaign name in sub3, so it ranks above the
	// direct field.
	n.Campaign = firstNonEmpty(pick(params, "utm_campaign"), n.Sub6, n.Sub3, pick(params, "campaign"))
	n.Adset = firstNonEmpty(pick(params, "utm_content"), n.Sub5, pick(params, "adset"))
	n.Ad = firstNonEmpty(pick(params, "utm_term"), n.Sub4, pick(params, "ad"))

	if raw := pick(params, "price", "payout", "amount", "value", "revenue"); raw != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			n.Payout = &f
		}
	}

	n.AttributionDate = attributionDate(pick(params, "date", "timestamp", "time"), now, loc)

	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// dateLayouts are the input formats accepted for the attribution date, in
// the order they are tried.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// attributionDate converts a raw date parameter to a calendar day in loc.
// Missing or unparsable input falls back to today.
func attributionDate(raw string, now time.Time, loc *time.Location) string {
	if raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 1e9 {
			// Unix seconds or milliseconds.
			if secs > 1e12 {
				secs /= 1000
			}
			return time.Unix(secs, 0).In(loc).Format("2006-01-02")
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
				return t.In(loc).Format("2006-01-02")
			}
		}
	}
	return now.In(loc).Format("2006-01-02")
}
