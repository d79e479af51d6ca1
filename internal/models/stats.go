package models

import "time"

// CampaignStats is one denormalized counter bucket keyed by
// (campaign, adset, ad). Derived from LeadRecord transitions; rebuildable,
// never a source of truth.
type CampaignStats struct {
	Campaign   string    `json:"campaign"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Adset      string    `json:"adset"`
	AdsetID    string    `json:"adset_id,omitempty"`
	Ad         string    `json:"ad"`
	AdID       string    `json:"ad_id,omitempty"`
	Placement  string    `json:"placement,omitempty"`
	SiteSource string    `json:"site_source,omitempty"`
	Leads      int64     `json:"leads"`
	Conversoes int64     `json:"conversoes"`
	Trash      int64     `json:"trash"`
	Cancel     int64     `json:"cancel"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatsMeta carries the optional bucket metadata refreshed on every touch
// with fill-if-present semantics.
type StatsMeta struct {
	CampaignID string
	AdsetID    string
	AdID       string
	Placement  string
	SiteSource string
}
