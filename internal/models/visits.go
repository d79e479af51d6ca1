package models

// VisitStats is one day of third-party visit metrics for a landing page,
// keyed by (url, date). Sub2 is the identifier derived from the URL used to
// join against lead sub2 values.
type VisitStats struct {
	URL         string `json:"url"`
	Sub2        string `json:"sub2"`
	Sessions    int64  `json:"sessions"`
	UniqueUsers int64  `json:"unique_users"`
	Date        string `json:"date"`
}
