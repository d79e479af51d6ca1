package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

const clarityEndpoint = "https://www.clarity.ms/export-data/api/v1/project-live-insights"

type clarityMetric struct {
	MetricName  string        `json:"metricName"`
	Information []clarityInfo `json:"information"`
}

// clarityInfo mirrors the export API's field names, misspellings included.
type clarityInfo struct {
	URL               string `json:"url"`
	TotalSessionCount string `json:"totalSessionCount"`
	DistinctUserCount string `json:"distantUserCount"`
}

// fetchClarityTraffic pulls the Traffic metric rows from the Clarity
// live-insights export.
func (s *Service) fetchClarityTraffic(ctx context.Context) ([]clarityInfo, error) {
	url := fmt.Sprintf("%s?numOfDays=%d", clarityEndpoint, s.cfg.ClarityNumOfDays)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build clarity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ClarityToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call clarity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clarity returned status %d", resp.StatusCode)
	}

	var metrics []clarityMetric
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("failed to decode clarity response: %w", err)
	}

	for _, m := range metrics {
		if m.MetricName == "Traffic" {
			return m.Information, nil
		}
	}
	return nil, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
