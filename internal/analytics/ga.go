package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// gaRow is one pagePath with its session and user counts.
type gaRow struct {
	PagePath   string
	Sessions   int64
	TotalUsers int64
}

type gaReportRequest struct {
	DateRanges []gaDateRange `json:"dateRanges"`
	Dimensions []gaName      `json:"dimensions"`
	Metrics    []gaName      `json:"metrics"`
	Limit      string        `json:"limit"`
}

type gaDateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type gaName struct {
	Name string `json:"name"`
}

type gaReportResponse struct {
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

// fetchGAReport runs a GA4 report for today's sessions and users per page.
func (s *Service) fetchGAReport(ctx context.Context) ([]gaRow, error) {
	body := gaReportRequest{
		DateRanges: []gaDateRange{{StartDate: "today", EndDate: "today"}},
		Dimensions: []gaName{{Name: "pagePath"}},
		Metrics:    []gaName{{Name: "sessions"}, {Name: "totalUsers"}},
		Limit:      "10000",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report request: %w", err)
	}

	url := fmt.Sprintf("https://analyticsdata.googleapis.com/v1beta/properties/%s:runReport", s.cfg.GAPropertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.GAAccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analytics data api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analytics data api returned status %d", resp.StatusCode)
	}

	var report gaReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report response: %w", err)
	}

	rows := make([]gaRow, 0, len(report.Rows))
	for _, r := range report.Rows {
		if len(r.DimensionValues) < 1 || len(r.MetricValues) < 2 {
			continue
		}
		rows = append(rows, gaRow{
			PagePath:   r.DimensionValues[0].Value,
			Sessions:   parseCount(r.MetricValues[0].Value),
			TotalUsers: parseCount(r.MetricValues[1].Value),
		})
	}
	return rows, nil
}
