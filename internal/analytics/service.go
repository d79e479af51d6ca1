package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/config"
	"github.com/radiusdt/leadtrack/internal/metrics"
	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
)

// ErrQuotaExceeded is returned when today's pull allowance is used up.
var ErrQuotaExceeded = errors.New("daily analytics request limit reached")

// Service pulls visit counts from Clarity and GA4 and stores them for the
// sub2 report join. Pulls are quota-limited per day.
type Service struct {
	cfg        config.AnalyticsConfig
	visits     storage.VisitRepo
	quota      RequestQuota
	logger     *zap.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	loc        *time.Location
}

func NewService(cfg config.AnalyticsConfig, visits storage.VisitRepo, quota RequestQuota, logger *zap.Logger, m *metrics.Metrics, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		cfg:        cfg,
		visits:     visits,
		quota:      quota,
		logger:     logger,
		metrics:    m,
		httpClient: &http.Client{Timeout: timeout},
		loc:        loc,
	}
}

// QuotaStatus is what the request-count endpoint returns.
type QuotaStatus struct {
	RequestsUsed int    `json:"requests_used"`
	DailyLimit   int    `json:"daily_limit"`
	Remaining    int    `json:"remaining"`
	Date         string `json:"date"`
}

func (s *Service) Quota(ctx context.Context) (*QuotaStatus, error) {
	used, err := s.quota.Used(ctx)
	if err != nil {
		return nil, err
	}
	remaining := s.quota.Limit() - used
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaStatus{
		RequestsUsed: used,
		DailyLimit:   s.quota.Limit(),
		Remaining:    remaining,
		Date:         time.Now().In(s.loc).Format("2006-01-02"),
	}, nil
}

func (s *Service) checkQuota(ctx context.Context) error {
	used, err := s.quota.Used(ctx)
	if err != nil {
		return err
	}
	if used >= s.quota.Limit() {
		return ErrQuotaExceeded
	}
	return nil
}

// UpdateFromClarity pulls the Clarity traffic export and replaces today's
// visit rows. Returns the number of rows stored.
func (s *Service) UpdateFromClarity(ctx context.Context) (int, error) {
	if s.cfg.ClarityToken == "" {
		return 0, errors.New("clarity token not configured")
	}
	if err := s.checkQuota(ctx); err != nil {
		return 0, err
	}

	rows, err := s.fetchClarityTraffic(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAnalyticsRequest("clarity", "error")
		}
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordAnalyticsRequest("clarity", "ok")
	}

	if err := s.quota.Increment(ctx); err != nil {
		s.logger.Warn("failed to record analytics request", zap.Error(err))
	}

	date := time.Now().In(s.loc).Format("2006-01-02")
	stored := 0
	for _, row := range rows {
		if row.URL == "" {
			continue
		}
		v := &models.VisitStats{
			URL:         row.URL,
			Sub2:        ExtractIdentifier(row.URL),
			Sessions:    parseCount(row.TotalSessionCount),
			UniqueUsers: parseCount(row.DistinctUserCount),
			Date:        date,
		}
		if err := s.visits.Upsert(ctx, v); err != nil {
			s.logger.Warn("failed to store visit stats", zap.String("url", row.URL), zap.Error(err))
			continue
		}
		stored++
	}
	s.logger.Info("clarity visits updated", zap.Int("stored", stored), zap.Int("received", len(rows)))
	return stored, nil
}

// GAStatus reports whether the GA4 integration is usable.
type GAStatus struct {
	Configured bool   `json:"configured"`
	PropertyID string `json:"property_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (s *Service) AnalyticsStatus() *GAStatus {
	if s.cfg.GAPropertyID == "" || s.cfg.GAAccessToken == "" {
		return &GAStatus{Configured: false, Message: "GA4 property or access token not configured"}
	}
	return &GAStatus{Configured: true, PropertyID: s.cfg.GAPropertyID}
}

// UpdateFromGA pulls today's per-page sessions from GA4 and replaces
// today's visit rows.
func (s *Service) UpdateFromGA(ctx context.Context) (int, error) {
	status := s.AnalyticsStatus()
	if !status.Configured {
		return 0, fmt.Errorf("analytics not configured: %s", status.Message)
	}
	if err := s.checkQuota(ctx); err != nil {
		return 0, err
	}

	rows, err := s.fetchGAReport(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAnalyticsRequest("ga4", "error")
		}
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.RecordAnalyticsRequest("ga4", "ok")
	}

	if err := s.quota.Increment(ctx); err != nil {
		s.logger.Warn("failed to record analytics request", zap.Error(err))
	}

	date := time.Now().In(s.loc).Format("2006-01-02")
	stored := 0
	for _, row := range rows {
		if row.PagePath == "" {
			continue
		}
		v := &models.VisitStats{
			URL:         row.PagePath,
			Sub2:        ExtractIdentifier(row.PagePath),
			Sessions:    row.Sessions,
			UniqueUsers: row.TotalUsers,
			Date:        date,
		}
		if err := s.visits.Upsert(ctx, v); err != nil {
			s.logger.Warn("failed to store visit stats", zap.String("url", row.PagePath), zap.Error(err))
			continue
		}
		stored++
	}
	s.logger.Info("ga4 visits updated", zap.Int("stored", stored), zap.Int("received", len(rows)))
	return stored, nil
}
