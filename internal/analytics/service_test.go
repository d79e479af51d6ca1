package analytics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/config"
	"github.com/radiusdt/leadtrack/internal/storage"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newClarityTestService(body string) (*Service, *storage.InMemoryVisitRepo, *InMemoryQuota) {
	visits := storage.NewInMemoryVisitRepo()
	quota := NewInMemoryQuota(5, time.UTC)
	svc := NewService(config.AnalyticsConfig{
		ClarityToken:     "tok",
		ClarityNumOfDays: 1,
	}, visits, quota, zap.NewNop(), nil, time.UTC)
	svc.httpClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return stubResponse(http.StatusOK, body), nil
	})}
	return svc, visits, quota
}

func TestUpdateFromClarityStoresVisits(t *testing.T) {
	body := `[{"metricName":"Traffic","information":[
		{"url":"https://site.test/my-page/index.php","totalSessionCount":"200","distantUserCount":"150"},
		{"url":"","totalSessionCount":"9","distantUserCount":"9"}
	]}]`
	svc, visits, quota := newClarityTestService(body)
	ctx := context.Background()

	stored, err := svc.UpdateFromClarity(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	used, err := quota.Used(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, used)

	rows, err := visits.List(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "my-page", rows[0].Sub2)
	require.Equal(t, int64(200), rows[0].Sessions)
	require.Equal(t, int64(150), rows[0].UniqueUsers)
}

func TestUpdateFromClarityFetchError(t *testing.T) {
	svc, _, quota := newClarityTestService("")
	svc.httpClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return stubResponse(http.StatusForbidden, ""), nil
	})}
	ctx := context.Background()

	_, err := svc.UpdateFromClarity(ctx)
	require.Error(t, err)

	// A failed pull must not consume quota.
	used, err := quota.Used(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, used)
}

func TestUpdateFromClarityQuotaExhausted(t *testing.T) {
	svc, _, quota := newClarityTestService(`[]`)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, quota.Increment(ctx))
	}

	_, err := svc.UpdateFromClarity(ctx)
	require.ErrorIs(t, err, ErrQuotaExceeded)
}
