package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractIdentifier(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/lp/offer-x/index.php", "offer-x"},
		{"/offer-y/index.php", "offer-y"},
		{"https://example.com/a/b/c", "b"},
		{"https://example.com/a/b/", "a"},
		{"/solo", "solo"},
		{"https://example.com/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ExtractIdentifier(tc.url), "url=%q", tc.url)
	}
}

func TestInMemoryQuota(t *testing.T) {
	q := NewInMemoryQuota(2, nil)
	ctx := context.Background()

	used, err := q.Used(ctx)
	require.NoError(t, err)
	require.Zero(t, used)

	require.NoError(t, q.Increment(ctx))
	require.NoError(t, q.Increment(ctx))

	used, err = q.Used(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, used)
	require.Equal(t, 2, q.Limit())
}
