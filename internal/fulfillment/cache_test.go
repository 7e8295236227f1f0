package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCache(client, time.Minute), srv
}

func TestReportCacheComputesOnce(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()
	demand := []DemandLine{{ID: 1, SKUID: 100, Qty: 5}}

	calls := 0
	compute := func() (AvailabilityReport, error) {
		calls++
		return AvailabilityReport{CompanyID: 1, ZoneID: 10, Lines: []AvailabilityLine{{SKUID: 1, RequiredQty: 10}}}, nil
	}

	first, err := cache.Get(ctx, 1, demand, nil, compute)
	require.NoError(t, err)
	second, err := cache.Get(ctx, 1, demand, nil, compute)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestReportCacheKeyedByDemand(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	calls := 0
	compute := func() (AvailabilityReport, error) {
		calls++
		return AvailabilityReport{CompanyID: 1}, nil
	}

	_, err := cache.Get(ctx, 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 5}}, nil, compute)
	require.NoError(t, err)
	_, err = cache.Get(ctx, 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 6}}, nil, compute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestReportCacheInvalidate(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()
	demand := []DemandLine{{ID: 1, SKUID: 100, Qty: 5}}

	calls := 0
	compute := func() (AvailabilityReport, error) {
		calls++
		return AvailabilityReport{CompanyID: 1}, nil
	}

	_, err := cache.Get(ctx, 1, demand, nil, compute)
	require.NoError(t, err)
	cache.Invalidate(ctx, 1)
	_, err = cache.Get(ctx, 1, demand, nil, compute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestReportCachePropagatesComputeError(t *testing.T) {
	cache, _ := testCache(t)
	wantErr := errors.New("boom")

	_, err := cache.Get(context.Background(), 1, nil, nil, func() (AvailabilityReport, error) {
		return AvailabilityReport{}, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}
