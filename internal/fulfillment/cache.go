package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ReportCache keeps recently computed availability reports for display reads.
// Reports go stale the moment stock moves; the confirmation flow never reads
// from the cache.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewReportCache builds the cache. A short TTL keeps display reads cheap
// without letting decisions rest on stale figures.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ReportCache{client: client, ttl: ttl}
}

// Get returns the cached report or computes it, collapsing concurrent
// computations of the same key into one.
func (c *ReportCache) Get(ctx context.Context, companyID int64, demand []DemandLine, excludeOrderIDs []int64, compute func() (AvailabilityReport, error)) (AvailabilityReport, error) {
	if c == nil || c.client == nil {
		return compute()
	}
	key := cacheKey(companyID, demand, excludeOrderIDs)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var report AvailabilityReport
		if err := json.Unmarshal(payload, &report); err == nil {
			return report, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return compute()
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		report, err := compute()
		if err != nil {
			return AvailabilityReport{}, err
		}
		if data, err := json.Marshal(report); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttl).Err()
		}
		return report, nil
	})
	if err != nil {
		return AvailabilityReport{}, err
	}
	return value.(AvailabilityReport), nil
}

// Invalidate drops every cached report for the company. Called after stock
// movements and reservations change the availability picture.
func (c *ReportCache) Invalidate(ctx context.Context, companyID int64) {
	if c == nil || c.client == nil {
		return
	}
	pattern := fmt.Sprintf("availability:%d:*", companyID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}

func cacheKey(companyID int64, demand []DemandLine, excludeOrderIDs []int64) string {
	h := fnv.New64a()
	for _, line := range demand {
		fmt.Fprintf(h, "%d:%d:%.4f:%.4f;", line.ID, line.SKUID, line.Qty, line.DeliveredQty)
	}
	for _, id := range excludeOrderIDs {
		fmt.Fprintf(h, "x%d;", id)
	}
	return fmt.Sprintf("availability:%d:%x", companyID, h.Sum64())
}
