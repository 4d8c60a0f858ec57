// Package cache provides an optional Redis-backed cache of successful JSON
// responses.
//
// Air-quality APIs serve historical data that rarely changes within a
// pipeline run, so re-fetching identical URL+query combinations wastes the
// shared request budget. The cache stores raw JSON bodies under a
// deterministic key with a configured TTL; credentials never appear in keys
// because they are attached at the session layer, after key construction.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 6*time.Hour)
//
//	key := cache.Key{
//		URL:   "https://aqs.epa.gov/data/api/dailyData/byState",
//		Query: url.Values{"state": []string{"06"}},
//	}
//
//	body, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from upstream, then manager.Set(ctx, key, body)
//	}
package cache
