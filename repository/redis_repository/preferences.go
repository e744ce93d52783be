package redis_repository

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/answerforge/answerforge/internal/agent/core"
)

const (
	preferencesKey    = "answerforge:preferences:default"
	totalQueriesKey   = "answerforge:stats:total_queries"
	successQueriesKey = "answerforge:stats:successful_queries"
)

// PreferencesRepo stores the default preference profile and request counters
// in Redis so they survive restarts
type PreferencesRepo struct {
	Client *redis.Client
}

// GetDefault loads the stored default profile. The second return is false
// when no profile has been stored yet.
func (r *PreferencesRepo) GetDefault(ctx context.Context) (core.PreferenceProfile, bool, error) {
	data, err := r.Client.Get(ctx, preferencesKey).Bytes()
	if err == redis.Nil {
		return core.PreferenceProfile{}, false, nil
	}
	if err != nil {
		return core.PreferenceProfile{}, false, err
	}
	var prefs core.PreferenceProfile
	if err := json.Unmarshal(data, &prefs); err != nil {
		return core.PreferenceProfile{}, false, err
	}
	return prefs, true, nil
}

// SetDefault stores the default profile
func (r *PreferencesRepo) SetDefault(ctx context.Context, prefs core.PreferenceProfile) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, preferencesKey, data, 0).Err()
}

// RecordQuery increments the request counters
func (r *PreferencesRepo) RecordQuery(ctx context.Context, successful bool) error {
	if err := r.Client.Incr(ctx, totalQueriesKey).Err(); err != nil {
		return err
	}
	if successful {
		return r.Client.Incr(ctx, successQueriesKey).Err()
	}
	return nil
}

// QueryCounts returns total and successful request counts
func (r *PreferencesRepo) QueryCounts(ctx context.Context) (int64, int64, error) {
	total, err := r.Client.Get(ctx, totalQueriesKey).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, err
	}
	successful, err := r.Client.Get(ctx, successQueriesKey).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, err
	}
	return total, successful, nil
}
