package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/models"
)

// RankingSnapshotTTL outlives one cycle plus the auto-close grace.
const RankingSnapshotTTL = 10 * 24 * time.Hour

// RankingCache keeps the latest ranking per (cohort, user) in redis.
type RankingCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRankingCache(addr string, log *logger.Logger) (*RankingCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRankingCacheFromClient(rdb, RankingSnapshotTTL, log), nil
}

func NewRankingCacheFromClient(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RankingCache {
	if log == nil {
		log = logger.Nop()
	}
	return &RankingCache{rdb: rdb, ttl: ttl, log: log.With("service", "RankingCache")}
}

func rankingKey(userID, cohortID string) string {
	return "kinship:ranking:" + cohortID + ":" + userID
}

func (rc *RankingCache) SaveSnapshot(ctx context.Context, s models.RankingSnapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return rc.rdb.Set(ctx, rankingKey(s.UserID, s.CohortID), raw, rc.ttl).Err()
}

func (rc *RankingCache) LatestSnapshot(ctx context.Context, userID, cohortID string) (models.RankingSnapshot, bool, error) {
	raw, err := rc.rdb.Get(ctx, rankingKey(userID, cohortID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RankingSnapshot{}, false, nil
	}
	if err != nil {
		return models.RankingSnapshot{}, false, err
	}
	var s models.RankingSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		// An unreadable entry is treated as no ranking; the next refresh overwrites it.
		rc.log.Warn("discarding corrupt ranking snapshot", "user_id", userID, "cohort", cohortID, "error", err)
		return models.RankingSnapshot{}, false, nil
	}
	return s, true, nil
}

func (rc *RankingCache) Close() error {
	return rc.rdb.Close()
}
