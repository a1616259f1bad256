package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunStore persists run state and the due-time index. Backed by Redis in
// production; an in-memory fake backs the engine tests.
type RunStore interface {
	// CreateRunIfAbsent stores the run unless one already exists for the
	// subscription. Returns whether the run was created.
	CreateRunIfAbsent(ctx context.Context, run *Run) (bool, error)
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, subscriptionID uint) (*Run, error)
	DeleteRun(ctx context.Context, subscriptionID uint) error
	// Schedule indexes the run for wake-up at the given time.
	Schedule(ctx context.Context, subscriptionID uint, at time.Time) error
	// EnsureScheduled re-indexes a run only if it is missing from the index
	// (crash recovery; an existing entry keeps its wake-up time).
	EnsureScheduled(ctx context.Context, subscriptionID uint, at time.Time) error
	Unschedule(ctx context.Context, subscriptionID uint) error
	// ClaimDue atomically claims one subscription whose wake-up time has
	// arrived. At most one caller wins a given member.
	ClaimDue(ctx context.Context, now time.Time) (uint, bool, error)
}

type redisRunStore struct {
	client *redis.Client
}

// NewRedisRunStore creates a run store on the given Redis client.
func NewRedisRunStore(client *redis.Client) RunStore {
	return &redisRunStore{client: client}
}

func runKey(subscriptionID uint) string {
	return RunKeyPrefix + strconv.FormatUint(uint64(subscriptionID), 10)
}

func (s *redisRunStore) CreateRunIfAbsent(ctx context.Context, run *Run) (bool, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return false, fmt.Errorf("failed to marshal run: %w", err)
	}
	return s.client.SetNX(ctx, runKey(run.SubscriptionID), data, 0).Result()
}

func (s *redisRunStore) SaveRun(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	// A suspended run may sleep for months; only terminal state expires.
	var ttl time.Duration
	if run.Status.Terminal() {
		ttl = TerminalRunTTL
	}
	return s.client.Set(ctx, runKey(run.SubscriptionID), data, ttl).Err()
}

func (s *redisRunStore) GetRun(ctx context.Context, subscriptionID uint) (*Run, error) {
	data, err := s.client.Get(ctx, runKey(subscriptionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %d: %w", subscriptionID, err)
	}
	return &run, nil
}

func (s *redisRunStore) DeleteRun(ctx context.Context, subscriptionID uint) error {
	return s.client.Del(ctx, runKey(subscriptionID)).Err()
}

func (s *redisRunStore) Schedule(ctx context.Context, subscriptionID uint, at time.Time) error {
	member := strconv.FormatUint(uint64(subscriptionID), 10)
	return s.client.ZAdd(ctx, ScheduleKey, redis.Z{Score: float64(at.Unix()), Member: member}).Err()
}

func (s *redisRunStore) EnsureScheduled(ctx context.Context, subscriptionID uint, at time.Time) error {
	member := strconv.FormatUint(uint64(subscriptionID), 10)
	return s.client.ZAddNX(ctx, ScheduleKey, redis.Z{Score: float64(at.Unix()), Member: member}).Err()
}

func (s *redisRunStore) Unschedule(ctx context.Context, subscriptionID uint) error {
	member := strconv.FormatUint(uint64(subscriptionID), 10)
	return s.client.ZRem(ctx, ScheduleKey, member).Err()
}

func (s *redisRunStore) ClaimDue(ctx context.Context, now time.Time) (uint, bool, error) {
	members, err := s.client.ZRangeByScore(ctx, ScheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: 8,
	}).Result()
	if err != nil {
		return 0, false, err
	}
	for _, member := range members {
		// ZRem decides the winner when several workers see the same member.
		removed, err := s.client.ZRem(ctx, ScheduleKey, member).Result()
		if err != nil {
			return 0, false, err
		}
		if removed == 0 {
			continue
		}
		id, perr := strconv.ParseUint(member, 10, 64)
		if perr != nil {
			continue
		}
		return uint(id), true, nil
	}
	return 0, false, nil
}
