// Package strike keeps per-user strike counters and suspensions in Redis.
// Each user has one hash:
//
//	Key:    strikes:<userID>
//	Fields: strike_count      number of severe or critical messages
//	        last_strike_at    unix seconds of the latest strike
//	        suspension_until  unix seconds, absent when never suspended
//
// The escalation policy that turns strikes into suspensions lives here, next to
// the counter, so the moderation pipeline only has to report a strike.
package strike

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bookstage/chatguard/internal/moderation"
)

const (
	// KeyPrefix is the Redis key prefix for strike records.
	KeyPrefix = "strikes:"

	fieldCount           = "strike_count"
	fieldLastStrikeAt    = "last_strike_at"
	fieldSuspensionUntil = "suspension_until"
)

// Policy maps a strike count to a suspension. Counts below Threshold carry no
// suspension; from Threshold on, Durations are applied in order and the last
// one repeats.
type Policy struct {
	Threshold int
	Durations []time.Duration
}

// DefaultPolicy suspends on the third strike: 15 minutes, then 1 hour, then
// 24 hours for every strike after that.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: 3,
		Durations: []time.Duration{15 * time.Minute, time.Hour, 24 * time.Hour},
	}
}

// SuspensionFor returns the suspension earned by reaching count strikes, or 0.
func (p Policy) SuspensionFor(count int) time.Duration {
	if p.Threshold <= 0 || count < p.Threshold || len(p.Durations) == 0 {
		return 0
	}
	i := count - p.Threshold
	if i >= len(p.Durations) {
		i = len(p.Durations) - 1
	}
	return p.Durations[i]
}

// incrementScript bumps the counter and stamps the strike time in one round
// trip so concurrent strikes for the same user are never lost.
var incrementScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
return count
`)

// Store manages strike records in Redis.
type Store struct {
	client *redis.Client
	policy Policy
	now    func() time.Time
}

var _ moderation.StrikeStore = (*Store)(nil)

// NewStore creates a strike store using the provided Redis client and policy.
func NewStore(client *redis.Client, policy Policy) *Store {
	return &Store{client: client, policy: policy, now: time.Now}
}

// GetUserStrike returns the strike record for userID. A user with no record
// gets the zero value. Redis errors are returned so the caller can choose its
// failure mode.
func (s *Store) GetUserStrike(ctx context.Context, userID string) (moderation.UserStrike, error) {
	fields, err := s.client.HGetAll(ctx, KeyPrefix+userID).Result()
	if err != nil {
		return moderation.UserStrike{}, fmt.Errorf("strike: get: %w", err)
	}
	rec, err := parseRecord(fields)
	if err != nil {
		return moderation.UserStrike{}, fmt.Errorf("strike: get %s: %w", userID, err)
	}
	return rec, nil
}

// IncrementUserStrikes records one strike for userID and applies the
// suspension the policy assigns to the new count.
func (s *Store) IncrementUserStrikes(ctx context.Context, userID string) error {
	_, _, err := s.Increment(ctx, userID)
	return err
}

// Increment records one strike and returns the new count together with the
// suspension applied, 0 when the count is still below the threshold.
func (s *Store) Increment(ctx context.Context, userID string) (int, time.Duration, error) {
	key := KeyPrefix + userID
	now := s.now()

	count, err := incrementScript.Run(ctx, s.client, []string{key},
		fieldCount, fieldLastStrikeAt, now.Unix()).Int()
	if err != nil {
		return 0, 0, fmt.Errorf("strike: increment: %w", err)
	}

	duration := s.policy.SuspensionFor(count)
	if duration > 0 {
		if err := s.Suspend(ctx, userID, now.Add(duration)); err != nil {
			return count, 0, err
		}
	}
	return count, duration, nil
}

// Suspend sets the suspension end for userID, replacing any previous one.
func (s *Store) Suspend(ctx context.Context, userID string, until time.Time) error {
	if err := s.client.HSet(ctx, KeyPrefix+userID, fieldSuspensionUntil, until.Unix()).Err(); err != nil {
		return fmt.Errorf("strike: suspend: %w", err)
	}
	return nil
}

// Lift ends any suspension for userID immediately. The strike count is kept.
func (s *Store) Lift(ctx context.Context, userID string) error {
	if err := s.client.HDel(ctx, KeyPrefix+userID, fieldSuspensionUntil).Err(); err != nil {
		return fmt.Errorf("strike: lift: %w", err)
	}
	return nil
}

// Reset deletes the whole record for userID.
func (s *Store) Reset(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, KeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("strike: reset: %w", err)
	}
	return nil
}

func parseRecord(fields map[string]string) (moderation.UserStrike, error) {
	var rec moderation.UserStrike
	if v, ok := fields[fieldCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", fieldCount, err)
		}
		rec.StrikeCount = n
	}
	var err error
	if rec.LastStrikeAt, err = parseUnix(fields, fieldLastStrikeAt); err != nil {
		return rec, err
	}
	if rec.SuspensionUntil, err = parseUnix(fields, fieldSuspensionUntil); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseUnix(fields map[string]string, name string) (*time.Time, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return nil, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	t := time.Unix(sec, 0)
	return &t, nil
}
