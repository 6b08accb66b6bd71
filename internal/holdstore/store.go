// Package holdstore implements the Hold store (C2): a fast, key-addressable
// store of ephemeral holds with per-key TTL and atomic set-if-absent, plus
// per-session presence sets and rate-limit counters. It is the Redis-backed
// analog of the teacher's middleware/ratelimit.go token-bucket Lua script
// and config/redis.go client constructor, generalized from HTTP
// rate-limiting into the full C2 primitive set spec §4.2 requires.
package holdstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hold is the value stored under a seat key. BookingID is empty for a bare
// selection hold and set once the hold is upgraded to a reservation
// (spec §3 "Hold … Value").
type Hold struct {
	UserID       string    `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	TakenAt      time.Time `json:"taken_at"`
	BookingID    string    `json:"booking_id,omitempty"`
}

// ErrUnavailable is returned by every Store method when the backing Redis
// connection is down. Callers must fail closed (spec §7: "select fails
// closed" on a transient hold-store failure) rather than fall back to
// treating the seat as free.
var ErrUnavailable = errors.New("hold store unavailable")

// Store is the C2 primitive set. Key naming follows spec §4.2:
// "seat:{sessionId}:{seatId}", "session:{sessionId}:users", "rate:{action}:{userId}".
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client. A nil client means the hold store is
// considered down; all operations then return ErrUnavailable so that the
// Coordinator fails closed instead of silently treating seats as free.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Healthy reports whether the underlying client is configured and reachable.
func (s *Store) Healthy(ctx context.Context) bool {
	if s == nil || s.rdb == nil {
		return false
	}
	return s.rdb.Ping(ctx).Err() == nil
}

func (s *Store) client() (*redis.Client, error) {
	if s == nil || s.rdb == nil {
		return nil, ErrUnavailable
	}
	return s.rdb, nil
}

// SeatKey builds the per-seat hold key.
func SeatKey(sessionID, seatID string) string {
	return "seat:" + sessionID + ":" + seatID
}

// SeatPrefix builds the scan prefix for all holds in a session.
func SeatPrefix(sessionID string) string {
	return "seat:" + sessionID + ":"
}

// PresenceKey builds the per-session presence-set key.
func PresenceKey(sessionID string) string {
	return "session:" + sessionID + ":users"
}

// RateKey builds the per (action, userID) rate-limit counter key.
func RateKey(action, userID string) string {
	return "rate:" + action + ":" + userID
}

// SetIfAbsent is the atomic primitive the Coordinator uses to make "select"
// race-free. It returns true iff the key was absent and the hold is now
// held by the caller.
func (s *Store) SetIfAbsent(ctx context.Context, key string, h Hold, ttl time.Duration) (bool, error) {
	rdb, err := s.client()
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return false, err
	}
	ok, err := rdb.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return false, ErrUnavailable
	}
	return ok, nil
}

// Get fetches the hold at key. ok is false when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (h Hold, ok bool, err error) {
	rdb, err := s.client()
	if err != nil {
		return Hold{}, false, err
	}
	raw, err := rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Hold{}, false, nil
	}
	if err != nil {
		return Hold{}, false, ErrUnavailable
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return Hold{}, false, err
	}
	return h, true, nil
}

// SetWithTTL overwrites (or creates) the hold at key, resetting its TTL.
// Used to refresh a same-user hold and to upgrade a selection into a
// reservation (spec §4.3 step 7).
func (s *Store) SetWithTTL(ctx context.Context, key string, h Hold, ttl time.Duration) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return ErrUnavailable
	}
	return nil
}

// Delete removes a hold unconditionally. Returns whether a key was removed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	rdb, err := s.client()
	if err != nil {
		return false, err
	}
	n, err := rdb.Del(ctx, key).Result()
	if err != nil {
		return false, ErrUnavailable
	}
	return n > 0, nil
}

// TTL returns the remaining time-to-live of key, or -1 if it has none and
// -2 if it does not exist (mirroring Redis TTL semantics), so the
// expiration engine can distinguish orphaned entries (spec §4.4 step 2).
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	rdb, err := s.client()
	if err != nil {
		return 0, err
	}
	d, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, ErrUnavailable
	}
	return d, nil
}

// ScanByPrefix enumerates keys starting with prefix. It makes no ordering
// guarantee, matching spec §4.2's scanByPrefix contract.
func (s *Store) ScanByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rdb, err := s.client()
	if err != nil {
		return nil, err
	}
	var keys []string
	iter := rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, ErrUnavailable
	}
	return keys, nil
}

// SetAdd adds member to the set at key (presence join).
func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}
	if err := rdb.SAdd(ctx, key, member).Err(); err != nil {
		return ErrUnavailable
	}
	return nil
}

// SetRemove removes member from the set at key (presence leave).
func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}
	if err := rdb.SRem(ctx, key, member).Err(); err != nil {
		return ErrUnavailable
	}
	return nil
}

// SetCardinality returns the live "viewer count" for a presence set.
func (s *Store) SetCardinality(ctx context.Context, key string) (int64, error) {
	rdb, err := s.client()
	if err != nil {
		return 0, err
	}
	n, err := rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, ErrUnavailable
	}
	return n, nil
}

// SetMembers lists all members of a presence set.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	rdb, err := s.client()
	if err != nil {
		return nil, err
	}
	members, err := rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, ErrUnavailable
	}
	return members, nil
}

// incrementScript atomically increments a counter and (re)sets its TTL only
// on the increment that creates the key, mirroring the teacher's
// middleware/ratelimit.go token-bucket script style (HMGET/HMSET under one
// round trip instead of separate INCR+EXPIRE calls that could race).
var incrementScript = redis.NewScript(`
	local v = redis.call('INCR', KEYS[1])
	if v == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('TTL', KEYS[1])
	return { v, ttl }
`)

// IncrementAndExpire atomically increments the counter at key, setting its
// TTL on first creation, and returns the new value plus the key's current
// TTL in seconds. This backs rateLimitCheck (spec §4.3).
func (s *Store) IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (newValue int64, ttlSeconds int64, err error) {
	rdb, err := s.client()
	if err != nil {
		return 0, 0, err
	}
	res, err := incrementScript.Run(ctx, rdb, []string{key}, int64(ttl/time.Second)).Result()
	if err != nil {
		return 0, 0, ErrUnavailable
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, 0, ErrUnavailable
	}
	newValue, _ = arr[0].(int64)
	ttlSeconds, _ = arr[1].(int64)
	return newValue, ttlSeconds, nil
}

// Publish broadcasts message on channel for cross-worker fan-out
// propagation (Design Note: "cross-worker propagation via a pub/sub bus on
// the hold store").
func (s *Store) Publish(ctx context.Context, channel string, message []byte) error {
	rdb, err := s.client()
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, channel, message).Err(); err != nil {
		return ErrUnavailable
	}
	return nil
}

// Subscribe returns a PubSub subscribed to channel. Callers must Close it.
func (s *Store) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	rdb, err := s.client()
	if err != nil {
		return nil, err
	}
	return rdb.Subscribe(ctx, channel), nil
}

// SessionChannel is the pub/sub channel name for a session's fan-out room.
func SessionChannel(sessionID string) string {
	return "room:" + sessionID
}
