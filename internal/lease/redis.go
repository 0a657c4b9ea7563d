// Package lease implements the seat lease store on Redis.  A lease is a
// key holding the owning user ID with a TTL; Redis guarantees that exactly
// one concurrent SET NX on a key succeeds.  A per-event index set lets the
// sweeper enumerate leases without scanning the keyspace.
package lease

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a store is constructed with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// releaseAttempts bounds the optimistic WATCH/MULTI retries of Release.
const releaseAttempts = 5

// Active describes one live lease of an event.
type Active struct {
	SeatID     string
	Owner      string
	TTLSeconds int
}

// RedisStore keeps seat leases in Redis.  Keys are
// seat_lease:{eventID}:{seatID} and the index of an event is
// seat_lease_idx:{eventID}.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore returns a store using rdb and the given lease duration.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "seat_lease"}
}

// TTL returns the configured lease duration.
func (s *RedisStore) TTL() time.Duration { return s.ttl }

func (s *RedisStore) key(eventID, seatID string) string {
	return fmt.Sprintf("%s:{%s}:%s", s.prefix, eventID, seatID)
}

// The braces form a cluster hash tag so an event's leases and its index
// live in the same slot and can share a MULTI.
func (s *RedisStore) indexKey(eventID string) string {
	return fmt.Sprintf("%s_idx:{%s}", s.prefix, eventID)
}

// Acquire creates the lease for owner only if no lease exists.  It returns
// false when the seat is already leased, by anyone.  Any Redis error is
// returned with false so callers fail closed.
func (s *RedisStore) Acquire(ctx context.Context, eventID, seatID, owner string) (bool, error) {
	key := s.key(eventID, seatID)
	idx := s.indexKey(eventID)
	var set *redis.BoolCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetNX(ctx, key, owner, s.ttl)
		pipe.SAdd(ctx, idx, seatID)
		pipe.PExpire(ctx, idx, s.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lease acquire %s: %w", key, err)
	}
	return set.Val(), nil
}

// Release deletes the lease only if owner currently holds it.  The owner
// check and the delete run under WATCH so a lease that expires and is
// re-acquired by someone else in between is never removed.
func (s *RedisStore) Release(ctx context.Context, eventID, seatID, owner string) (bool, error) {
	key := s.key(eventID, seatID)
	idx := s.indexKey(eventID)
	released := false
	txf := func(tx *redis.Tx) error {
		released = false
		cur, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != owner {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, idx, seatID)
			return nil
		})
		if err == nil {
			released = true
		}
		return err
	}
	for i := 0; i < releaseAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return released, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("lease release %s: %w", key, err)
	}
	return false, fmt.Errorf("lease release %s: %w", key, redis.TxFailedErr)
}

// ForceRelease deletes the lease regardless of its owner.
func (s *RedisStore) ForceRelease(ctx context.Context, eventID, seatID string) error {
	key := s.key(eventID, seatID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.indexKey(eventID), seatID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lease force release %s: %w", key, err)
	}
	return nil
}

// Owner returns the user holding the lease and whether a lease exists.
func (s *RedisStore) Owner(ctx context.Context, eventID, seatID string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(eventID, seatID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lease owner: %w", err)
	}
	return v, true, nil
}

// TTLRemaining returns the whole seconds left on the lease, rounded up,
// and whether a lease exists.
func (s *RedisStore) TTLRemaining(ctx context.Context, eventID, seatID string) (int, bool, error) {
	d, err := s.rdb.PTTL(ctx, s.key(eventID, seatID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("lease ttl: %w", err)
	}
	if d < 0 {
		// -2: no key; -1: key without expiry, which this store never writes.
		return 0, false, nil
	}
	return ceilSeconds(d), true, nil
}

// ListActive returns every live lease of an event.  Index entries whose
// lease has already expired are pruned as a side effect.  The cost is
// linear in the size of the event's index.
func (s *RedisStore) ListActive(ctx context.Context, eventID string) ([]Active, error) {
	idx := s.indexKey(eventID)
	seatIDs, err := s.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, fmt.Errorf("lease index: %w", err)
	}
	if len(seatIDs) == 0 {
		return []Active{}, nil
	}
	owners := make([]*redis.StringCmd, len(seatIDs))
	ttls := make([]*redis.DurationCmd, len(seatIDs))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range seatIDs {
			k := s.key(eventID, id)
			owners[i] = pipe.Get(ctx, k)
			ttls[i] = pipe.PTTL(ctx, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("lease list: %w", err)
	}
	out := make([]Active, 0, len(seatIDs))
	var stale []string
	for i, id := range seatIDs {
		owner, gerr := owners[i].Result()
		if errors.Is(gerr, redis.Nil) {
			stale = append(stale, id)
			continue
		}
		if gerr != nil {
			return nil, fmt.Errorf("lease list: %w", gerr)
		}
		ttl := ttls[i].Val()
		if ttl < 0 {
			ttl = 0
		}
		out = append(out, Active{SeatID: id, Owner: owner, TTLSeconds: ceilSeconds(ttl)})
	}
	for _, id := range stale {
		s.prune(ctx, eventID, id)
	}
	return out, nil
}

// prune drops seatID from the event index if its lease key is still
// absent.  The key is watched so an Acquire racing with the prune keeps
// its index entry.  Failures leave the entry for the next pass.
func (s *RedisStore) prune(ctx context.Context, eventID, seatID string) {
	key := s.key(eventID, seatID)
	_ = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil || n > 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, s.indexKey(eventID), seatID)
			return nil
		})
		return err
	}, key)
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
