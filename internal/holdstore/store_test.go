package holdstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "seat:s1:seat-1", SeatKey("s1", "seat-1"))
	assert.Equal(t, "seat:s1:", SeatPrefix("s1"))
	assert.Equal(t, "session:s1:users", PresenceKey("s1"))
	assert.Equal(t, "rate:select:u1", RateKey("select", "u1"))
	assert.Equal(t, "room:s1", SessionChannel("s1"))
}

// A nil-backed Store must fail closed on every operation rather than ever
// report a seat as free when Redis is unreachable (spec §7).
func TestNilClientFailsClosed(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	assert.False(t, s.Healthy(ctx))

	_, err := s.SetIfAbsent(ctx, "seat:s1:seat-1", Hold{UserID: "u1"}, time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, _, err = s.Get(ctx, "seat:s1:seat-1")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.SetWithTTL(ctx, "seat:s1:seat-1", Hold{UserID: "u1"}, time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Delete(ctx, "seat:s1:seat-1")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.TTL(ctx, "seat:s1:seat-1")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.ScanByPrefix(ctx, "seat:s1:")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.SetAdd(ctx, "session:s1:users", "u1")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.SetRemove(ctx, "session:s1:users", "u1")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.SetCardinality(ctx, "session:s1:users")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.SetMembers(ctx, "session:s1:users")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, _, err = s.IncrementAndExpire(ctx, "rate:select:u1", time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.Publish(ctx, "room:s1", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Subscribe(ctx, "room:s1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNilStoreReceiverIsSafe(t *testing.T) {
	var s *Store
	assert.False(t, s.Healthy(context.Background()))
}
