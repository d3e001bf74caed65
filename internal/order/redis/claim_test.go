package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client), mr
}

func TestClaimReferenceIsExclusive(t *testing.T) {
	r, _ := setupTestRedis(t)

	ok, err := r.ClaimReference("PSK-1", "worker-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ClaimReference("PSK-1", "worker-b")
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same reference must lose")

	// a different reference is unaffected
	ok, err = r.ClaimReference("PSK-2", "worker-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	r, _ := setupTestRedis(t)

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := r.ClaimReference("PSK-1", string(rune('a'+n)))
			if err == nil && ok {
				wins <- true
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Equal(t, 1, len(wins))
}

func TestReleaseReferenceOwnerOnly(t *testing.T) {
	r, _ := setupTestRedis(t)

	ok, err := r.ClaimReference("PSK-1", "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	// a foreign release is a no-op
	require.NoError(t, r.ReleaseReference("PSK-1", "worker-b"))
	ok, err = r.ClaimReference("PSK-1", "worker-c")
	require.NoError(t, err)
	assert.False(t, ok, "claim must survive a foreign release")

	// the owner's release frees the reference
	require.NoError(t, r.ReleaseReference("PSK-1", "worker-a"))
	ok, err = r.ClaimReference("PSK-1", "worker-c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseExpiredClaimIsNoop(t *testing.T) {
	r, _ := setupTestRedis(t)
	assert.NoError(t, r.ReleaseReference("never-claimed", "worker-a"))
}

func TestReleaseDoesNotDropReacquiredClaim(t *testing.T) {
	r, mr := setupTestRedis(t)
	t.Setenv("FULFILLMENT_CLAIM_TTL_SECONDS", "1")

	ok, err := r.ClaimReference("PSK-1", "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	// worker-a's claim expires and worker-b takes over before the stale
	// release arrives
	mr.FastForward(2 * time.Second)
	ok, err = r.ClaimReference("PSK-1", "worker-b")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.ReleaseReference("PSK-1", "worker-a"))

	ok, err = r.ClaimReference("PSK-1", "worker-c")
	require.NoError(t, err)
	assert.False(t, ok, "worker-b's claim must survive the stale release")
}

func TestClaimExpires(t *testing.T) {
	r, mr := setupTestRedis(t)
	t.Setenv("FULFILLMENT_CLAIM_TTL_SECONDS", "1")

	ok, err := r.ClaimReference("PSK-1", "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = r.ClaimReference("PSK-1", "worker-b")
	require.NoError(t, err)
	assert.True(t, ok, "expired claim must be reclaimable")
}
