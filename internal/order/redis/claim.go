package redis

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis holds per-reference fulfillment claims. A claim is a cheap
// fast-path that stops a racing webhook redelivery and direct client call
// from both running the whole fulfillment pipeline; the DB unique index on
// reference remains the actual idempotency guarantee across instances.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// getClaimDuration returns the claim TTL from environment variables or the
// default value. The TTL only has to outlive one fulfillment attempt.
func (r *Redis) getClaimDuration() time.Duration {
	defaultDuration := 2 * time.Minute

	ttlStr := os.Getenv("FULFILLMENT_CLAIM_TTL_SECONDS")
	if ttlStr == "" {
		return defaultDuration
	}

	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid FULFILLMENT_CLAIM_TTL_SECONDS value '" + ttlStr + "', using default 2 minutes")
		return defaultDuration
	}
	return time.Duration(ttlSec) * time.Second
}

// ClaimReference tries to mark a payment reference as "fulfillment in
// progress". Returns false when another worker already holds the claim.
func (r *Redis) ClaimReference(reference, owner string) (bool, error) {
	key := "fulfill_claim:" + reference
	ok, err := r.Client.SetNX(context.Background(), key, owner, r.getClaimDuration()).Result()
	return ok, err
}

// releaseScript deletes a claim only while the given owner still holds it.
// The compare and the delete run as one script, so a claim that expired and
// was re-acquired in between is never dropped from under its new owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// ReleaseReference drops a claim, but only if it is still held by the
// given owner. Releasing an expired or foreign claim is a no-op.
func (r *Redis) ReleaseReference(reference, owner string) error {
	key := "fulfill_claim:" + reference
	err := releaseScript.Run(context.Background(), r.Client, []string{key}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
