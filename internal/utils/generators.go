package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const referenceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateReference creates a merchant reference in the same shape the
// checkout endpoints hand to gateways, e.g. "FCR-1712345678901-k3v9x2m1q".
func GenerateReference(prefix string) string {
	suffix := make([]byte, 9)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceAlphabet))))
		if err != nil {
			return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:9])
		}
		suffix[i] = referenceAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}

// GenerateOrderReference creates a reference for direct client orders that
// arrive without a provider transaction id.
func GenerateOrderReference() string {
	return GenerateReference("ORD")
}
