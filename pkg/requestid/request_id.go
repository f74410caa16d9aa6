// Package requestid generates unique request identifiers combining a
// millisecond timestamp with a random component.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// counter is used as fallback when random generation fails
var counter atomic.Uint64

// Generate returns a unique request id with format: timestamp-randomhex
// Example: 1737039600123-a2b3c4d5
func Generate() string {
	timestamp := time.Now().UnixMilli()

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Sprintf("%d-%d", timestamp, counter.Add(1))
	}

	return fmt.Sprintf("%d-%s", timestamp, hex.EncodeToString(randomBytes))
}
