package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const reactionIDPrefix = "rct_"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewReactionID returns a reaction record ID whose ULID part carries the time the reaction
// was observed, so the records of one event sort in observation order.
// Example: "rct_01HX3K8Q6J0V9M2B7T4R5N1C8D"
func NewReactionID(observedAt time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return reactionIDPrefix + ulid.MustNew(ulid.Timestamp(observedAt), entropy).String()
}
