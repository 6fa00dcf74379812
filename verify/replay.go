package verify

import (
	"strings"
	"sync"
)

// ReplayGuard tracks transaction hashes that already unlocked a resource.
// CheckAndMark is the mutual-exclusion point of the anti-replay contract:
// two concurrent verifications of the same hash can never both win.
type ReplayGuard struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{used: make(map[string]struct{})}
}

// CheckAndMark atomically records the hash and reports whether this call
// was the first to do so. Hashes are compared case-insensitively.
func (g *ReplayGuard) CheckAndMark(txHash string) bool {
	key := strings.ToLower(txHash)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, seen := g.used[key]; seen {
		return false
	}
	g.used[key] = struct{}{}
	return true
}

// Seen reports whether the hash was already consumed, without marking it.
func (g *ReplayGuard) Seen(txHash string) bool {
	key := strings.ToLower(txHash)

	g.mu.Lock()
	defer g.mu.Unlock()

	_, seen := g.used[key]
	return seen
}
