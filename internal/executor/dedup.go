package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
)

// Dedup suppresses repeat executions of the same market edge within a TTL
// window. The feed re-detects a live opportunity on every scrape cycle;
// without suppression each cycle would stake it again. Safe for concurrent
// use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats an opportunity as a repeat if the same
// fingerprint was executed within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Fingerprint identifies the edge, not the detection: the same match, market,
// and account pair is the same opportunity however many times the scanner
// re-emits it.
func Fingerprint(opp domain.Opportunity) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		opp.MatchID, opp.MarketType, opp.LegA.AccountID, opp.LegB.AccountID)
}

// IsDuplicate reports whether the opportunity's fingerprint was seen within
// the TTL window, recording it if not.
func (d *Dedup) IsDuplicate(opp domain.Opportunity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := Fingerprint(opp)
	now := time.Now()
	if lastSeen, ok := d.seen[key]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Cleanup removes expired fingerprints. Called periodically by the runner to
// keep the map bounded.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
