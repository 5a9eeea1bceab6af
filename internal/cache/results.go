// Package cache memoizes generation results for a short window so that rapid
// repeated identical requests are cheap and return the same ordered options.
// The cache is process-local and safe to lose on restart.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Key identifies a reusable generation result: the day's mode plus the three
// normalized context fields the prompt was built from.
type Key struct {
	Mode    string
	Context string
	Mood    string
	Angle   string
}

// keySep joins key fields into the string form go-cache requires. The unit
// separator cannot appear in normalized context fields.
const keySep = "\x1f"

func (k Key) String() string {
	return strings.Join([]string{k.Mode, k.Context, k.Mood, k.Angle}, keySep)
}

// Results is a TTL cache of generated option lists. Expiry is checked lazily
// at read time; there is no background sweeper. Concurrent Set calls for the
// same key overwrite each other (last write wins), which is acceptable here.
type Results struct {
	c   *gocache.Cache
	ttl time.Duration
}

// NewResults creates a cache whose entries live for ttl. The janitor is
// disabled so that expired entries are only reaped on read.
func NewResults(ttl time.Duration) *Results {
	return &Results{
		c:   gocache.New(ttl, 0),
		ttl: ttl,
	}
}

// Get returns the cached options for key if the entry is still fresh.
// An expired entry counts as a miss and is dropped along with any other
// expired entries.
func (r *Results) Get(key Key) ([]string, bool) {
	v, found := r.c.Get(key.String())
	if !found {
		r.c.DeleteExpired()
		return nil, false
	}
	options, ok := v.([]string)
	if !ok {
		return nil, false
	}
	return options, true
}

// Set stores options under key for the configured TTL.
func (r *Results) Set(key Key, options []string) {
	r.c.Set(key.String(), options, gocache.DefaultExpiration)
}
