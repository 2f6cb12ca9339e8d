package rrl

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// sourceLimiter rate limits requests on a source-network basis, before and
// independently of response accounting. Unlike response limiting it applies to every
// transport: it is a source-address control, not an amplification control.
//
// Each masked prefix gets its own token bucket; idle prefixes age out of the TTL
// cache so no reaper of our own is needed.
type sourceLimiter struct {
	perSecond int
	buckets   *gocache.Cache
}

const sourceLimiterTTL = time.Hour

func newSourceLimiter(perSecond int) *sourceLimiter {
	return &sourceLimiter{
		perSecond: perSecond,
		buckets:   gocache.New(sourceLimiterTTL, sourceLimiterTTL),
	}
}

func (sl *sourceLimiter) allow(prefix string, now time.Time) bool {
	// Get/Set on a brand-new prefix can race: two concurrent callers may each
	// build a bucket and one clobbers the other, granting that prefix a second
	// opening burst. The window is only a prefix's very first packets and the
	// budget error is one burst, so it is not worth a per-prefix lock.
	v, found := sl.buckets.Get(prefix)
	if !found {
		v = rate.NewLimiter(rate.Limit(sl.perSecond), sl.perSecond)
		sl.buckets.Set(prefix, v, gocache.DefaultExpiration)
	}

	return v.(*rate.Limiter).AllowN(now, 1)
}
