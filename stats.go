package rrl

import (
	"fmt"
	"strings"
)

// Stats is a snapshot of the counters maintained by [Limiter.Check].
//
// All fields except EntryCount accumulate from construction, or from the last
// zeroing requested via [Limiter.GetStats]. EntryCount is a gauge: the number of
// live accounts at snapshot time.
type Stats struct {
	Debits    [CategoryLast]int64 // Check calls per response category
	Verdicts  [VerdictLast]int64
	IPReasons [IPLast]int64
	RTReasons [RTLast]int64

	EntryCount      int
	Evictions       int64
	BaseRetirements int64
}

// Copy returns a snapshot and optionally zeroes the source counters afterwards.
// EntryCount, Evictions and BaseRetirements are filled in by [Limiter.GetStats]
// rather than accumulated here.
func (s *Stats) Copy(zeroAfter bool) Stats {
	out := *s
	if zeroAfter {
		*s = Stats{}
	}

	return out
}

// Merge folds other into s, for aggregating several Limiters into deployment
// totals. Every field adds - including EntryCount, since independent Limiters hold
// disjoint account tables so their gauges sum to the deployment's live total.
func (s *Stats) Merge(other *Stats) {
	for i := range s.Debits {
		s.Debits[i] += other.Debits[i]
	}
	for i := range s.Verdicts {
		s.Verdicts[i] += other.Verdicts[i]
	}
	for i := range s.IPReasons {
		s.IPReasons[i] += other.IPReasons[i]
	}
	for i := range s.RTReasons {
		s.RTReasons[i] += other.RTReasons[i]
	}
	s.EntryCount += other.EntryCount
	s.Evictions += other.Evictions
	s.BaseRetirements += other.BaseRetirements
}

// incrementCheck records the outcome of one Check call. Check only ever produces
// in-range enum values so no bounds checks are needed here.
func (s *Stats) incrementCheck(v Verdict, ipr IPReason, rtr RTReason, rc ResponseCategory) {
	s.Debits[rc]++
	s.Verdicts[v]++
	s.IPReasons[ipr]++
	s.RTReasons[rtr]++
}

// String renders the snapshot as one line of key=value groups, suitable for a
// periodic stats log.
func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "debits query=%d nxdomain=%d error=%d",
		s.Debits[CategoryQuery], s.Debits[CategoryNxDomain], s.Debits[CategoryError])
	fmt.Fprintf(&b, " verdicts ok=%d drop=%d slip=%d",
		s.Verdicts[OK], s.Verdicts[Drop], s.Verdicts[Slip])
	fmt.Fprintf(&b, " ip ok=%d off=%d limit=%d",
		s.IPReasons[IPOk], s.IPReasons[IPNotConfigured], s.IPReasons[IPRateLimit])
	fmt.Fprintf(&b, " rt ok=%d off=%d skip=%d limit=%d tcp=%d all=%d",
		s.RTReasons[RTOk], s.RTReasons[RTNotConfigured], s.RTReasons[RTNotReached],
		s.RTReasons[RTRateLimit], s.RTReasons[RTReliable], s.RTReasons[RTGlobalLimit])
	fmt.Fprintf(&b, " entries=%d evictions=%d rebases=%d",
		s.EntryCount, s.Evictions, s.BaseRetirements)

	return b.String()
}
