package rrl

import (
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter contains the configuration and the account database.
// A Limiter is safe for concurrent use by multiple goroutines.
type Limiter struct {
	cfg      Config
	rv       rateVector
	ipv4Mask net.IPMask
	ipv6Mask net.IPMask
	seed     uint32
	logger   BlockLogger

	reqLimiter *sourceLimiter
	allLimiter *rate.Limiter

	mu    sync.Mutex // guards table, bases and every entry
	table *table
	bases *timestampBases

	statsMu           sync.Mutex
	stats             Stats
	evictionsBaseline int64
	retiredBaseline   int64
}

// New creates a Limiter which is ready for use. The config parameter is created by
// [NewConfig] and [Config.SetValue]. New takes a copy of the Config so subsequent
// changes have no effect on the Limiter.
//
// now seeds the timestamp bases and, together with the process id, the account hash
// seed.
//
// New returns an error wrapping [ErrInvalidParameter] if a prefix length is out of
// range or max-table-size is smaller than min-table-size.
func New(cfg *Config, now time.Time) (*Limiter, error) {
	cfg.finalize() // Finalize the caller's copy
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rl := &Limiter{
		cfg:      *cfg, // Our own copy so the caller cannot modify it
		ipv4Mask: net.CIDRMask(cfg.ipv4PrefixLength, 32),
		ipv6Mask: net.CIDRMask(cfg.ipv6PrefixLength, 128),
		seed:     hashSeed(now.UnixNano(), os.Getpid()),
		logger:   nopLogger{},
		table:    newTable(cfg.minTableSize, cfg.maxTableSize),
		bases:    newTimestampBases(now.Unix()),
	}
	rl.cfg.nxdomainsSet = true // Copied config is fully resolved
	rl.cfg.errorsSet = true
	rl.rv = newRateVector(rl.cfg.responsesPerSecond, rl.cfg.nxdomainsPerSecond, rl.cfg.errorsPerSecond)

	if cfg.requestsPerSecond > 0 {
		rl.reqLimiter = newSourceLimiter(cfg.requestsPerSecond)
	}
	if cfg.allPerSecond > 0 {
		rl.allLimiter = rate.NewLimiter(rate.Limit(cfg.allPerSecond), cfg.allPerSecond)
	}

	return rl, nil
}

// SetLogger installs the [BlockLogger] notified of account block transitions. A nil
// logger restores the default no-op. Install before the first Check call.
func (rl *Limiter) SetLogger(l BlockLogger) {
	if l == nil {
		l = nopLogger{}
	}
	rl.logger = l
}

// addrIP extracts the IP from a net.Addr style source address.
func addrIP(a net.Addr) net.IP {
	switch t := a.(type) {
	case *net.UDPAddr:
		return t.IP
	case *net.TCPAddr:
		return t.IP
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return nil
	}

	return net.ParseIP(host)
}

// maskFor returns the configured mask for the address family of ip.
func (rl *Limiter) maskFor(ip net.IP) net.IPMask {
	if ip.To4() != nil {
		return rl.ipv4Mask
	}

	return rl.ipv6Mask
}

// blockSummary renders the account key for the BlockLogger.
func (rl *Limiter) blockSummary(k *accountKey) BlockSummary {
	s := BlockSummary{Category: k.category, Class: k.qclass, Type: k.qtype}
	if k.family == 4 {
		ip := make(net.IP, 4)
		copy(ip, k.addr[:4])
		s.Network = &net.IPNet{IP: ip, Mask: rl.ipv4Mask}
	} else {
		ip := make(net.IP, 16)
		copy(ip, k.addr[:])
		s.Network = &net.IPNet{IP: ip, Mask: rl.ipv6Mask}
	}

	return s
}

// Check decides the fate of one about-to-be-sent response: send it normally ([OK]),
// drop it silently ([Drop]) or truncate it so the client retries over TCP ([Slip]).
//
// src is the purported source address of the client who sent the query; it is masked
// by the configured prefix lengths to determine the client network.
//
// reliable indicates the response goes back over a connection-oriented transport;
// such responses cannot be used for reflection and are exempt from response
// accounting. The requests-per-second limit still applies to them.
//
// qname is the owner name of the response. For NXDOMAIN responses the caller should
// pass the closest existing encloser when it knows it; the name is treated opaquely
// either way. qname is ignored for error responses.
//
// now is the wall clock; passing it explicitly keeps the hot path free of clock
// syscalls the server has usually already made, and makes testing trivial.
//
// When log-only is configured the caller is expected to send the response whatever
// the verdict, using the verdict and the [BlockLogger] records purely for reporting.
//
// Check is concurrency safe, performs no I/O and always returns.
func (rl *Limiter) Check(src net.Addr, reliable bool, qclass, qtype uint16, qname string, rcode int, now time.Time) (verdict Verdict) {
	category := NewResponseCategory(rcode)
	verdict = OK
	ipr := IPNotConfigured
	rtr := RTNotReached

	// Pointers so the defer sees the final values, not the ones at defer time.
	defer rl.incrementCheckStats(&verdict, &ipr, &rtr, category)

	ip := addrIP(src)
	if ip == nil {
		return
	}

	// Source-address limiting applies regardless of transport.
	if rl.reqLimiter != nil {
		if !rl.reqLimiter.allow(ip.Mask(rl.maskFor(ip)).String(), now) {
			ipr = IPRateLimit
			verdict = Drop
			return
		}
		ipr = IPOk
	}

	if reliable {
		rtr = RTReliable
		return
	}

	if rl.rv.rate(category) == 0 {
		rtr = RTNotConfigured
		return
	}

	key := rl.makeKey(ip, category, qclass, qtype, qname)
	hash := key.hashWith(rl.seed)
	nowSec := now.Unix()

	var blockStart, blockEnd bool
	var summary BlockSummary

	rl.mu.Lock()
	e := rl.table.getEntry(key, hash, rl.bases, &rl.rv, nowSec, rl.cfg.window)
	wasLogging := e.flags&flagLogging != 0
	verdict = e.updateBalance(rl.bases, &rl.rv, rl.cfg.slipRatio, rl.cfg.window, nowSec)
	if verdict == OK {
		rtr = RTOk
		if wasLogging {
			e.flags &^= flagLogging
			blockEnd = true
		}
	} else {
		rtr = RTRateLimit
		if !wasLogging {
			e.flags |= flagLogging
			blockStart = true
		}
	}
	if blockStart || blockEnd {
		summary = rl.blockSummary(&key)
	}
	rl.mu.Unlock()

	if verdict == OK && rl.allLimiter != nil && !rl.allLimiter.AllowN(now, 1) {
		rtr = RTGlobalLimit
		verdict = Drop
	}

	// User code runs outside the lock.
	if blockStart {
		rl.logger.OnBlockStart(summary)
	} else if blockEnd {
		rl.logger.OnBlockEnd(summary)
	}

	return
}

// ResponseRate returns the configured responses-per-second.
func (rl *Limiter) ResponseRate() int { return rl.cfg.responsesPerSecond }

// NXDomainRate returns the configured nxdomains-per-second.
func (rl *Limiter) NXDomainRate() int { return rl.cfg.nxdomainsPerSecond }

// ErrorRate returns the configured errors-per-second.
func (rl *Limiter) ErrorRate() int { return rl.cfg.errorsPerSecond }

// Window returns the configured window in seconds.
func (rl *Limiter) Window() int { return rl.cfg.window }

// Slip returns the configured slip-ratio.
func (rl *Limiter) Slip() int { return rl.cfg.slipRatio }

// IPv4PrefixLength returns the configured ipv4-prefix-length.
func (rl *Limiter) IPv4PrefixLength() int { return rl.cfg.ipv4PrefixLength }

// IPv6PrefixLength returns the configured ipv6-prefix-length.
func (rl *Limiter) IPv6PrefixLength() int { return rl.cfg.ipv6PrefixLength }

// IPv4Mask returns the mask applied to ipv4 client addresses.
func (rl *Limiter) IPv4Mask() net.IPMask { return rl.ipv4Mask }

// IPv6Mask returns the mask applied to ipv6 client addresses.
func (rl *Limiter) IPv6Mask() net.IPMask { return rl.ipv6Mask }

// LogOnly returns the configured log-only flag.
func (rl *Limiter) LogOnly() bool { return rl.cfg.logOnly }

// EntryCount returns the number of live accounts.
func (rl *Limiter) EntryCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.table.entryCount
}

// CurrentTimestampBase returns the base second entries touched at now would be
// anchored to.
func (rl *Limiter) CurrentTimestampBase(now time.Time) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	base, _, _ := rl.bases.currentBase(now.Unix())

	return time.Unix(base, 0)
}

func (rl *Limiter) incrementCheckStats(verdict *Verdict, ipr *IPReason, rtr *RTReason, c ResponseCategory) {
	rl.statsMu.Lock()
	rl.stats.incrementCheck(*verdict, *ipr, *rtr, c)
	rl.statsMu.Unlock()
}

// GetStats returns the internal stats accumulated by Check.
// The caller can optionally request that the stats be zeroed after the copy.
func (rl *Limiter) GetStats(zeroAfter bool) (c Stats) {
	rl.mu.Lock()
	entries := rl.table.entryCount
	evictions := rl.table.evictions
	retired := rl.bases.retired
	rl.mu.Unlock()

	rl.statsMu.Lock()
	c = rl.stats.Copy(zeroAfter)
	c.Evictions = evictions - rl.evictionsBaseline
	c.BaseRetirements = retired - rl.retiredBaseline
	if zeroAfter {
		rl.evictionsBaseline = evictions
		rl.retiredBaseline = retired
	}
	rl.statsMu.Unlock()
	c.EntryCount = entries

	return
}
