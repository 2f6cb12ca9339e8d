package rrl

import "math"

// noEntry is the nil value for arena indices.
const noEntry = ^uint32(0)

type entryFlags uint8

const (
	flagInUse entryFlags = 1 << iota
	flagLogging
)

// entry is one rate-limiting account. Entries live in the table's arena and link to
// each other by index: hashNext chains entries within a bucket (and doubles as the
// free-list link), lruPrev/lruNext form the global LRU.
//
// balance is the token bucket: positive is credit, negative is debit. tsBase/tsGen
// anchor lastUsed to a shared timestamp base.
type entry struct {
	key      accountKey
	hash     uint32
	hashNext uint32
	lruPrev  uint32
	lruNext  uint32
	tsGen    uint32
	lastUsed uint16
	balance  int16
	tsBase   uint8
	slipCnt  uint8
	flags    entryFlags
}

func clampBalance(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}

	return int16(v)
}

// assignBase anchors the entry to a current timestamp base with lastUsed = now.
func (e *entry) assignBase(tb *timestampBases, now int64) {
	base, id, gen := tb.currentBase(now)
	e.tsBase = uint8(id)
	e.tsGen = gen
	e.lastUsed = uint16(now - base)
}

// updateBalance runs the token-bucket update for one about-to-be-sent response and
// returns the verdict.
//
// A stale entry (its timestamp base was reclaimed or the offset overflowed) is
// reinitialized with a full second of credit and the response is sent. A reclaimed
// base means the entry has been idle far longer than any window. An offset overflow
// happens once maxTimestampOffset seconds have passed since the entry's base, even for
// an entry in continuous use, and any debt it held is then discarded.
//
// Otherwise credit for the elapsed seconds is added, capped at one second's
// allowance, the response is charged, and debt is clamped at -window*rate so a
// client is not penalized indefinitely after a flood subsides. While in debt every
// slip'th consecutive penalized response becomes Slip instead of Drop; the cadence
// counter resets on any OK.
func (e *entry) updateBalance(tb *timestampBases, rates *rateVector, slip, window int, now int64) Verdict {
	rate := rates.rate(e.key.category)
	if rate == 0 {
		return OK
	}

	off, ok := tb.offsetOf(int(e.tsBase), e.tsGen, now)
	if !ok {
		e.assignBase(tb, now)
		e.balance = clampBalance(rate)
		e.slipCnt = 0
		e.flags &^= flagLogging
		return OK
	}

	elapsed := off - int(e.lastUsed)
	if elapsed < 0 {
		elapsed = 0
	}
	e.lastUsed = uint16(off)

	bal := int(e.balance) + rates.credit(e.key.category, elapsed)
	if bal > rate {
		bal = rate
	}
	bal-- // charge this response

	if bal >= 0 {
		e.balance = clampBalance(bal)
		e.slipCnt = 0
		return OK
	}

	if floor := -window * rate; bal < floor {
		bal = floor
	}
	e.balance = clampBalance(bal)

	if slip == 1 {
		return Slip
	}
	if slip > 1 {
		e.slipCnt++
		if int(e.slipCnt) >= slip {
			e.slipCnt = 0
			return Slip
		}
	}

	return Drop
}
