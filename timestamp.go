package rrl

// Entries do not store absolute wall-clock seconds; they store a small slot id plus a
// 12-bit offset from one of up to four shared "base" timestamps. When the clock
// drifts beyond half the offset range a new base is started and, eventually, the oldest
// slot is reclaimed. Each slot carries a generation counter so entries still pointing
// at a reclaimed slot are detected lazily on their next use and reset rather than
// walked eagerly.

const (
	timestampBaseCount = 4
	maxTimestampOffset = 1<<12 - 1
)

type timestampBases struct {
	base [timestampBaseCount]uint32 // wall seconds
	gen  [timestampBaseCount]uint32 // zero means the slot was never assigned

	current int

	retired int64 // slots reclaimed since creation
}

func newTimestampBases(now int64) *timestampBases {
	tb := &timestampBases{}
	tb.base[0] = uint32(now)
	tb.gen[0] = 1

	return tb
}

// usable reports whether slot i can anchor an entry touched at now. Only the front
// half of the offset range is handed out so existing entries keep headroom to age.
func (tb *timestampBases) usable(i int, now int64) bool {
	if tb.gen[i] == 0 {
		return false
	}
	d := now - int64(tb.base[i])

	return d >= 0 && d <= maxTimestampOffset/2
}

// currentBase returns a base suitable for an entry being touched at now, starting a
// new base when none of the existing slots qualify. Reclaiming an occupied slot bumps
// its generation which invalidates every entry still referencing it.
func (tb *timestampBases) currentBase(now int64) (base int64, id int, gen uint32) {
	if tb.usable(tb.current, now) {
		return int64(tb.base[tb.current]), tb.current, tb.gen[tb.current]
	}

	for i := 0; i < timestampBaseCount; i++ {
		if i != tb.current && tb.usable(i, now) {
			tb.current = i
			return int64(tb.base[i]), i, tb.gen[i]
		}
	}

	// Claim an unassigned slot if there is one, else the oldest.
	slot := -1
	for i := 0; i < timestampBaseCount; i++ {
		if tb.gen[i] == 0 {
			slot = i
			break
		}
	}
	if slot == -1 {
		slot = 0
		for i := 1; i < timestampBaseCount; i++ {
			if tb.base[i] < tb.base[slot] {
				slot = i
			}
		}
		tb.retired++
	}

	tb.gen[slot]++
	tb.base[slot] = uint32(now)
	tb.current = slot

	return now, slot, tb.gen[slot]
}

// offsetOf converts now into seconds since the entry's base. ok is false when the
// entry is stale: its slot was reclaimed or the offset no longer fits.
func (tb *timestampBases) offsetOf(id int, gen uint32, now int64) (off int, ok bool) {
	if id < 0 || id >= timestampBaseCount || gen != tb.gen[id] {
		return 0, false
	}
	d := now - int64(tb.base[id])
	if d < 0 || d > maxTimestampOffset {
		return 0, false
	}

	return int(d), true
}

// wallOf reconstructs the wall-clock second at which an entry was last used.
func (tb *timestampBases) wallOf(id int, gen uint32, off uint16) (wall int64, ok bool) {
	if id < 0 || id >= timestampBaseCount || gen != tb.gen[id] {
		return 0, false
	}

	return int64(tb.base[id]) + int64(off), true
}
