package rrl

import (
	"fmt"
	"testing"
)

// testKey fabricates a distinct v4 account key.
func testKey(n int) accountKey {
	k := accountKey{family: 4, qclass: 1, qtype: 1, category: CategoryQuery}
	k.addr[0] = 192
	k.addr[1] = byte(n >> 8)
	k.addr[2] = byte(n)
	return k
}

func TestTableGetEntryHitMiss(t *testing.T) {
	tab := newTable(4, 8)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	k := testKey(1)
	h := k.hashWith(99)
	e := tab.getEntry(k, h, tb, &rates, 1000, 15)
	if e == nil {
		t.Fatal("getEntry must never return nil")
	}
	if tab.entryCount != 1 {
		t.Error("Expected one live entry, got", tab.entryCount)
	}
	if e.balance != 5 {
		t.Error("Fresh entry should hold one second of credit, got", e.balance)
	}

	tab.getEntry(k, h, tb, &rates, 1000, 15)
	if tab.entryCount != 1 {
		t.Error("A hit must not create, got", tab.entryCount)
	}

	k2 := testKey(2)
	tab.getEntry(k2, k2.hashWith(99), tb, &rates, 1000, 15)
	if tab.entryCount != 2 {
		t.Error("A miss must create, got", tab.entryCount)
	}
}

func TestTableGrowth(t *testing.T) {
	tab := newTable(4, 64)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	// All busy at the same instant: nothing is recovered so the arena must grow.
	for i := 0; i < 40; i++ {
		k := testKey(i)
		tab.getEntry(k, k.hashWith(99), tb, &rates, 1000, 15)
	}
	if tab.entryCount != 40 {
		t.Error("Expected 40 live entries, got", tab.entryCount)
	}
	if len(tab.buckets)&(len(tab.buckets)-1) != 0 {
		t.Error("Bucket count must stay a power of two, got", len(tab.buckets))
	}
	if tab.entryCount > len(tab.buckets) {
		t.Error("Load factor exceeded 1.0:", tab.entryCount, len(tab.buckets))
	}

	// Every key must still be findable after growth rehashes
	for i := 0; i < 40; i++ {
		k := testKey(i)
		if tab.lookup(k, k.hashWith(99)) == noEntry {
			t.Errorf("Key %d lost during rehash", i)
		}
	}
}

func TestTableCapacityConservation(t *testing.T) {
	tab := newTable(4, 16)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	for i := 0; i < 100; i++ {
		k := testKey(i)
		if e := tab.getEntry(k, k.hashWith(99), tb, &rates, 1000, 15); e == nil {
			t.Fatal("getEntry must never return nil")
		}
		if tab.entryCount > 16 {
			t.Fatal("Live entries exceeded max capacity:", tab.entryCount)
		}
	}
	if tab.entryCount != 16 {
		t.Error("Expected a full table, got", tab.entryCount)
	}
	if tab.evictions == 0 {
		t.Error("Overflow should have recycled entries")
	}
}

func TestTableStealsOldest(t *testing.T) {
	tab := newTable(2, 2)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	k1, k2, k3 := testKey(1), testKey(2), testKey(3)
	tab.getEntry(k1, k1.hashWith(0), tb, &rates, 1000, 15)
	tab.getEntry(k2, k2.hashWith(0), tb, &rates, 1000, 15)

	// k1 is the LRU tail and nothing has recovered, so it gets stolen.
	tab.getEntry(k3, k3.hashWith(0), tb, &rates, 1000, 15)
	if tab.lookup(k1, k1.hashWith(0)) != noEntry {
		t.Error("Oldest entry should have been stolen")
	}
	if tab.lookup(k2, k2.hashWith(0)) == noEntry || tab.lookup(k3, k3.hashWith(0)) == noEntry {
		t.Error("Wrong victim stolen")
	}
}

func TestTableStealSkipsLogging(t *testing.T) {
	tab := newTable(2, 2)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	k1, k2, k3 := testKey(1), testKey(2), testKey(3)
	tab.getEntry(k1, k1.hashWith(0), tb, &rates, 1000, 15)
	tab.getEntry(k2, k2.hashWith(0), tb, &rates, 1000, 15)

	// Protect the tail: the scan should pass over it and steal k2 instead.
	tab.entries[tab.lookup(k1, k1.hashWith(0))].flags |= flagLogging
	tab.getEntry(k3, k3.hashWith(0), tb, &rates, 1000, 15)
	if tab.lookup(k1, k1.hashWith(0)) == noEntry {
		t.Error("Logging entry should have been skipped")
	}
	if tab.lookup(k2, k2.hashWith(0)) != noEntry {
		t.Error("Non-logging entry should have been the victim")
	}

	// With every candidate protected the oldest is taken regardless.
	tab.entries[tab.lookup(k1, k1.hashWith(0))].flags |= flagLogging
	tab.entries[tab.lookup(k3, k3.hashWith(0))].flags |= flagLogging
	k4 := testKey(4)
	if e := tab.getEntry(k4, k4.hashWith(0), tb, &rates, 1000, 15); e == nil {
		t.Fatal("getEntry must remain total when the table is pinned")
	}
	if tab.lookup(k1, k1.hashWith(0)) != noEntry {
		t.Error("Fully pinned table should still steal its oldest entry")
	}
}

func TestTableRecyclesRecovered(t *testing.T) {
	tab := newTable(2, 2)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	k1, k2, k3 := testKey(1), testKey(2), testKey(3)
	tab.getEntry(k1, k1.hashWith(0), tb, &rates, 1000, 15)
	tab.getEntry(k2, k2.hashWith(0), tb, &rates, 1000, 15)

	// window seconds later the tail has had full time to recover and is recycled
	// even though the arena is at max.
	before := tab.evictions
	tab.getEntry(k3, k3.hashWith(0), tb, &rates, 1016, 15)
	if tab.evictions != before+1 {
		t.Error("Recovered tail should have been recycled")
	}
	if tab.lookup(k1, k1.hashWith(0)) != noEntry {
		t.Error("Recovered tail should be gone")
	}
}

func TestTableLRUOrder(t *testing.T) {
	tab := newTable(3, 3)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	k1, k2, k3, k4 := testKey(1), testKey(2), testKey(3), testKey(4)
	tab.getEntry(k1, k1.hashWith(0), tb, &rates, 1000, 15)
	tab.getEntry(k2, k2.hashWith(0), tb, &rates, 1000, 15)
	tab.getEntry(k3, k3.hashWith(0), tb, &rates, 1000, 15)

	// Touch k1 so k2 becomes the tail
	tab.getEntry(k1, k1.hashWith(0), tb, &rates, 1000, 15)

	tab.getEntry(k4, k4.hashWith(0), tb, &rates, 1000, 15)
	if tab.lookup(k2, k2.hashWith(0)) != noEntry {
		t.Error("LRU tail should have been k2 after k1 was touched")
	}
	if tab.lookup(k1, k1.hashWith(0)) == noEntry {
		t.Error("Recently used entry must survive")
	}
}

func TestTableChainIntegrity(t *testing.T) {
	tab := newTable(2, 4)
	tb := newTimestampBases(1000)
	rates := newRateVector(5, 5, 5)

	// Force keys into the same bucket by reusing one hash value.
	keys := make([]accountKey, 4)
	for i := range keys {
		keys[i] = testKey(i)
		tab.getEntry(keys[i], 0x42, tb, &rates, 1000, 15)
	}
	for i := range keys {
		if tab.lookup(keys[i], 0x42) == noEntry {
			t.Errorf("Key %d lost from shared chain", i)
		}
	}

	// Recycle one from the middle of the chain and verify the rest survive.
	idx := tab.lookup(keys[2], 0x42)
	tab.recycle(idx)
	for i := range keys {
		found := tab.lookup(keys[i], 0x42) != noEntry
		if i == 2 && found {
			t.Error("Recycled key still findable")
		}
		if i != 2 && !found {
			t.Errorf("Key %d lost when sibling was recycled", i)
		}
	}
	if tab.entryCount != 3 {
		t.Error("Expected 3 live entries, got", tab.entryCount)
	}
}

func TestTableNeverNil(t *testing.T) {
	tab := newTable(1, 1)
	tb := newTimestampBases(1000)
	rates := newRateVector(1, 1, 1)

	for i := 0; i < 1000; i++ {
		k := testKey(i % 7)
		if e := tab.getEntry(k, k.hashWith(7), tb, &rates, 1000+int64(i%30), 15); e == nil {
			t.Fatal("getEntry returned nil at iteration", fmt.Sprint(i))
		}
	}
}
