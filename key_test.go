package rrl

import (
	"net"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, pairs ...string) *Limiter {
	t.Helper()
	cfg := NewConfig()
	for i := 0; i < len(pairs); i += 2 {
		if err := cfg.SetValue(pairs[i], pairs[i+1]); err != nil {
			t.Fatal("SetValue failed during setup", err)
		}
	}
	rl, err := New(cfg, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal("New failed during setup", err)
	}

	return rl
}

func TestKeyPrefixCollapse(t *testing.T) {
	rl := newTestLimiter(t)

	a := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryQuery, 1, 1, "a.example.")
	b := rl.makeKey(net.ParseIP("192.0.2.254"), CategoryQuery, 1, 1, "a.example.")
	if a != b {
		t.Error("Clients in the same /24 must produce identical keys")
	}
	c := rl.makeKey(net.ParseIP("192.0.3.1"), CategoryQuery, 1, 1, "a.example.")
	if a == c {
		t.Error("Clients in different /24s must produce distinct keys")
	}

	v6a := rl.makeKey(net.ParseIP("2001:db8::1"), CategoryQuery, 1, 1, "a.example.")
	v6b := rl.makeKey(net.ParseIP("2001:db8::ffff"), CategoryQuery, 1, 1, "a.example.")
	if v6a != v6b {
		t.Error("Clients in the same /56 must produce identical keys")
	}
	if v6a == a {
		t.Error("Address families must not collide")
	}
}

func TestKeyMaskedBitsZero(t *testing.T) {
	rl := newTestLimiter(t, "ipv4-prefix-length", "8")

	k := rl.makeKey(net.ParseIP("10.9.8.7"), CategoryQuery, 1, 1, "")
	if k.addr != [16]byte{10} {
		t.Error("Masked-off bits must be zero, got", k.addr)
	}
}

func TestKeyNameCanonicalization(t *testing.T) {
	rl := newTestLimiter(t)

	lower := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryQuery, 1, 1, "a.example.")
	upper := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryQuery, 1, 1, "A.EXAMPLE")
	if lower != upper {
		t.Error("Name casing and trailing dot must not split accounts")
	}
	other := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryQuery, 1, 1, "b.example.")
	if lower == other {
		t.Error("Different names must produce distinct keys")
	}
}

func TestKeyErrorOmitsName(t *testing.T) {
	rl := newTestLimiter(t)

	a := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryError, 1, 1, "a.example.")
	b := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryError, 1, 1, "b.example.")
	if a != b {
		t.Error("Error accounts must aggregate across names")
	}
	if a.nameHash != 0 {
		t.Error("Error keys must not carry a name digest, got", a.nameHash)
	}

	// NXDOMAIN keys do include the (possibly clipped) name
	na := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryNxDomain, 1, 1, "a.example.")
	nb := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryNxDomain, 1, 1, "b.example.")
	if na == nb {
		t.Error("NXDOMAIN accounts must distinguish names")
	}
}

func TestKeyCategorySeparation(t *testing.T) {
	rl := newTestLimiter(t)

	q := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryQuery, 1, 1, "a.example.")
	n := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryNxDomain, 1, 1, "a.example.")
	if q == n {
		t.Error("Categories must produce distinct keys")
	}
	if q.hashWith(7) == n.hashWith(7) {
		t.Error("Categories should hash apart")
	}
}

func TestKeyHashSeed(t *testing.T) {
	rl := newTestLimiter(t)
	k := rl.makeKey(net.ParseIP("192.0.2.1"), CategoryQuery, 1, 1, "a.example.")

	if k.hashWith(1) == k.hashWith(2) {
		t.Error("Different seeds should disperse the same key")
	}
	if k.hashWith(1) != k.hashWith(1) {
		t.Error("Hashing must be deterministic")
	}

	if hashSeed(1, 2) == hashSeed(1, 3) || hashSeed(1, 2) == hashSeed(2, 2) {
		t.Error("Seed should vary with time and pid")
	}
}

func TestKeyNameDigestSeeded(t *testing.T) {
	// A name collision found against one instance must not carry to another.
	if nameDigest(1, "a.example.") == nameDigest(2, "a.example.") {
		t.Error("Name digest should vary with the instance seed")
	}
	if nameDigest(7, "a.example.") != nameDigest(7, "A.Example") {
		t.Error("Seeding must not break canonical equality")
	}
	if nameDigest(7, "") != 0 {
		t.Error("Empty name should digest to zero")
	}
}
