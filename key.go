package rrl

import (
	"encoding/binary"
	"net"

	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"
)

// accountKey identifies one rate-limiting account: the masked client network plus the
// salient features of the response.
// The owner name is folded into a 32-bit digest so the key is a fixed-size comparable
// value; two keys are the same account iff they are ==.
//
// Masked-off address bits are zero, so all clients in the same prefix produce
// byte-identical keys. CategoryError keys carry a zero name digest regardless of the
// query name.
type accountKey struct {
	addr     [16]byte // ipv4 occupies the leading 4 bytes
	nameHash uint32
	qclass   uint16
	qtype    uint16
	family   uint8 // 4 or 6
	category ResponseCategory
}

// hashWith returns the 32-bit account hash: an xxhash digest over the instance seed
// followed by the canonical key bytes.
func (k *accountKey) hashWith(seed uint32) uint32 {
	var buf [30]byte
	binary.LittleEndian.PutUint32(buf[0:4], seed)
	copy(buf[4:20], k.addr[:])
	binary.LittleEndian.PutUint32(buf[20:24], k.nameHash)
	binary.LittleEndian.PutUint16(buf[24:26], k.qclass)
	binary.LittleEndian.PutUint16(buf[26:28], k.qtype)
	buf[28] = k.family
	buf[29] = byte(k.category)

	return uint32(xxhash.Sum64(buf[:]))
}

// nameDigest reduces an owner name to the 32-bit digest stored in the key.
// Insulate against unbound/use-caps-for-id et al by canonicalizing first so casing
// variations land in the same account.
//
// The per-instance seed is folded in so that colliding name pairs cannot be computed
// offline once and replayed against every deployment; the search has to be redone
// per instance per restart.
func nameDigest(seed uint32, name string) uint32 {
	if name == "" {
		return 0
	}

	var d xxhash.Digest
	d.Reset()
	var s [4]byte
	binary.LittleEndian.PutUint32(s[:], seed)
	d.Write(s[:])
	d.WriteString(dns.CanonicalName(name))

	return uint32(d.Sum64())
}

// maskBytes applies mask to b in place. Unlike net.IP.Mask it does not allocate.
func maskBytes(b []byte, mask net.IPMask) {
	for i := range b {
		b[i] &= mask[i]
	}
}

// makeKey builds the account key for a response. qname is ignored for
// CategoryError accounts.
func (rl *Limiter) makeKey(ip net.IP, category ResponseCategory, qclass, qtype uint16, qname string) accountKey {
	k := accountKey{category: category, qclass: qclass, qtype: qtype}

	if v4 := ip.To4(); v4 != nil {
		k.family = 4
		copy(k.addr[:4], v4)
		maskBytes(k.addr[:4], rl.ipv4Mask)
	} else if v6 := ip.To16(); v6 != nil {
		k.family = 6
		copy(k.addr[:], v6)
		maskBytes(k.addr[:], rl.ipv6Mask)
	}

	if category != CategoryError {
		k.nameHash = nameDigest(rl.seed, qname)
	}

	return k
}

// hashSeed derives the per-instance hash seed. Reasonably, though not
// cryptographically, unpredictable.
func hashSeed(nowNanos int64, pid int) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(nowNanos))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(pid))

	return uint32(xxhash.Sum64(buf[:]))
}
