package pulseauth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Epoch for session identifiers: 2025-01-01T00:00:00Z.
const idEpochMillis int64 = 1735689600000

const (
	idSeqBits = 12
	idSeqMask = 1<<idSeqBits - 1
)

// sessionIDGenerator produces opaque base62 identifiers from a
// millisecond timestamp shifted left 12 bits OR'd with a per-millisecond
// sequence counter. Identifiers are strictly non-repeating within one
// process; cross-process collision probability is accepted as negligible
// but is not a cryptographic guarantee.
type sessionIDGenerator struct {
	mu         sync.Mutex
	lastMillis int64
	seq        int64
}

// Next returns a fresh session identifier. When the 4096-per-millisecond
// sequence overflows it spins to the next millisecond rather than repeat.
func (g *sessionIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastMillis {
		// Clock went backwards; keep issuing against the last observed
		// millisecond so ids stay unique.
		now = g.lastMillis
	}
	if now == g.lastMillis {
		g.seq = (g.seq + 1) & idSeqMask
		if g.seq == 0 {
			for now <= g.lastMillis {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMillis = now

	id := (now-idEpochMillis)<<idSeqBits | g.seq
	return encodeBase62(id)
}

func encodeBase62(n int64) string {
	if n <= 0 {
		return string(base62Alphabet[0])
	}
	var sb strings.Builder
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Alphabet[n%62]
		n /= 62
	}
	sb.Write(buf[i:])
	return sb.String()
}

// RandomID returns a base62 string of length n from a cryptographic
// source. Unlike session identifiers these carry no ordering and are only
// probabilistically unique.
func RandomID(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random id length must be positive, got %d", n)
	}
	max := big.NewInt(int64(len(base62Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random id: %w", err)
		}
		out[i] = base62Alphabet[idx.Int64()]
	}
	return string(out), nil
}
