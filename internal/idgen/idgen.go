// Package idgen generates the ulid-like, monotonically-increasing ids
// used throughout the data model (spec §3: "id monotonically increases
// along with append order").
package idgen

import (
	"encoding/base32"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var encoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

var (
	mu        sync.Mutex
	lastMilli int64
	seq       uint32
)

// next returns a 16-byte lexicographically-sortable value: 6 bytes of
// millisecond timestamp followed by a per-millisecond sequence counter
// and random tail, guaranteeing strictly increasing ids even when two
// events are appended within the same millisecond (required for the
// ledger's strictly-increasing id invariant, spec §8 property 1).
func next() string {
	mu.Lock()
	now := time.Now().UTC().UnixMilli()
	if now == lastMilli {
		seq++
	} else {
		lastMilli = now
		seq = 0
	}
	local := seq
	mu.Unlock()

	var buf [16]byte
	buf[0] = byte(now >> 40)
	buf[1] = byte(now >> 32)
	buf[2] = byte(now >> 24)
	buf[3] = byte(now >> 16)
	buf[4] = byte(now >> 8)
	buf[5] = byte(now)
	buf[6] = byte(local >> 24)
	buf[7] = byte(local >> 16)
	buf[8] = byte(local >> 8)
	buf[9] = byte(local)

	rnd := uuid.New()
	copy(buf[10:], rnd[:6])

	return encoding.EncodeToString(buf[:])
}

// Event returns a new ev_ id.
func Event() string { return fmt.Sprintf("ev_%s", next()) }

// Group returns a new g_ id.
func Group() string { return fmt.Sprintf("g_%s", next()) }

// Actor returns a new a_ id.
func Actor() string { return fmt.Sprintf("a_%s", next()) }

// Generic returns a new id with an arbitrary prefix (used for profile
// and automation rule ids).
func Generic(prefix string) string { return fmt.Sprintf("%s_%s", prefix, next()) }
