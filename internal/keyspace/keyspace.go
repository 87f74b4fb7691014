// Package keyspace holds the shared, mutable key/value map at the center of
// the server: a mapping from string keys to byte-string values with optional
// absolute-millisecond expiry, evicted lazily on access.
//
// The map is sharded by a hash of the key (see shard.go) so that unrelated
// keys don't contend on the same mutex, per the contention-reduction note in
// the design notes this package implements. Every command-path operation that
// can observe an expired entry removes it under the same lock as the read that
// found it, so there is no window where two goroutines disagree about whether a
// key is present. The test-only Snapshot skips expired entries without
// removing them.
package keyspace

import (
	"time"
)

// Clock abstracts wall-clock time so expiry math can be driven deterministically
// in tests instead of via time.Sleep.
type Clock interface {
	NowMillis() int64
}

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

type entry struct {
	value     []byte
	hasExpiry bool
	expiryMs  int64
}

func (e entry) expired(nowMs int64) bool {
	return e.hasExpiry && nowMs >= e.expiryMs
}

// SetOptions captures the full SET option matrix (EX/PX/EXAT/PXAT, NX, XX,
// KEEPTTL, GET) after the command engine has already resolved conflicts and
// computed an absolute deadline. Keyspace applies it atomically per key.
type SetOptions struct {
	// Expiry is the absolute millisecond deadline to store, or nil to clear
	// any existing expiry. Ignored when KeepTTL is true.
	Expiry *int64
	// KeepTTL preserves the key's current expiry (including "no expiry")
	// exactly; the write is skipped entirely if the key is absent.
	KeepTTL bool
	// OnlyIfAbsent is SET's NX flag: skip the write if the key is present.
	OnlyIfAbsent bool
	// OnlyIfPresent is SET's XX flag: skip the write if the key is absent.
	OnlyIfPresent bool
	// CaptureOld is SET's GET flag: report the pre-write value regardless of
	// whether the write itself happens.
	CaptureOld bool
}

// Keyspace is the sharded key/value map shared by every connection.
type Keyspace struct {
	shards []*shard
	clock  Clock
}

// New returns a Keyspace with numShards shards (at least 1) using the system
// wall clock.
func New(numShards int) *Keyspace {
	return NewWithClock(numShards, systemClock{})
}

// NewWithClock is New with an injected Clock, for expiry tests that must not
// depend on real elapsed time.
func NewWithClock(numShards int, clock Clock) *Keyspace {
	if numShards < 1 {
		numShards = 1
	}
	shards := make([]*shard, numShards)
	for i := range shards {
		shards[i] = &shard{data: make(map[string]entry)}
	}
	return &Keyspace{shards: shards, clock: clock}
}

// Set performs an unconditional write. A nil expiry clears any TTL the key
// previously had.
func (k *Keyspace) Set(key string, value []byte, expiry *int64) {
	s := k.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(key, value, expiry)
}

// SetIfAbsent writes only if key is absent (an expired entry counts as
// absent); it reports whether the write happened.
func (k *Keyspace) SetIfAbsent(key string, value []byte, expiry *int64) bool {
	s := k.shardFor(key)
	now := k.clock.NowMillis()
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok {
		if !e.expired(now) {
			return false
		}
		delete(s.data, key)
	}
	s.writeLocked(key, value, expiry)
	return true
}

// SetIfPresent writes only if key exists and is unexpired.
func (k *Keyspace) SetIfPresent(key string, value []byte, expiry *int64) bool {
	s := k.shardFor(key)
	now := k.clock.NowMillis()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return false
	}
	if e.expired(now) {
		delete(s.data, key)
		return false
	}
	s.writeLocked(key, value, expiry)
	return true
}

// Get returns key's value, lazily evicting it first if its deadline has
// passed.
func (k *Keyspace) Get(key string) ([]byte, bool) {
	s := k.shardFor(key)
	now := k.clock.NowMillis()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(s.data, key)
		return nil, false
	}
	return e.value, true
}

// GetExpiry reports key's absolute millisecond deadline, if it has one.
// present is false both when the key never existed and when this call just
// lazily evicted it as expired.
func (k *Keyspace) GetExpiry(key string) (expiryMs int64, hasExpiry bool, present bool) {
	s := k.shardFor(key)
	now := k.clock.NowMillis()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return 0, false, false
	}
	if e.expired(now) {
		delete(s.data, key)
		return 0, false, false
	}
	return e.expiryMs, e.hasExpiry, true
}

// Delete removes each of keys if present-and-unexpired, returning the count
// actually removed. An expired-but-still-mapped entry is evicted but not
// counted, matching GET's lazy-eviction semantics.
func (k *Keyspace) Delete(keys []string) int64 {
	now := k.clock.NowMillis()
	var removed int64
	for _, key := range keys {
		s := k.shardFor(key)
		s.mu.Lock()
		if e, ok := s.data[key]; ok {
			delete(s.data, key)
			if !e.expired(now) {
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// ApplySet executes SET's full semantic table (see the command engine's
// handler) as a single atomic operation under the owning shard's lock, so a
// concurrent command on the same key can never observe a half-applied write.
//
// old/hadOld are only populated when opts.CaptureOld is set (SET's GET
// option); per the resolved GET/NX/XX interaction, they reflect the
// pre-write value even when the guard below blocks the write.
func (k *Keyspace) ApplySet(key string, value []byte, opts SetOptions) (old []byte, hadOld bool, wrote bool) {
	s := k.shardFor(key)
	now := k.clock.NowMillis()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, present := s.data[key]
	if present && e.expired(now) {
		delete(s.data, key)
		present = false
	}

	if opts.CaptureOld && present {
		old = e.value
		hadOld = true
	}

	if opts.OnlyIfAbsent && present {
		return old, hadOld, false
	}
	if opts.OnlyIfPresent && !present {
		return old, hadOld, false
	}
	if opts.KeepTTL {
		if !present {
			return old, hadOld, false
		}
		s.data[key] = entry{value: value, hasExpiry: e.hasExpiry, expiryMs: e.expiryMs}
		return old, hadOld, true
	}

	s.writeLocked(key, value, opts.Expiry)
	return old, hadOld, true
}

// Snapshot returns every present, unexpired key at the moment of the call.
// It exists for tests that need to assert on overall keyspace state; no
// command handler uses it.
func (k *Keyspace) Snapshot() []string {
	now := k.clock.NowMillis()
	var keys []string
	for _, s := range k.shards {
		s.mu.Lock()
		for key, e := range s.data {
			if !e.expired(now) {
				keys = append(keys, key)
			}
		}
		s.mu.Unlock()
	}
	return keys
}
