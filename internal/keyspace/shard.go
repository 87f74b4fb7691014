package keyspace

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// shard is one slice of the keyspace: an independently-locked bucket of
// entries. Routing a key to its shard by hash (see Keyspace.shardFor) keeps
// unrelated keys from contending on the same mutex.
type shard struct {
	mu   sync.Mutex
	data map[string]entry
}

func (s *shard) writeLocked(key string, value []byte, expiry *int64) {
	e := entry{value: value}
	if expiry != nil {
		e.hasExpiry = true
		e.expiryMs = *expiry
	}
	s.data[key] = e
}

// shardFor routes key to one of k.shards by hashing it with xxh3, a
// non-cryptographic hash fast enough to run on every single-key operation.
func (k *Keyspace) shardFor(key string) *shard {
	h := xxh3.HashString(key)
	return k.shards[h%uint64(len(k.shards))]
}
