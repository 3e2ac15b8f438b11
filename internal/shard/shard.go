// Package shard holds sharding functions for the concurrent maps used by the chat core.
package shard

import "hash/fnv"

// Int64 spreads sequential ids across shards.
func Int64(key int64) uint32 {
	h := uint64(key) * 0x9E3779B97F4A7C15
	return uint32(h >> 32)
}

// String is FNV-1a, the same hash concurrent-map uses for its string keys.
func String(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
