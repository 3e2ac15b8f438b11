package hub

import (
	"fmt"
	"sync"

	"chat-platform/internal/models"
	"chat-platform/internal/shard"
)

const lockStripes = 256

// scopeLocks serializes fanout within one room, group or pair group. Holders only
// touch in-memory state and non-blocking sends; store calls happen outside.
type scopeLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *scopeLocks) lock(key string) func() {
	m := &l.stripes[shard.String(key)%lockStripes]
	m.Lock()
	return m.Unlock
}

func scopeKey(scope models.Scope, id int64) string {
	return fmt.Sprintf("%s:%d", scope, id)
}
