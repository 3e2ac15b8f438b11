// Package hub implements the join/send/leave/disconnect protocol of the three chat
// hubs: public rooms, groups, and private 1:1 conversations.
package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"chat-platform/internal/models"
	"chat-platform/internal/shard"
	"chat-platform/pkg/logger"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Sink is one live connection as seen by the hubs.
type Sink interface {
	ID() string
	UserID() int64
	Username() string
	// Deliver queues a frame without blocking. It returns false if the
	// connection could not take it.
	Deliver(f *Frame) bool
}

// Frame is an event together with its wire encoding. One frame is shared by
// every recipient of a fanout.
type Frame struct {
	Event *models.Event
	Data  []byte
}

func NewFrame(evt *models.Event) (*Frame, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", evt.Type, err)
	}
	return &Frame{Event: evt, Data: data}, nil
}

// frame is NewFrame for hub-built events; encoding failures are logged and the
// event is dropped.
func frame(evt *models.Event) *Frame {
	f, err := NewFrame(evt)
	if err != nil {
		logger.Error("%v", err)
		return nil
	}
	return f
}

// Dispatcher is what a transport connection drives. Handle is called sequentially
// per connection; Close runs once after the last Handle.
type Dispatcher interface {
	Name() string
	Open(ctx context.Context, s Sink) error
	Handle(ctx context.Context, s Sink, cmd *models.Command) error
	Close(ctx context.Context, s Sink)
}

// Directory resolves connection ids to sinks. It is shared by all hubs.
type Directory struct {
	conns cmap.ConcurrentMap[string, Sink]
}

func NewDirectory() *Directory {
	return &Directory{conns: cmap.NewWithCustomShardingFunction[string, Sink](shard.String)}
}

func (d *Directory) Add(s Sink) {
	d.conns.Set(s.ID(), s)
}

func (d *Directory) Remove(id string) {
	d.conns.Remove(id)
}

func (d *Directory) Get(id string) (Sink, bool) {
	return d.conns.Get(id)
}

func (d *Directory) Count() int {
	return d.conns.Count()
}

// deliver sends f to every listed connection still in the directory and returns
// how many accepted it.
func (d *Directory) deliver(ids []string, f *Frame) int {
	if f == nil {
		return 0
	}
	n := 0
	for _, id := range ids {
		if s, ok := d.conns.Get(id); ok && s.Deliver(f) {
			n++
		}
	}
	return n
}
