// internal/sink/channel.go
package sink

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"rfid-service/internal/model"
)

// ChannelSink fans tags out to in-process subscribers (websocket
// streams). Slow subscribers drop tags rather than stall the session.
type ChannelSink struct {
	logger      *zap.Logger
	mutex       sync.RWMutex
	subscribers map[chan *model.TagRecord]struct{}
	buffer      int
	closed      bool
}

// NewChannelSink creates a subscriber fan-out with the given per-subscriber
// buffer size.
func NewChannelSink(buffer int, logger *zap.Logger) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{
		logger:      logger.With(zap.String("sink", "channel")),
		subscribers: make(map[chan *model.TagRecord]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a new tag stream. The returned cancel function
// removes the subscription and closes the channel.
func (c *ChannelSink) Subscribe() (<-chan *model.TagRecord, func()) {
	ch := make(chan *model.TagRecord, c.buffer)

	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	c.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mutex.Lock()
			if _, ok := c.subscribers[ch]; ok {
				delete(c.subscribers, ch)
				close(ch)
			}
			c.mutex.Unlock()
		})
	}
	return ch, cancel
}

// Emit delivers the tag to every subscriber without blocking. Full
// subscriber buffers lose the tag.
func (c *ChannelSink) Emit(_ context.Context, tag *model.TagRecord) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for ch := range c.subscribers {
		select {
		case ch <- tag:
		default:
			c.logger.Debug("Subscriber buffer full, tag dropped",
				zap.String("epc", tag.EPC))
		}
	}
	return nil
}

// SubscriberCount reports the number of active subscriptions.
func (c *ChannelSink) SubscriberCount() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.subscribers)
}

// Close closes all subscriber channels and rejects new subscriptions.
func (c *ChannelSink) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, ch)
	}
	return nil
}
