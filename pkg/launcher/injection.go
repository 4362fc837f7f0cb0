package launcher

import (
	"sync"

	"github.com/sipeed/cortexd/pkg/logger"
)

// InjectionChannel is a FIFO of user messages feeding an in-flight session,
// per spec §9. When no session is active, Inject is a no-op that still
// succeeds (per spec §8 boundary: "injectMessage when no session is active
// is a no-op... subsequent session start observes the queued message").
type InjectionChannel struct {
	mu     sync.Mutex
	queue  []string
	closed bool
}

// NewInjectionChannel returns an empty channel.
func NewInjectionChannel() *InjectionChannel {
	return &InjectionChannel{}
}

// Inject enqueues message. Always succeeds unless the channel was closed.
func (c *InjectionChannel) Inject(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		logger.DebugCF("launcher.injection", "dropped message on closed channel", nil)
		return nil
	}
	c.queue = append(c.queue, message)
	logger.DebugCF("launcher.injection", "queued message", map[string]any{"queue_depth": len(c.queue)})
	return nil
}

// Drain removes and returns all queued messages in FIFO order.
func (c *InjectionChannel) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// Close marks the channel closed; subsequent Inject calls are dropped.
// Graceful stop closes any active injection channels per spec §5.
func (c *InjectionChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Len reports the current queue depth.
func (c *InjectionChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
