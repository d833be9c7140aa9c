package progress

import "sync"

// Channel is an unbounded FIFO of events. Any number of goroutines may Send;
// one goroutine receives from C. After Close, C is closed once every queued
// event has been delivered. A consumer that stops reading early calls Abandon
// so the delivery goroutine exits.
type Channel struct {
	mu        sync.Mutex
	queue     []Event
	closed    bool
	abandoned bool
	wake      chan struct{}
	out       chan Event
	gone      chan struct{}
	abandon   sync.Once
}

// NewChannel starts the delivery goroutine for a new channel.
func NewChannel() *Channel {
	c := &Channel{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		gone: make(chan struct{}),
	}
	go c.pump()
	return c
}

// Send enqueues ev. It never blocks. Sends after Close or Abandon are dropped
// and reported as false.
func (c *Channel) Send(ev Event) bool {
	c.mu.Lock()
	if c.closed || c.abandoned {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	c.signal()
	return true
}

// Close marks the end of the stream. Events already queued are still delivered.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// Abandon discards queued events and stops delivery. It is safe to call more
// than once and concurrently with Send and Close.
func (c *Channel) Abandon() {
	c.abandon.Do(func() {
		c.mu.Lock()
		c.abandoned = true
		c.queue = nil
		c.mu.Unlock()
		close(c.gone)
	})
}

// C returns the receive side.
func (c *Channel) C() <-chan Event {
	return c.out
}

// Len reports the number of events waiting to be delivered.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) pump() {
	defer close(c.out)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-c.wake:
			case <-c.gone:
				return
			}
			continue
		}
		ev := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()
		select {
		case c.out <- ev:
		case <-c.gone:
			return
		}
	}
}
