// internal/spyevent/unbounded.go
package spyevent

// Chan is an unbounded MPSC event queue: any number of producers (the
// FsNotifier, Poller, and Walker for one spy) can send without blocking on a
// slow or momentarily-busy consumer, and no event is ever dropped — spec.md
// calls out "without losing events" as a hard requirement, which rules out
// the fixed-capacity "send or drop" channel pattern the teacher uses for its
// HTTP/webhook event fan-in.
//
// It is backed by a growable slice drained by a single internal goroutine,
// the standard Go idiom for an unbounded channel. Close must be called
// exactly once, after which In panics if sent to again.
type Chan struct {
	in  chan Event
	out chan Event
}

// NewChan starts the buffering goroutine and returns the queue.
func NewChan() *Chan {
	c := &Chan{
		in:  make(chan Event),
		out: make(chan Event),
	}
	go c.run()
	return c
}

// In returns the send side. Producers block only until the internal
// goroutine accepts the value into its backing queue, never until a
// consumer reads it.
func (c *Chan) In() chan<- Event { return c.in }

// Out returns the receive side for the Coalescer to range over.
func (c *Chan) Out() <-chan Event { return c.out }

// Close stops accepting new sends and, once the backlog drains, closes Out.
func (c *Chan) Close() {
	close(c.in)
}

func (c *Chan) run() {
	defer close(c.out)

	var queue []Event
	in := c.in

	for in != nil || len(queue) > 0 {
		if len(queue) == 0 {
			ev, ok := <-in
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, ev)
			continue
		}

		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, ev)
		case c.out <- queue[0]:
			queue = queue[1:]
		}
	}
}
