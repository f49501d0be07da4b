package registry

// outbox is a bounded FIFO queue that drops the oldest message when pushing
// beyond capacity.
type outbox struct {
	capacity int
	items    [][]byte
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		capacity: capacity,
		items:    make([][]byte, 0, capacity),
	}
}

// push appends the given message and reports whether the oldest one was
// dropped.
func (o *outbox) push(message []byte) bool {
	dropped := false
	if len(o.items) >= o.capacity {
		copy(o.items, o.items[1:])
		o.items = o.items[:len(o.items)-1]
		dropped = true
	}
	o.items = append(o.items, message)
	return dropped
}

// peek returns the oldest message.
func (o *outbox) peek() ([]byte, bool) {
	if len(o.items) == 0 {
		return nil, false
	}
	return o.items[0], true
}

// pop removes the oldest message.
func (o *outbox) pop() {
	if len(o.items) == 0 {
		return
	}
	copy(o.items, o.items[1:])
	o.items[len(o.items)-1] = nil
	o.items = o.items[:len(o.items)-1]
}

func (o *outbox) len() int {
	return len(o.items)
}

// requeue puts the given messages in front of the queued ones. If this exceeds
// the capacity, the oldest messages are dropped. It returns the amount of
// dropped messages.
func (o *outbox) requeue(messages [][]byte) int {
	items := make([][]byte, 0, len(messages)+len(o.items))
	items = append(items, messages...)
	items = append(items, o.items...)
	dropped := 0
	if len(items) > o.capacity {
		dropped = len(items) - o.capacity
		items = items[dropped:]
	}
	o.items = items
	return dropped
}
