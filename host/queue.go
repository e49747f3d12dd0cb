package host

import (
	"sync"

	"github.com/wippyai/hotswap/contract"
)

// queue is an unbounded FIFO of messages. push never blocks; ready is
// signalled whenever the queue is non-empty.
type queue struct {
	ready chan struct{}
	items []contract.Message
	mu    sync.Mutex
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(msg contract.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.signal()
}

// pop removes the oldest message. The ready signal is re-armed while
// messages remain.
func (q *queue) pop() (contract.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return contract.Message{}, false
	}
	msg := q.items[0]
	q.items[0] = contract.Message{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	} else {
		q.items = nil
	}
	return msg, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
