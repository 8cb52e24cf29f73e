package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

// mailbox is an unbounded FIFO drained by a single goroutine. Posting
// never blocks, so the hub can deliver while holding its lock.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (b *mailbox) post(fn func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *mailbox) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for {
			b.mu.Lock()
			if b.closed || len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			fn := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()
			if r := panics.Try(fn); r != nil {
				log.Error().Err(r.AsError()).Str("module", "relay").Msg("handler panicked")
			}
		}
	}
}

func (b *mailbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.queue = nil
	close(b.done)
}
