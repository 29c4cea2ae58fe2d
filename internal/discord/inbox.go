package discord

import "sync"

// notWaiting answers an owner who types in a booking channel while no
// question is open.
const notWaiting = "I'm not waiting for an answer right now. Type `cancel` to stop the booking."

type reply struct {
	messageID string
	content   string
}

type waiter struct {
	ownerID string
	ch      chan reply
}

// inbox holds at most one open question per channel. A waiter is
// registered before its question is posted so a fast answer is kept.
type inbox struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

func newInbox() *inbox {
	return &inbox{waiters: make(map[string]*waiter)}
}

func (b *inbox) listen(channelID, ownerID string) *waiter {
	w := &waiter{ownerID: ownerID, ch: make(chan reply, 4)}
	b.mu.Lock()
	b.waiters[channelID] = w
	b.mu.Unlock()
	return w
}

func (b *inbox) stop(channelID string, w *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiters[channelID] == w {
		delete(b.waiters, channelID)
	}
}

// deliver queues r for the open question in channelID if authorID is the
// one being asked.
func (b *inbox) deliver(channelID, authorID string, r reply) bool {
	b.mu.Lock()
	w, ok := b.waiters[channelID]
	b.mu.Unlock()
	if !ok || w.ownerID != authorID {
		return false
	}
	select {
	case w.ch <- r:
		return true
	default:
		return false
	}
}
