package messaging

import (
	"sync"

	"stratizen/models"
)

// Listener receives every message stored through this Store, with a plaintext body.
type Listener func(models.Message)

type subscription struct {
	id uint64
	fn Listener
}

// Subscribe registers fn for every successful, non-duplicate SendMessage in this process.
// Listeners run synchronously on the sending goroutine after the write completes. The
// returned function removes the listener and may be called more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.subMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscribeConversation is Subscribe limited to messages between a and b.
func (s *Store) SubscribeConversation(a, b string, fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	return s.Subscribe(func(message models.Message) {
		if isBetween(message.Sender, message.Receiver, a, b) {
			fn(message)
		}
	})
}

func (s *Store) publish(message models.Message) {
	s.subMu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.fn(message)
	}
}
