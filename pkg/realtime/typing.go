package realtime

import (
	"sync"
	"time"
)

// typingRefreshInterval is how often the indicator is re-sent while a Typing
// helper is active. Indicators expire server-side after about 3 seconds.
const typingRefreshInterval = 2500 * time.Millisecond

// Typing keeps a typing indicator alive in a chat until stopped. Obtain one
// with Session.StartTyping and always release it with Stop, typically:
//
//	t := session.StartTyping(chat)
//	defer t.Stop()
//	// ... long-running work ...
//
// Stop is idempotent; the clear-typing command is sent exactly once no
// matter how the surrounding code exits.
type Typing struct {
	s    *Session
	to   string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartTyping shows the typing indicator in the given chat and keeps
// re-sending it until the returned helper is stopped.
func (s *Session) StartTyping(to string) *Typing {
	t := &Typing{
		s:    s,
		to:   to,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Typing) loop() {
	defer close(t.done)

	if err := t.s.SendTyping(t.to); err != nil {
		t.s.logger.Printf("[Realtime] typing indicator for %s: %v", t.to, err)
	}

	ticker := time.NewTicker(typingRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			if err := t.s.ClearTyping(t.to); err != nil {
				t.s.logger.Printf("[Realtime] clear typing for %s: %v", t.to, err)
			}
			return
		case <-ticker.C:
			if err := t.s.SendTyping(t.to); err != nil {
				t.s.logger.Printf("[Realtime] typing indicator for %s: %v", t.to, err)
			}
		}
	}
}

// Stop clears the typing indicator. It blocks until the clear command has
// been issued and is safe to call more than once.
func (t *Typing) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
