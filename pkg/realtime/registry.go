package realtime

import (
	"log"
	"sync"

	"ryver/pkg/protocol"
)

// HandlerFunc is a callback invoked with a decoded inbound frame. Handlers
// registered through the typed On* helpers receive the concrete frame type
// instead.
type HandlerFunc func(protocol.Frame)

// registryKey routes a frame to its handlers. For event frames the topic is
// the event topic; for every other message type it is empty.
type registryKey struct {
	kind  protocol.MessageType
	topic string
}

// Registration identifies a registered handler so it can be removed later.
type Registration struct {
	key registryKey
	id  uint64
}

type handlerEntry struct {
	id uint64
	fn HandlerFunc
}

// handlerRegistry maps (message type, event topic) keys to ordered handler
// lists. Multiple handlers may be registered per key; they run in
// registration order. A frame is delivered to its exact key first, then to
// the topic wildcard within its type, then to the global wildcard.
type handlerRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	byKey  map[registryKey][]handlerEntry
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{byKey: make(map[registryKey][]handlerEntry)}
}

func (r *handlerRegistry) register(kind protocol.MessageType, topic string, fn HandlerFunc) Registration {
	key := registryKey{kind: kind, topic: topic}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.byKey[key] = append(r.byKey[key], handlerEntry{id: r.nextID, fn: fn})
	return Registration{key: key, id: r.nextID}
}

func (r *handlerRegistry) unregister(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byKey[reg.key]
	for i, entry := range entries {
		if entry.id == reg.id {
			r.byKey[reg.key] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(r.byKey[reg.key]) == 0 {
		delete(r.byKey, reg.key)
	}
}

// matchKeys returns the registry keys a frame is delivered to, most specific
// first. Wildcard keys are included only once even when a key already is the
// wildcard.
func matchKeys(frame protocol.Frame) []registryKey {
	kind := frame.FrameType()

	keys := make([]registryKey, 0, 3)
	if ev, ok := frame.(*protocol.Event); ok {
		if ev.Topic != protocol.TopicAll {
			keys = append(keys, registryKey{kind: protocol.TypeEvent, topic: ev.Topic})
		}
		keys = append(keys, registryKey{kind: protocol.TypeEvent, topic: protocol.TopicAll})
	} else if kind != protocol.TypeAll {
		keys = append(keys, registryKey{kind: kind})
	}
	keys = append(keys, registryKey{kind: protocol.TypeAll})
	return keys
}

// dispatch delivers a frame to every matching handler. A handler that panics
// is recovered and logged; it never prevents the remaining handlers from
// running.
func (r *handlerRegistry) dispatch(frame protocol.Frame, logger *log.Logger) {
	for _, key := range matchKeys(frame) {
		r.mu.RLock()
		entries := append([]handlerEntry(nil), r.byKey[key]...)
		r.mu.RUnlock()

		for _, entry := range entries {
			invoke(entry.fn, frame, logger)
		}
	}
}

func invoke(fn HandlerFunc, frame protocol.Frame, logger *log.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Printf("[Realtime] handler for %q panicked: %v", frame.FrameType(), rec)
		}
	}()
	fn(frame)
}
