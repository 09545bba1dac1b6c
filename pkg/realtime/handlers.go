package realtime

import (
	"ryver/pkg/protocol"
)

// On registers a handler for a message type. Use protocol.TypeAll to receive
// every frame that matches no more specific registration key exactly (global
// wildcard handlers run after exact-match handlers). The returned
// Registration removes the handler via Off.
func (s *Session) On(kind protocol.MessageType, fn HandlerFunc) Registration {
	return s.registry.register(kind, protocol.TopicAll, fn)
}

// OnEvent registers a handler for event frames with the given topic. Use
// protocol.TopicAll to match events of any topic.
func (s *Session) OnEvent(topic string, fn func(*protocol.Event)) Registration {
	return s.registry.register(protocol.TypeEvent, topic, func(frame protocol.Frame) {
		if ev, ok := frame.(*protocol.Event); ok {
			fn(ev)
		}
	})
}

// Off removes a previously registered handler.
func (s *Session) Off(reg Registration) {
	s.registry.unregister(reg)
}

// OnChat registers a handler for incoming chat messages.
func (s *Session) OnChat(fn func(*protocol.ChatMessage)) Registration {
	return s.On(protocol.TypeChat, func(frame protocol.Frame) {
		if msg, ok := frame.(*protocol.ChatMessage); ok {
			fn(msg)
		}
	})
}

// OnChatUpdated registers a handler for chat message edits.
func (s *Session) OnChatUpdated(fn func(*protocol.ChatUpdated)) Registration {
	return s.On(protocol.TypeChatUpdated, func(frame protocol.Frame) {
		if msg, ok := frame.(*protocol.ChatUpdated); ok {
			fn(msg)
		}
	})
}

// OnChatDeleted registers a handler for chat message deletions.
func (s *Session) OnChatDeleted(fn func(*protocol.ChatDeleted)) Registration {
	return s.On(protocol.TypeChatDeleted, func(frame protocol.Frame) {
		if msg, ok := frame.(*protocol.ChatDeleted); ok {
			fn(msg)
		}
	})
}

// OnPresenceChanged registers a handler for user presence notifications.
func (s *Session) OnPresenceChanged(fn func(*protocol.PresenceChanged)) Registration {
	return s.On(protocol.TypePresenceChanged, func(frame protocol.Frame) {
		if msg, ok := frame.(*protocol.PresenceChanged); ok {
			fn(msg)
		}
	})
}

// OnUserTyping registers a handler for typing indicators from other users.
func (s *Session) OnUserTyping(fn func(*protocol.UserTyping)) Registration {
	return s.On(protocol.TypeUserTyping, func(frame protocol.Frame) {
		if msg, ok := frame.(*protocol.UserTyping); ok {
			fn(msg)
		}
	})
}

// LossRegistration identifies a connection-loss handler for removal.
type LossRegistration uint64

// OnConnectionLoss registers a handler invoked once per unexpected
// connection drop, before any reconnect attempt. A typical non-reconnecting
// application closes the session from here so RunForever returns.
func (s *Session) OnConnectionLoss(fn func(err error)) LossRegistration {
	s.lossMu.Lock()
	defer s.lossMu.Unlock()
	s.lossNextID++
	s.lossHandlers = append(s.lossHandlers, lossEntry{id: s.lossNextID, fn: fn})
	return LossRegistration(s.lossNextID)
}

// OffConnectionLoss removes a connection-loss handler.
func (s *Session) OffConnectionLoss(reg LossRegistration) {
	s.lossMu.Lock()
	defer s.lossMu.Unlock()
	for i, entry := range s.lossHandlers {
		if entry.id == uint64(reg) {
			s.lossHandlers = append(s.lossHandlers[:i:i], s.lossHandlers[i+1:]...)
			return
		}
	}
}
