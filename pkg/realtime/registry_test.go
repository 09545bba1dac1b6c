package realtime

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"ryver/pkg/protocol"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func chatFrame(text string) *protocol.ChatMessage {
	return &protocol.ChatMessage{
		BaseFrame: protocol.BaseFrame{Type: protocol.TypeChat},
		To:        "+dev",
		Text:      text,
	}
}

func eventFrame(topic string) *protocol.Event {
	return &protocol.Event{
		BaseFrame: protocol.BaseFrame{Type: protocol.TypeEvent},
		Topic:     topic,
	}
}

func TestRegistry_ExactBeforeWildcard(t *testing.T) {
	reg := newHandlerRegistry()
	var order []string

	reg.register(protocol.TypeEvent, protocol.TopicAll, func(protocol.Frame) {
		order = append(order, "topic-wildcard")
	})
	reg.register(protocol.TypeAll, protocol.TopicAll, func(protocol.Frame) {
		order = append(order, "global")
	})
	reg.register(protocol.TypeEvent, protocol.TopicReactionAdded, func(protocol.Frame) {
		order = append(order, "exact")
	})

	reg.dispatch(eventFrame(protocol.TopicReactionAdded), testLogger())
	assert.Equal(t, []string{"exact", "topic-wildcard", "global"}, order)
}

func TestRegistry_RegistrationOrderWithinKey(t *testing.T) {
	reg := newHandlerRegistry()
	var order []int

	for i := 0; i < 4; i++ {
		i := i
		reg.register(protocol.TypeChat, protocol.TopicAll, func(protocol.Frame) {
			order = append(order, i)
		})
	}

	reg.dispatch(chatFrame("hi"), testLogger())
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestRegistry_PanickingHandlerIsIsolated(t *testing.T) {
	reg := newHandlerRegistry()
	var ran []string

	reg.register(protocol.TypeChat, protocol.TopicAll, func(protocol.Frame) {
		ran = append(ran, "first")
		panic("boom")
	})
	reg.register(protocol.TypeChat, protocol.TopicAll, func(protocol.Frame) {
		ran = append(ran, "second")
	})

	assert.NotPanics(t, func() {
		reg.dispatch(chatFrame("hi"), testLogger())
	})
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestRegistry_Unregister(t *testing.T) {
	reg := newHandlerRegistry()
	var calls int

	handle := reg.register(protocol.TypeChat, protocol.TopicAll, func(protocol.Frame) { calls++ })
	reg.dispatch(chatFrame("one"), testLogger())
	assert.Equal(t, 1, calls)

	reg.unregister(handle)
	reg.dispatch(chatFrame("two"), testLogger())
	assert.Equal(t, 1, calls)

	// Unregistering twice is harmless.
	reg.unregister(handle)
}

func TestRegistry_UnregisterKeepsSiblings(t *testing.T) {
	reg := newHandlerRegistry()
	var order []string

	first := reg.register(protocol.TypeChat, protocol.TopicAll, func(protocol.Frame) {
		order = append(order, "first")
	})
	reg.register(protocol.TypeChat, protocol.TopicAll, func(protocol.Frame) {
		order = append(order, "second")
	})

	reg.unregister(first)
	reg.dispatch(chatFrame("hi"), testLogger())
	assert.Equal(t, []string{"second"}, order)
}

func TestRegistry_UnknownFrameReachesGlobalWildcard(t *testing.T) {
	reg := newHandlerRegistry()
	var kinds []protocol.MessageType

	reg.register(protocol.TypeAll, protocol.TopicAll, func(frame protocol.Frame) {
		kinds = append(kinds, frame.FrameType())
	})
	reg.register(protocol.TypeChat, protocol.TopicAll, func(frame protocol.Frame) {
		t.Error("chat handler must not fire for an unknown frame")
	})

	unknown := &protocol.UnknownFrame{BaseFrame: protocol.BaseFrame{Type: "mystery"}}
	reg.dispatch(unknown, testLogger())
	assert.Equal(t, []protocol.MessageType{"mystery"}, kinds)
}

func TestRegistry_EventTopicsDoNotCross(t *testing.T) {
	reg := newHandlerRegistry()
	var got []string

	reg.register(protocol.TypeEvent, protocol.TopicReactionAdded, func(frame protocol.Frame) {
		got = append(got, "added")
	})
	reg.register(protocol.TypeEvent, protocol.TopicReactionRemoved, func(frame protocol.Frame) {
		got = append(got, "removed")
	})

	reg.dispatch(eventFrame(protocol.TopicReactionRemoved), testLogger())
	assert.Equal(t, []string{"removed"}, got)
}
