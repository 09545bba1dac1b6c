package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Chat(t *testing.T) {
	data := []byte(`{"type":"chat","key":"m123","from":"@alice","to":"+dev","text":"hello","subtype":"chat_message"}`)
	frame, err := ParseFrame(data)
	require.NoError(t, err)

	msg, ok := frame.(*ChatMessage)
	require.True(t, ok)
	assert.Equal(t, TypeChat, msg.FrameType())
	assert.Equal(t, "m123", msg.Key)
	assert.Equal(t, "@alice", msg.From)
	assert.Equal(t, "+dev", msg.To)
	assert.Equal(t, "hello", msg.Text)
}

func TestParseFrame_Ack(t *testing.T) {
	data := []byte(`{"type":"ack","reply_to":"abc-1","reply_type":"chat"}`)
	frame, err := ParseFrame(data)
	require.NoError(t, err)

	ack, ok := frame.(*Ack)
	require.True(t, ok)
	assert.Equal(t, "abc-1", ack.ReplyTo)
	assert.Equal(t, TypeChat, ack.ReplyType)
	assert.Empty(t, ack.Error)
}

func TestParseFrame_Event(t *testing.T) {
	data := []byte(`{"type":"event","topic":"/api/reaction/added","data":{"reaction":"tada","userId":7}}`)
	frame, err := ParseFrame(data)
	require.NoError(t, err)

	ev, ok := frame.(*Event)
	require.True(t, ok)
	assert.Equal(t, TopicReactionAdded, ev.Topic)
	assert.Equal(t, "tada", ev.Data["reaction"])
}

func TestParseFrame_PresenceAndTyping(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"type":"presence_change","presence":"away","from":"@bob","client":"web"}`))
	require.NoError(t, err)
	pres, ok := frame.(*PresenceChanged)
	require.True(t, ok)
	assert.Equal(t, PresenceAway, pres.Presence)
	assert.Equal(t, "@bob", pres.From)

	frame, err = ParseFrame([]byte(`{"type":"user_typing","from":"@bob","to":"+dev","state":"composing"}`))
	require.NoError(t, err)
	typ, ok := frame.(*UserTyping)
	require.True(t, ok)
	assert.Equal(t, TypingComposing, typ.State)
}

func TestParseFrame_UnknownType(t *testing.T) {
	data := []byte(`{"type":"totally_new_thing","payload":42}`)
	frame, err := ParseFrame(data)
	require.NoError(t, err)

	unk, ok := frame.(*UnknownFrame)
	require.True(t, ok)
	assert.Equal(t, MessageType("totally_new_thing"), unk.FrameType())
	assert.JSONEq(t, string(data), string(unk.Raw))
}

func TestParseFrame_Malformed(t *testing.T) {
	_, err := ParseFrame([]byte(`{not json`))
	assert.Error(t, err)

	// Valid JSON but no discriminator is also a protocol error.
	_, err = ParseFrame([]byte(`{"text":"hi"}`))
	assert.Error(t, err)
}

func TestChatMessage_RoundTrip(t *testing.T) {
	out := NewChatMessage("+dev", "release is cut")
	require.NotEmpty(t, out.ID)

	data, err := json.Marshal(out)
	require.NoError(t, err)

	frame, err := ParseFrame(data)
	require.NoError(t, err)

	in, ok := frame.(*ChatMessage)
	require.True(t, ok)
	assert.Equal(t, out.ID, in.ID)
	assert.Equal(t, out.To, in.To)
	assert.Equal(t, out.Text, in.Text)
	assert.Equal(t, TypeChat, in.FrameType())
}

func TestOutboundConstructors(t *testing.T) {
	pres := NewPresenceChange(PresenceDoNotDisturb)
	assert.Equal(t, TypePresenceChanged, pres.Type)
	assert.Equal(t, PresenceDoNotDisturb, pres.Presence)
	assert.NotEmpty(t, pres.ID)

	typ := NewUserTyping("+dev", TypingDone)
	assert.Equal(t, TypeUserTyping, typ.Type)
	assert.Equal(t, "+dev", typ.To)
	assert.Equal(t, TypingDone, typ.State)

	auth := NewAuth("sess-1")
	assert.Equal(t, "Session sess-1", auth.Authorization)
	assert.Equal(t, "Ryver", auth.Agent)
	assert.Contains(t, auth.Resource, "Contatta-")

	ping := NewPing()
	assert.Equal(t, TypePing, ping.Type)
	assert.NotEmpty(t, ping.ID)
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
