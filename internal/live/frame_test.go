package live

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/chat"
)

func TestEncodeMessage(t *testing.T) {
	data, err := EncodeMessage("u2", "hello", "tok")
	require.NoError(t, err)

	var frame map[string]string
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, map[string]string{
		"type":  "message",
		"to":    "u2",
		"text":  "hello",
		"token": "tok",
	}, frame)
}

func TestDecodeFrameMessage(t *testing.T) {
	event, ok := DecodeFrame([]byte(`{"type":"message","chatId":"u1_u2","message":{"id":1700000000000,"from":"u2","to":"u1","text":"hi"}}`))
	require.True(t, ok)
	require.Equal(t, EventMessage, event.Kind)
	require.Equal(t, chat.ConversationID("u1_u2"), event.ChatID)
	require.Equal(t, chat.MessageID(1700000000000), event.Message.ID)
	require.Equal(t, "u2", event.Message.From)
	require.Equal(t, chat.ConversationID("u1_u2"), event.Message.ConversationID)
}

func TestDecodeFrameStringID(t *testing.T) {
	event, ok := DecodeFrame([]byte(`{"type":"message","chatId":"u1_u2","message":{"id":"42","from":"u1","to":"u2","text":"x"}}`))
	require.True(t, ok)
	require.Equal(t, chat.MessageID(42), event.Message.ID)
}

func TestDecodeFrameErrors(t *testing.T) {
	event, ok := DecodeFrame([]byte(`{not json`))
	require.True(t, ok)
	require.Equal(t, EventError, event.Kind)
	require.Error(t, event.Err)

	event, ok = DecodeFrame([]byte(`{"type":"message","chatId":"u1_u2"}`))
	require.True(t, ok)
	require.Equal(t, EventError, event.Kind)

	_, ok = DecodeFrame([]byte(`{"type":"typing","chatId":"u1_u2"}`))
	require.False(t, ok)
}
