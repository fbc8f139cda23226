package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	in := &Frame{
		Op:          OpConnect,
		Token:       "bearer-token",
		Heartbeat:   4000,
		OperationID: "op-1",
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameDataPayload(t *testing.T) {
	payload := json.RawMessage(`{"content":"hello"}`)
	data, err := Encode(&Frame{Op: OpSend, Destination: RoomSendDest(7), Data: payload})
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, OpSend, out.Op)
	assert.Equal(t, "room:7:send", out.Destination)
	assert.JSONEq(t, string(payload), string(out.Data))
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	data, err := Encode(&Frame{Op: OpDisconnect})
	require.NoError(t, err)
	assert.Equal(t, `{"op":1004}`, string(data))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
}

func TestDestinations(t *testing.T) {
	assert.Equal(t, "room:42", RoomTopic(42))
	assert.Equal(t, "room:42:send", RoomSendDest(42))
}
