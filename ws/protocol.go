package ws

import (
	"encoding/json"
	"fmt"
)

// Frame op codes
const (
	// Client ops
	OpConnect    int32 = 1001 // Authenticated handshake
	OpSubscribe  int32 = 1002 // Subscribe to a room topic
	OpSend       int32 = 1003 // Publish to a room send destination
	OpDisconnect int32 = 1004 // Graceful close

	// Server ops
	OpConnected  int32 = 2001 // Handshake accepted
	OpSubscribed int32 = 2002 // Subscription accepted
	OpMessage    int32 = 2003 // Message push
	OpError      int32 = 3001 // Server-side rejection
)

// Frame is the wire unit exchanged with the chat gateway
type Frame struct {
	Op          int32           `json:"op"`
	Destination string          `json:"destination,omitempty"` // topic or send destination
	Token       string          `json:"token,omitempty"`       // bearer token, handshake only
	Heartbeat   int64           `json:"heartbeat,omitempty"`   // desired heartbeat interval, ms
	OperationID string          `json:"operation_id,omitempty"`
	ErrCode     int             `json:"err_code,omitempty"`
	ErrMsg      string          `json:"err_msg,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// RoomTopic is the subscription destination for a room
func RoomTopic(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}

// RoomSendDest is the publish destination for a room
func RoomSendDest(roomID int64) string {
	return fmt.Sprintf("room:%d:send", roomID)
}

// Encode encodes a frame to JSON bytes
func Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Decode decodes JSON bytes into a frame
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
