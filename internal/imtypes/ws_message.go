package imtypes

import "encoding/json"

// ClientOp is the operation a websocket client requests.
type ClientOp string

const (
	OpSubscribe   ClientOp = "subscribe"
	OpUnsubscribe ClientOp = "unsubscribe"
)

// Topic kinds a client may name in a ClientFrame.
const (
	TopicRooms    = "rooms"
	TopicMessages = "messages"
	TopicIncoming = "incoming"
	TopicOutgoing = "outgoing"
	TopicFriends  = "friends"
)

// ClientFrame is one JSON message read from a websocket client.
type ClientFrame struct {
	Op     ClientOp `json:"op"`
	Topic  string   `json:"topic"`
	RoomID string   `json:"roomId,omitempty"`
}

// ServerFrameType tags frames written to a websocket client.
type ServerFrameType string

const (
	FrameSnapshot ServerFrameType = "snapshot"
	FrameError    ServerFrameType = "error"
)

// ServerFrame is one JSON message written to a websocket client. Snapshot
// frames carry the full current value of a subscribed topic in Data.
type ServerFrame struct {
	Type  ServerFrameType `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Stale bool            `json:"stale,omitempty"`
	Error string          `json:"error,omitempty"`
}
