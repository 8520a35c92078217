// Package realtime implements a websocket messaging client with acked
// publishes, duplicate suppression, connection recovery, and automatic
// reconnect.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Protocol selects the websocket subprotocol. The reliable variant carries
// sequence ids and reconnection tokens so a dropped connection can be
// recovered without losing messages.
type Protocol struct {
	Name     string
	Reliable bool
}

var (
	// ProtocolJSON is the plain JSON subprotocol. No recovery support.
	ProtocolJSON = Protocol{Name: "json.webpubsub.azure.v1"}

	// ProtocolReliableJSON adds sequence numbers and recovery.
	ProtocolReliableJSON = Protocol{Name: "json.reliable.webpubsub.azure.v1", Reliable: true}
)

// DataType describes the payload encoding of a data message.
type DataType string

const (
	DataTypeJSON   DataType = "json"
	DataTypeText   DataType = "text"
	DataTypeBinary DataType = "binary"
)

// wireMessage is the envelope for everything sent or received on the socket.
// Fields are a union across message kinds; Type and From discriminate.
type wireMessage struct {
	Type string `json:"type"`

	// system messages
	Event             string `json:"event,omitempty"`
	ConnectionID      string `json:"connectionId,omitempty"`
	ReconnectionToken string `json:"reconnectionToken,omitempty"`
	Message           string `json:"message,omitempty"`

	// ack messages
	AckID   uint64    `json:"ackId,omitempty"`
	Success *bool     `json:"success,omitempty"`
	Error   *ackError `json:"error,omitempty"`

	// data messages
	From       string          `json:"from,omitempty"`
	Group      string          `json:"group,omitempty"`
	SequenceID uint64          `json:"sequenceId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	DataType   DataType        `json:"dataType,omitempty"`
	NoEcho     bool            `json:"noEcho,omitempty"`
}

type ackError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

const (
	messageTypeSystem      = "system"
	messageTypeAck         = "ack"
	messageTypeData        = "message"
	messageTypeJoinGroup   = "joinGroup"
	messageTypeLeaveGroup  = "leaveGroup"
	messageTypeSendToGroup = "sendToGroup"
	messageTypeEvent       = "event"
	messageTypeSequenceAck = "sequenceAck"

	systemEventConnected    = "connected"
	systemEventDisconnected = "disconnected"

	// ackErrorDuplicate means the service already processed this ack id.
	// The original send succeeded, so callers treat it as success.
	ackErrorDuplicate = "Duplicate"
)

// AckError is returned when the service rejects an acked operation.
type AckError struct {
	AckID uint64
	Name  string
	Msg   string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("operation %d rejected: %s: %s", e.AckID, e.Name, e.Msg)
}

// GroupMessage is a data message received from a group.
type GroupMessage struct {
	Group      string
	SequenceID uint64
	Data       json.RawMessage
	DataType   DataType
}

// ServerMessage is a data message sent directly by the service.
type ServerMessage struct {
	SequenceID uint64
	Data       json.RawMessage
	DataType   DataType
}
