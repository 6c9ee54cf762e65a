package log

import (
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

// Event is one captured protocol event. Integer CBOR keys keep capture
// files small.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the WebSocket session (UUID).
	SessionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// ApplianceID is the deviceID of the appliance serving the session.
	ApplianceID string `cbor:"7,keyasint,omitempty"`

	// Exactly one of the following is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction of a captured message relative to the simulator.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	}
	return "UNKNOWN"
}

// Layer is where an event was captured.
type Layer uint8

const (
	// LayerTransport sees WebSocket text frames.
	LayerTransport Layer = 0
	// LayerWire sees decoded messages.
	LayerWire Layer = 1
	// LayerService sees session and appliance lifecycle.
	LayerService Layer = 2
)

func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	}
	return "UNKNOWN"
}

// Category classifies an event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// FrameEvent is a raw text frame.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Text      string `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MaxFrameText is the longest frame text kept in a FrameEvent.
const MaxFrameText = 4096

// NewFrameEvent captures text, truncating it to MaxFrameText bytes.
func NewFrameEvent(text string) *FrameEvent {
	ev := &FrameEvent{Size: len(text), Text: text}
	if len(text) > MaxFrameText {
		ev.Text = text[:MaxFrameText]
		ev.Truncated = true
	}
	return ev
}

// MessageEvent is a decoded protocol message.
type MessageEvent struct {
	Action   string `cbor:"1,keyasint"`
	Resource string `cbor:"2,keyasint"`
	SID      *int64 `cbor:"3,keyasint,omitempty"`
	MsgID    *int64 `cbor:"4,keyasint,omitempty"`
	Version  *int   `cbor:"5,keyasint,omitempty"`
	Code     *int   `cbor:"6,keyasint,omitempty"`

	// Payload holds the message data items.
	Payload []map[string]any `cbor:"7,keyasint,omitempty"`

	// ProcessingTime is set on responses: time from request receipt to send.
	ProcessingTime *time.Duration `cbor:"8,keyasint,omitempty"`
}

// NewMessageEvent captures msg. The payload is shared, not copied.
func NewMessageEvent(msg *wire.Message) *MessageEvent {
	return &MessageEvent{
		Action:   msg.Action.String(),
		Resource: msg.Resource,
		SID:      msg.SID,
		MsgID:    msg.MsgID,
		Version:  msg.Version,
		Code:     msg.Code,
		Payload:  msg.Data,
	}
}

// StateChangeEvent is a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity says what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntitySession    StateEntity = 1
	// StateEntityAppliance marks an appliance load or replacement.
	StateEntityAppliance StateEntity = 2
)

func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityAppliance:
		return "APPLIANCE"
	}
	return "UNKNOWN"
}

// ControlMsgEvent is a WebSocket control frame.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is the WebSocket close status for close frames.
	CloseCode *int `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType is the kind of control frame.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	}
	return "UNKNOWN"
}

// ErrorEventData is an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`

	// Context names the operation that failed, e.g. "parse" or "dispatch".
	Context string `cbor:"4,keyasint,omitempty"`
}
