package bus

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ContextID names an execution context attached to the bus.
type ContextID string

const (
	// ContextSidebar is the privileged control surface hosting the
	// workflow orchestrator.
	ContextSidebar ContextID = "sidebar"

	// ContextPage is the host-page agent context (picker and viewer).
	ContextPage ContextID = "page"
)

// MessageType enumerates the cross-context protocol. The set is closed;
// receivers ignore anything else without error.
type MessageType string

const (
	// TypePing probes viewer liveness. Reply: {"status":"PONG"}.
	TypePing MessageType = "PING"

	// TypeShowFullScreenImage asks the viewer to display an image.
	TypeShowFullScreenImage MessageType = "SHOW_FULL_SCREEN_IMAGE"

	// TypeCancelSelection asks the picker to tear down its overlays.
	TypeCancelSelection MessageType = "CANCEL_SELECTION"

	// TypeImageSelected reports the user's single click on an overlay.
	// This is the only externally-initiated message in the protocol.
	TypeImageSelected MessageType = "IMAGE_SELECTED"

	// TypeAck is the generic acknowledgment reply.
	TypeAck MessageType = "ACK"
)

// Message is the unit crossing the bus. Every payload crosses by value;
// there is no shared memory between contexts.
type Message struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	From    ContextID       `json:"from,omitempty"`
	To      ContextID       `json:"to,omitempty"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Payload shapes ---

// ShowImagePayload carries the image for SHOW_FULL_SCREEN_IMAGE. Src is a
// data URI or a remote URL.
type ShowImagePayload struct {
	Src string `json:"src"`
}

// ImageSelectedPayload carries the clicked image's source URL.
type ImageSelectedPayload struct {
	URL string `json:"url"`
}

// StatusPayload is the reply body for PING and acknowledgments.
type StatusPayload struct {
	Status string `json:"status"`
}

// StatusPong is the liveness reply expected by the orchestrator.
const StatusPong = "PONG"

// NewMessage builds an addressed message with a fresh correlation ID.
// Marshaling the payload cannot fail for the protocol's payload shapes.
func NewMessage(from, to ContextID, msgType MessageType, payload any) Message {
	msg := Message{
		ID:   uuid.NewString(),
		Type: msgType,
		From: from,
		To:   to,
	}
	if payload != nil {
		raw, _ := json.Marshal(payload)
		msg.Payload = raw
	}
	return msg
}

// Reply builds the answer to msg, addressed back at its sender.
func (m Message) Reply(msgType MessageType, payload any) Message {
	reply := NewMessage(m.To, m.From, msgType, payload)
	reply.ReplyTo = m.ID
	return reply
}

// Ack builds the generic acknowledgment reply to msg.
func (m Message) Ack(status string) Message {
	return m.Reply(TypeAck, StatusPayload{Status: status})
}

// DecodePayload unmarshals the message payload into v.
func (m Message) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
