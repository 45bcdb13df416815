package protocol

import (
	"github.com/creastat/multicast/core"
)

// InputMessageType defines client-to-server message types
type InputMessageType string

const (
	// InputMulticast asks the server to multicast the payload
	InputMulticast InputMessageType = "multicast.request"
)

// InputMessage represents a message from client
type InputMessage struct {
	Type      InputMessageType `json:"type"`
	ID        string           `json:"id,omitempty"` // Client-generated message ID
	Body      any              `json:"body"`
	Headers   map[string]any   `json:"headers,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
}

// ToMessage converts the input into a routable message.
// A client-supplied ID is kept, otherwise a fresh one is assigned.
func (in *InputMessage) ToMessage() *core.Message {
	msg := core.NewMessage(in.Body)
	if in.ID != "" {
		msg.ID = in.ID
	}
	for k, v := range in.Headers {
		msg.SetHeader(k, v)
	}
	return msg
}
