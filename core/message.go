package core

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Cloner is implemented by body values that hold mutable state and need a
// deep copy when a message is fanned out
type Cloner interface {
	Clone() any
}

// Message is the unit of data routed through a multicast
type Message struct {
	// ID uniquely identifies the message; copies keep the ID of their origin
	ID string

	// Body is the payload
	Body any

	// Headers travel with the message and are written back after aggregation
	Headers map[string]any

	// Properties are engine-level annotations; they are not written back
	Properties map[string]any

	failure error
}

// NewMessage creates a message with a fresh ID and empty headers
func NewMessage(body any) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Body:       body,
		Headers:    make(map[string]any),
		Properties: make(map[string]any),
	}
}

// Copy returns an independent deep copy of the message.
// Mutating the copy never affects m and vice versa.
func (m *Message) Copy() *Message {
	return &Message{
		ID:         m.ID,
		Body:       copyValue(m.Body),
		Headers:    copyMap(m.Headers),
		Properties: copyMap(m.Properties),
		failure:    m.failure,
	}
}

// Failure returns the failure recorded on the message, if any
func (m *Message) Failure() error {
	return m.failure
}

// SetFailure records err on the message. A nil err clears the slot.
func (m *Message) SetFailure(err error) {
	m.failure = err
}

// Failed reports whether a failure is recorded
func (m *Message) Failed() bool {
	return m.failure != nil
}

// Header returns the header stored under key
func (m *Message) Header(key string) (any, bool) {
	v, ok := m.Headers[key]
	return v, ok
}

// SetHeader stores a header value
func (m *Message) SetHeader(key string, value any) {
	if m.Headers == nil {
		m.Headers = make(map[string]any)
	}
	m.Headers[key] = value
}

// Property returns the property stored under key
func (m *Message) Property(key string) (any, bool) {
	v, ok := m.Properties[key]
	return v, ok
}

// SetProperty stores a property value
func (m *Message) SetProperty(key string, value any) {
	if m.Properties == nil {
		m.Properties = make(map[string]any)
	}
	m.Properties[key] = value
}

// CopyResults writes the body, headers and failure of source onto target.
// The ID and properties of target are left as they are.
func CopyResults(target, source *Message) {
	if target == source {
		return
	}
	target.Body = copyValue(source.Body)
	target.Headers = copyMap(source.Headers)
	target.failure = source.failure
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies a body, header or property value. Common container
// types take a fast path; everything else goes through deepCopy.
func copyValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Cloner:
		return t.Clone()
	case []byte:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case map[string]any:
		return copyMap(t)
	case map[string]string:
		return maps.Clone(t)
	case string, bool, int, int64, float64:
		return v
	default:
		return deepCopy(v)
	}
}
