// Package bridge links the event buses of two isolated runtime contexts
// (foreground UI and headless background) over a native transport, so
// both observe one logical event stream without echo loops.
package bridge

import "encoding/json"

// Message is the wire envelope carried across the native transport.
// ContextID names the sending integrator; receivers use it to drop
// echoes of their own broadcasts.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ContextID string          `json:"contextId"`
}

// Transport moves messages between the two contexts. Start registers
// the receive handler and returns once the transport is reading;
// delivery order follows arrival order per peer.
type Transport interface {
	Send(Message) error
	Start(handler func(Message)) error
	Close() error
}
