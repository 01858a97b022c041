// Package transport implements the inter-container RPC of the agent
// system: JSON-framed request/response envelopes over one websocket
// connection per peer pair. The single connection per pair gives FIFO
// delivery between two containers.
package transport

import "encoding/json"

const (
	kindRequest  = "request"
	kindResponse = "response"
)

// frame is the wire envelope of one RPC message.
type frame struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Target string          `json:"target,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
