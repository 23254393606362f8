package ipc

import (
	"github.com/pithecene-io/warnwin/metrics"
	"github.com/pithecene-io/warnwin/types"
)

// Type discriminants carried in every frame.
const (
	RequestType  = "request"
	ResponseType = "response"
)

// Op names an admin operation.
type Op string

// Admin operations.
const (
	OpList    Op = "list"
	OpStats   Op = "stats"
	OpDismiss Op = "dismiss"
	OpClear   Op = "clear"
)

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	switch op {
	case OpList, OpStats, OpDismiss, OpClear:
		return true
	}
	return false
}

// Request is sent by an admin client. One request per connection.
type Request struct {
	Type string `msgpack:"type"`
	Op   Op     `msgpack:"op"`
	// ID is the notification id for OpDismiss.
	ID uint64 `msgpack:"id,omitempty"`
}

// NewRequest returns a request for op.
func NewRequest(op Op) *Request {
	return &Request{Type: RequestType, Op: op}
}

// Response answers a Request.
type Response struct {
	Type  string `msgpack:"type"`
	OK    bool   `msgpack:"ok"`
	Error string `msgpack:"error,omitempty"`

	// Snapshot is set for OpList.
	Snapshot *types.Snapshot `msgpack:"snapshot,omitempty"`
	// Stats and Active are set for OpStats.
	Stats  *metrics.Snapshot `msgpack:"stats,omitempty"`
	Active int               `msgpack:"active,omitempty"`
	// Dismissed counts notifications a dismiss or clear moved to leaving.
	Dismissed int `msgpack:"dismissed,omitempty"`
}

// ErrorResponse returns a failed response carrying msg.
func ErrorResponse(msg string) *Response {
	return &Response{Type: ResponseType, Error: msg}
}
