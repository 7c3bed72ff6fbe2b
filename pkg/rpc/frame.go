// Package rpc implements the host<->interpreter wire protocol of spec §4.7:
// JSON request/response frames carried over an out-of-process executor's
// input channel, plus the dispatcher that routes them to the session's
// tools/skills/artifacts/deps namespaces.
package rpc

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Request is the frame the interpreter sends to the host, normally
// delivered wrapped as an input-request prompt.
type Request struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// NewRequest builds a well-formed request frame with a fresh id.
func NewRequest(method string, params map[string]any) Request {
	return Request{Type: "rpc_request", ID: uuid.NewString(), Method: method, Params: params}
}

// ErrorPayload is the error shape of a failed Response, preserving the
// origin exception's type name as metadata only (never dynamically
// re-typed on the interpreter side), per spec §4.7.
type ErrorPayload struct {
	Namespace string `json:"namespace"`
	Operation string `json:"operation"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

// Response is the frame the host sends back as the reply to an
// input-request.
type Response struct {
	ID     string        `json:"id"`
	Result any           `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// OK builds a successful response.
func OK(id string, result any) Response {
	return Response{ID: id, Result: result}
}

// Fail builds a failed response.
func Fail(id string, errPayload ErrorPayload) Response {
	return Response{ID: id, Error: &errPayload}
}

// ParseRequest attempts to decode raw as a Request frame. Per spec §4.7,
// non-JSON input or JSON lacking type:"rpc_request" is not an RPC request
// at all — it's ordinary interactive input, which ok=false signals to the
// caller so it can be answered with an empty string instead.
func ParseRequest(raw []byte) (req Request, ok bool) {
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, false
	}
	if req.Type != "rpc_request" {
		return Request{}, false
	}
	return req, true
}

// Marshal encodes a Response frame for transmission back to the
// interpreter.
func (r Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
