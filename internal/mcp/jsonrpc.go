// Package mcp connects to Model Context Protocol tool servers over stdio and
// exposes their tools to the chat engine under namespaced names.
package mcp

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

const jsonrpcVersion = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request. A nil ID makes it a notification.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IsError reports whether the response carries an error object.
func (r *Response) IsError() bool { return r.Error != nil }

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

type idGenerator struct {
	counter atomic.Int64
}

func (g *idGenerator) next() string {
	return fmt.Sprintf("%d", g.counter.Add(1))
}

func newRequest(id any, method string, params map[string]any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

func newNotification(method string, params map[string]any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}

// decodeResponse parses and version-checks a response line.
func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RPCError{Code: CodeParseError, Message: "malformed response", Data: err.Error()}
	}
	if resp.JSONRPC != jsonrpcVersion {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", resp.JSONRPC)}
	}
	return &resp, nil
}

// remarshal round-trips an untyped result into target.
func remarshal(result any, target any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
