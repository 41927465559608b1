// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package jsonrpc defines the JSON-RPC 2.0 envelope types exchanged with MCP
// clients and servers. Payloads stay opaque; the proxy never interprets params
// or results beyond structural validation of the envelope itself.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Version is the protocol marker carried by every envelope.
const Version = "2.0"

// Error codes used by the proxy. CodeServerError covers session and upstream
// failures; the remaining JSON-RPC reserved codes are passed through from the
// upstream untouched.
const (
	CodeInvalidRequest = -32600
	CodeServerError    = -32000
)

// ErrInvalidRequest reports a body that is not a structurally valid JSON-RPC
// request object.
var ErrInvalidRequest = errors.New("invalid JSON-RPC request")

// Request is a single JSON-RPC request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is a single JSON-RPC response envelope. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Parse validates the structural envelope of an inbound request body. The body
// must be a JSON object whose "method" member is a non-empty string; anything
// else yields ErrInvalidRequest. Params and id are kept verbatim.
func Parse(body []byte) (Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{}, ErrInvalidRequest
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return Request{}, ErrInvalidRequest
	}
	if req.Method == "" {
		return Request{}, ErrInvalidRequest
	}

	return req, nil
}

// ErrorResponse builds an error envelope mirroring the request's id.
func ErrorResponse(id json.RawMessage, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}
