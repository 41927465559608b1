// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package stream extracts JSON payloads from SSE-framed upstream response
// bodies. The upstream answers each JSON-RPC call with a text/event-stream
// body carrying exactly one data line; this package implements that narrow
// grammar: newline-delimited lines, a fixed "data:" prefix, a JSON remainder.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const dataPrefix = "data:"

// maxLineBytes bounds a single stream line; upstream tool results can be large.
const maxLineBytes = 4 * 1024 * 1024

// ErrNoData reports a body without any data-carrying line.
var ErrNoData = errors.New("no data line in stream body")

// ParseError reports a data line whose remainder is not valid JSON.
type ParseError struct {
	Line string // Line is the offending data line, prefix included.
	Err  error  // Err is the underlying JSON syntax error.
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON in data line %q: %v", e.Line, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decode extracts the single JSON document embedded in a stream-framed body.
// Lines are scanned in order and the first one starting with the data prefix
// wins; the protocol guarantees at most one data line per response in this
// usage. Decode is side-effect-free.
func Decode(raw string) (json.RawMessage, error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))

		var doc json.RawMessage
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		return doc, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan stream body: %w", err)
	}

	return nil, ErrNoData
}
