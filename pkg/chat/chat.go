// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package chat provides the one-shot convenience endpoint backing the bundled
// web UI. Each request performs its own sessionless initialize followed by a
// single tool call; the session table is never involved and the upstream
// session lives only for the duration of the exchange.
package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-session-proxy/pkg/jsonrpc"
	"github.com/go-core-stack/mcp-session-proxy/pkg/upstream"
)

// Caller abstracts the upstream client so tests can substitute fakes.
type Caller interface {
	Call(ctx context.Context, rpc jsonrpc.Request, sessionID string) (upstream.Result, error)
}

// Handler serves POST /chat.
type Handler struct {
	upstream Caller
	tool     string
	logger   zerolog.Logger
}

// New constructs the chat handler; tool names the upstream tool invoked for
// each message.
func New(caller Caller, tool string) *Handler {
	return &Handler{
		upstream: caller,
		tool:     tool,
		logger:   log.With().Str("component", "chat").Logger(),
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatError struct {
	Error string `json:"error"`
}

// ServeHTTP runs the initialize + tools/call pair and relays the tool
// response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, chatError{Error: "message is required"})
		return
	}

	initParams, _ := json.Marshal(map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]string{"name": "mcp-session-proxy-chat", "version": "1.0"},
	})

	initRes, err := h.upstream.Call(r.Context(), jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
		Params:  initParams,
	}, "")
	if err != nil {
		h.logger.Error().Err(err).Msg("chat initialize failed")
		writeJSON(w, http.StatusBadGateway, chatError{Error: err.Error()})
		return
	}

	callParams, _ := json.Marshal(map[string]any{
		"name":      h.tool,
		"arguments": map[string]string{"message": req.Message},
	})

	callRes, err := h.upstream.Call(r.Context(), jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      json.RawMessage(`2`),
		Method:  "tools/call",
		Params:  callParams,
	}, initRes.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("chat tool call failed")
		writeJSON(w, http.StatusBadGateway, chatError{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(callRes.Payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
