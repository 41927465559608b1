// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-session-proxy/pkg/jsonrpc"
	"github.com/go-core-stack/mcp-session-proxy/pkg/metrics"
	"github.com/go-core-stack/mcp-session-proxy/pkg/session"
	"github.com/go-core-stack/mcp-session-proxy/pkg/upstream"
)

// notificationPrefix marks JSON-RPC methods that carry no response
// expectation.
const notificationPrefix = "notifications/"

// msgUnknownSession is the error message for bound calls without a resolvable
// session.
const msgUnknownSession = "Missing or unknown Mcp-Session-Id. Call initialize first."

// Caller abstracts the upstream client so tests can substitute fakes.
type Caller interface {
	Call(ctx context.Context, rpc jsonrpc.Request, sessionID string) (upstream.Result, error)
}

// Handler is the client-facing JSON-RPC endpoint. It owns no state of its
// own; the session table and upstream caller are injected so several
// independent proxy instances can run in one process.
type Handler struct {
	sessions *session.Table
	upstream Caller
	logger   zerolog.Logger
}

// New constructs the handler around the provided collaborators.
func New(sessions *session.Table, caller Caller) *Handler {
	return &Handler{
		sessions: sessions,
		upstream: caller,
		logger:   log.With().Str("component", "proxy").Logger(),
	}
}

// ServeHTTP classifies the inbound request and dispatches it to one of the
// three handling paths. It is the single error boundary: any failure past
// structural validation comes back as a JSON-RPC error envelope, never as a
// bare transport error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	event := h.logger.With().
		Str("remote_addr", r.RemoteAddr).
		Logger()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, http.StatusBadRequest, jsonrpc.CodeInvalidRequest, "Invalid Request")
		metrics.ObserveRequest("malformed", "rejected", time.Since(start))
		event.Warn().Err(err).Msg("failed to read request body")
		return
	}

	rpc, err := jsonrpc.Parse(body)
	if err != nil {
		writeError(w, nil, http.StatusBadRequest, jsonrpc.CodeInvalidRequest, "Invalid Request")
		metrics.ObserveRequest("malformed", "rejected", time.Since(start))
		event.Warn().Msg("rejected malformed request")
		return
	}

	event = event.With().Str("rpc_method", rpc.Method).Logger()
	clientSession := r.Header.Get(upstream.SessionHeader)

	var class, outcome string
	switch {
	case strings.HasPrefix(rpc.Method, notificationPrefix):
		class = "notification"
		outcome = h.handleNotification(w, r, rpc, clientSession, event)
	case rpc.Method == "initialize":
		class = "initialize"
		outcome = h.handleInitialize(w, r, rpc, event)
	default:
		class = "bound"
		outcome = h.handleBound(w, r, rpc, clientSession, event)
	}

	metrics.ObserveRequest(class, outcome, time.Since(start))
	event.Info().
		Str("class", class).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("request handled")
}

// handleNotification forwards fire-and-forget methods. A notification with an
// unknown session is acknowledged rather than rejected: notifications may
// legitimately arrive before any session exists and must never block a client
// on session bootstrapping races.
func (h *Handler) handleNotification(w http.ResponseWriter, r *http.Request, rpc jsonrpc.Request, clientSession string, event zerolog.Logger) string {
	upstreamID, ok := h.sessions.Get(clientSession)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return "ok"
	}

	// The upstream's response content is ignored; only delivery matters.
	if _, err := h.upstream.Call(r.Context(), rpc, upstreamID); err != nil {
		event.Error().Err(err).Msg("notification forward failed")
		writeError(w, rpc.ID, http.StatusInternalServerError, jsonrpc.CodeServerError, err.Error())
		return "error"
	}

	w.Header().Set(upstream.SessionHeader, clientSession)
	w.WriteHeader(http.StatusNoContent)
	return "ok"
}

// handleInitialize establishes a fresh upstream session and hands the client
// a proxy session id in its place. The upstream id never leaves the table.
func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request, rpc jsonrpc.Request, event zerolog.Logger) string {
	res, err := h.upstream.Call(r.Context(), rpc, "")
	if err != nil {
		event.Error().Err(err).Msg("initialize failed")
		writeError(w, rpc.ID, http.StatusInternalServerError, jsonrpc.CodeServerError, err.Error())
		return "error"
	}

	if res.SessionID == "" {
		event.Error().Msg("upstream did not return a session id")
		writeError(w, rpc.ID, http.StatusInternalServerError, jsonrpc.CodeServerError, "Upstream did not return session id")
		return "error"
	}

	proxyID := h.sessions.Generate()
	h.sessions.Put(proxyID, res.SessionID)

	w.Header().Set(upstream.SessionHeader, proxyID)
	writePayload(w, res.Payload)
	return "ok"
}

// handleBound forwards any other method, bound to the upstream session the
// client's proxy id resolves to.
func (h *Handler) handleBound(w http.ResponseWriter, r *http.Request, rpc jsonrpc.Request, clientSession string, event zerolog.Logger) string {
	upstreamID, ok := h.sessions.Get(clientSession)
	if !ok {
		writeError(w, rpc.ID, http.StatusBadRequest, jsonrpc.CodeServerError, msgUnknownSession)
		return "rejected"
	}

	res, err := h.upstream.Call(r.Context(), rpc, upstreamID)
	if err != nil {
		event.Error().Err(err).Msg("bound call failed")
		writeError(w, rpc.ID, http.StatusInternalServerError, jsonrpc.CodeServerError, err.Error())
		return "error"
	}

	w.Header().Set(upstream.SessionHeader, clientSession)
	writePayload(w, res.Payload)
	return "ok"
}

// writePayload relays the upstream's decoded JSON-RPC response verbatim.
func writePayload(w http.ResponseWriter, payload json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, id json.RawMessage, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.ErrorResponse(id, code, message))
}
