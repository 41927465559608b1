// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package upstream issues JSON-RPC calls to the upstream MCP endpoint and
// decodes its stream-framed response bodies. Session affinity is carried in
// the Mcp-Session-Id header; the client never synthesizes a session id, it
// only relays what the upstream issued.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-session-proxy/pkg/auth"
	"github.com/go-core-stack/mcp-session-proxy/pkg/config"
	"github.com/go-core-stack/mcp-session-proxy/pkg/jsonrpc"
	"github.com/go-core-stack/mcp-session-proxy/pkg/stream"
)

// SessionHeader is the MCP session affinity header, on both sides of the
// proxy: inbound it carries proxy session ids, outbound upstream ones.
const SessionHeader = "Mcp-Session-Id"

// Result carries the outcome of a successful upstream call.
type Result struct {
	// SessionID is the upstream session id: the response header value when
	// present, else the id the call was bound to, else empty.
	SessionID string
	// Payload is the JSON document decoded from the stream-framed body.
	Payload json.RawMessage
}

// StatusError reports a non-success upstream HTTP status together with the
// raw response body.
type StatusError struct {
	Status int
	Body   string
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// Client performs JSON-RPC calls against a fixed upstream endpoint.
type Client struct {
	endpoint string
	client   *http.Client
	signer   *auth.Signer
	logger   zerolog.Logger
}

// New constructs a Client backed by an http.Client with pooled connections.
// A zero RequestTimeout waits indefinitely for the upstream; callers impose
// their own deadlines through the request context if they need one.
func New(cfg config.Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
		},
	}

	return &Client{
		endpoint: cfg.Upstream.String(),
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		signer: auth.NewSigner(cfg.APIKey, cfg.APISecret),
		logger: log.With().Str("component", "upstream").Logger(),
	}
}

// Call POSTs the JSON-RPC request to the upstream endpoint, bound to
// sessionID when non-empty, and returns the upstream session id together with
// the decoded payload. Failures are never retried; transport errors,
// non-success statuses, and decode failures all surface to the caller.
func (c *Client) Call(ctx context.Context, rpc jsonrpc.Request, sessionID string) (Result, error) {
	body, err := json.Marshal(rpc)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	if c.signer.Enabled() {
		if err := c.signer.Sign(req); err != nil {
			return Result{}, fmt.Errorf("sign request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("perform upstream request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error().Err(closeErr).Msg("close upstream response body failed")
		}
	}()

	// The whole body is read regardless of status; error responses carry the
	// upstream's diagnostic text.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read upstream response body: %w", err)
	}

	c.logger.Debug().
		Str("rpc_method", rpc.Method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream call completed")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	payload, err := stream.Decode(string(raw))
	if err != nil {
		return Result{}, fmt.Errorf("decode upstream response: %w", err)
	}

	resolved := resp.Header.Get(SessionHeader)
	if resolved == "" {
		resolved = sessionID
	}

	return Result{SessionID: resolved, Payload: payload}, nil
}
