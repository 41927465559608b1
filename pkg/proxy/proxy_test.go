// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-core-stack/mcp-session-proxy/pkg/jsonrpc"
	"github.com/go-core-stack/mcp-session-proxy/pkg/session"
	"github.com/go-core-stack/mcp-session-proxy/pkg/upstream"
)

// fakeCaller records upstream calls and answers them through fn.
type fakeCaller struct {
	calls []recordedCall
	fn    func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error)
}

type recordedCall struct {
	rpc       jsonrpc.Request
	sessionID string
}

func (f *fakeCaller) Call(ctx context.Context, rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
	f.calls = append(f.calls, recordedCall{rpc: rpc, sessionID: sessionID})
	return f.fn(rpc, sessionID)
}

func newTestHandler(t *testing.T, fn func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error)) (*Handler, *session.Table, *fakeCaller) {
	t.Helper()
	table := session.New(0, 0)
	t.Cleanup(table.Close)
	caller := &fakeCaller{fn: fn}
	return New(table, caller), table, caller
}

func post(h *Handler, body, sessionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "http://proxy/mcp", strings.NewReader(body))
	if sessionID != "" {
		req.Header.Set(upstream.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) jsonrpc.Response {
	t.Helper()
	var resp jsonrpc.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if resp.Error == nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	return resp
}

func TestMalformedRequestsRejected(t *testing.T) {
	h, _, caller := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{}, errors.New("must not be called")
	})

	cases := map[string]string{
		"not json":          `{{{`,
		"array":             `[1,2]`,
		"string":            `"hello"`,
		"missing method":    `{"jsonrpc":"2.0","id":1}`,
		"non-string method": `{"jsonrpc":"2.0","id":1,"method":7}`,
	}

	for name, body := range cases {
		rec := post(h, body, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
			continue
		}
		resp := decodeError(t, rec)
		if resp.Error.Code != jsonrpc.CodeInvalidRequest {
			t.Errorf("%s: code = %d, want %d", name, resp.Error.Code, jsonrpc.CodeInvalidRequest)
		}
	}

	if len(caller.calls) != 0 {
		t.Fatalf("malformed requests reached the upstream: %d calls", len(caller.calls))
	}
}

func TestInitializeEstablishesSession(t *testing.T) {
	payload := `{"jsonrpc":"2.0","id":1,"result":{"serverInfo":{"name":"up"}}}`
	h, _, caller := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		if sessionID != "" {
			t.Errorf("initialize must be unbound, got session %q", sessionID)
		}
		return upstream.Result{SessionID: "U1", Payload: json.RawMessage(payload)}, nil
	})

	rec := post(h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	proxyID := rec.Header().Get(upstream.SessionHeader)
	if proxyID == "" {
		t.Fatal("missing proxy session header")
	}
	if proxyID == "U1" {
		t.Fatal("proxy must never expose the upstream session id")
	}
	if got := rec.Body.String(); got != payload {
		t.Fatalf("payload not relayed verbatim: %s", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	// The proxy id round-trips to the upstream session captured at
	// initialize time.
	rec2 := post(h, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{}}`, proxyID)
	if rec2.Code != http.StatusOK {
		t.Fatalf("bound call status = %d, want 200", rec2.Code)
	}
	last := caller.calls[len(caller.calls)-1]
	if last.sessionID != "U1" {
		t.Fatalf("bound call forwarded session %q, want U1", last.sessionID)
	}
	if got := rec2.Header().Get(upstream.SessionHeader); got != proxyID {
		t.Fatalf("bound call echoed %q, want %q", got, proxyID)
	}
}

func TestInitializeIssuesDistinctIDs(t *testing.T) {
	h, _, _ := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{SessionID: "U1", Payload: json.RawMessage(`{}`)}, nil
	})

	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		rec := post(h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, "")
		id := rec.Header().Get(upstream.SessionHeader)
		if _, dup := seen[id]; dup {
			t.Fatalf("proxy session id repeated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestInitializeWithoutUpstreamSession(t *testing.T) {
	h, table, _ := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{SessionID: "", Payload: json.RawMessage(`{}`)}, nil
	})

	rec := post(h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Code != jsonrpc.CodeServerError {
		t.Fatalf("code = %d, want %d", resp.Error.Code, jsonrpc.CodeServerError)
	}
	if resp.Error.Message != "Upstream did not return session id" {
		t.Fatalf("unexpected message: %q", resp.Error.Message)
	}
	if table.Len() != 0 {
		t.Fatal("failed initialize must not create a mapping")
	}
}

func TestBoundCallWithUnknownSession(t *testing.T) {
	h, _, caller := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{}, errors.New("must not be called")
	})

	for _, sid := range []string{"", "P9"} {
		rec := post(h, `{"jsonrpc":"2.0","id":3,"method":"tools/list","params":{}}`, sid)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("session %q: status = %d, want 400", sid, rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.Error.Code != jsonrpc.CodeServerError {
			t.Fatalf("session %q: code = %d", sid, resp.Error.Code)
		}
		if resp.Error.Message != "Missing or unknown Mcp-Session-Id. Call initialize first." {
			t.Fatalf("unexpected message: %q", resp.Error.Message)
		}
		if string(resp.ID) != "3" {
			t.Fatalf("error must mirror request id, got %s", resp.ID)
		}
	}

	if len(caller.calls) != 0 {
		t.Fatalf("unresolved bound calls reached the upstream: %d", len(caller.calls))
	}
}

func TestNotificationWithoutSession(t *testing.T) {
	h, _, caller := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{}, errors.New("must not be called")
	})

	rec := post(h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "P9")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	if len(caller.calls) != 0 {
		t.Fatalf("notification without session must not reach upstream, got %d calls", len(caller.calls))
	}
}

func TestNotificationWithKnownSession(t *testing.T) {
	h, table, caller := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{SessionID: sessionID, Payload: json.RawMessage(`{}`)}, nil
	})
	table.Put("P1", "U1")

	rec := post(h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "P1")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	if got := rec.Header().Get(upstream.SessionHeader); got != "P1" {
		t.Fatalf("expected proxy session echoed, got %q", got)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", len(caller.calls))
	}
	if caller.calls[0].sessionID != "U1" {
		t.Fatalf("notification bound to %q, want U1", caller.calls[0].sessionID)
	}
}

func TestUpstreamFailureBecomesServerError(t *testing.T) {
	h, table, _ := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{}, &upstream.StatusError{Status: http.StatusBadGateway, Body: "boom"}
	})
	table.Put("P1", "U1")

	rec := post(h, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`, "P1")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Code != jsonrpc.CodeServerError {
		t.Fatalf("code = %d, want %d", resp.Error.Code, jsonrpc.CodeServerError)
	}
	if !strings.Contains(resp.Error.Message, "502") {
		t.Fatalf("expected upstream status in message, got %q", resp.Error.Message)
	}

	// A failed call must not corrupt the table.
	if got, ok := table.Get("P1"); !ok || got != "U1" {
		t.Fatal("session mapping lost after failed call")
	}
}

func TestSessionHeaderIsCaseInsensitive(t *testing.T) {
	h, table, _ := newTestHandler(t, func(rpc jsonrpc.Request, sessionID string) (upstream.Result, error) {
		return upstream.Result{SessionID: sessionID, Payload: json.RawMessage(`{}`)}, nil
	})
	table.Put("P1", "U1")

	req := httptest.NewRequest(http.MethodPost, "http://proxy/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":5,"method":"tools/list","params":{}}`))
	req.Header.Set("mcp-session-id", "P1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
