// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy implements the session-translating JSON-RPC endpoint that
// fronts the upstream MCP server. It classifies each inbound request as
// malformed, notification, initialize, or bound call, maps proxy session
// identifiers to upstream ones through the session table, and converts every
// internal failure into an in-band JSON-RPC error so clients never see raw
// upstream session ids or transport errors.
package proxy
