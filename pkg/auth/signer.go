// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package auth signs outbound upstream requests with the HMAC headers expected
// by gateway-protected MCP deployments. Signing is optional; a signer without
// credentials reports itself disabled and the upstream client skips it.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderAPIKey    = "x-api-key-id"
	HeaderSignature = "x-signature"
	HeaderTimestamp = "x-timestamp"
)

// Signer computes HMAC-SHA256 signatures over the request method, target path,
// and a timestamp.
type Signer struct {
	Key    string
	Secret string
	// Now is swappable by tests so signatures can be asserted.
	Now func() time.Time
}

// NewSigner constructs a signer with the provided credentials.
func NewSigner(key, secret string) *Signer {
	return &Signer{
		Key:    key,
		Secret: secret,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Enabled reports whether credentials are configured.
func (s *Signer) Enabled() bool {
	return s != nil && s.Key != "" && s.Secret != ""
}

// Sign mutates the request by injecting auth headers computed from the method,
// target path, and current timestamp.
func (s *Signer) Sign(req *http.Request) error {
	if !s.Enabled() {
		return fmt.Errorf("signer key and secret must be set")
	}

	timestamp := s.Now().Format(time.RFC3339)

	payload := strings.Join([]string{
		req.Method,
		req.URL.Path,
		timestamp,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(s.Secret))
	if _, err := mac.Write([]byte(payload)); err != nil {
		return fmt.Errorf("compute signature: %w", err)
	}

	req.Header.Set(HeaderAPIKey, s.Key)
	req.Header.Set(HeaderSignature, hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set(HeaderTimestamp, timestamp)

	return nil
}
