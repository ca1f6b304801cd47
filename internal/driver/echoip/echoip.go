// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package echoip implements the shared query_external_ip behavior every
// driver needs (§4.B.2): GET a well-known echo endpoint through the
// Interface Binder and read back the caller's public IP. Any failure (bind,
// dial, request or body read) is returned as an error with an empty IP;
// callers treat the lookup as best-effort.
package echoip

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mobilegw/gateway/internal/binder"
)

// DefaultEndpoint is the well-known external-IP echo service queried
// through the device's bound interface.
const DefaultEndpoint = "https://api.ipify.org"

// Query dials out through iface and returns the trimmed response body of
// endpoint, which must return a bare IP string. An empty endpoint uses
// DefaultEndpoint.
func Query(ctx context.Context, client *http.Client, iface, endpoint string) (string, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	b := binder.New(iface, 5*time.Second)
	transport := &http.Transport{DialContext: b.DialContext}

	c := *client
	c.Transport = transport

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
