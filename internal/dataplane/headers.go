// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package dataplane

import (
	"net/http"

	"github.com/mobilegw/gateway/internal/common"
)

// hopByHop lists every header stripped on both inbound and outbound legs
// of the relay (§4.F "Hop-by-hop header list").
var hopByHop = []string{
	"Proxy-Authorization",
	"Proxy-Authenticate",
	"Proxy-Connection",
	"Connection",
	"Keep-Alive",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	common.DeviceHintHeader,
}

// stripHopByHop removes the fixed hop-by-hop set, plus any headers
// listed in the request's own Connection header (RFC 7230 §6.1).
func stripHopByHop(h http.Header) {
	for _, extra := range h.Values("Connection") {
		h.Del(extra)
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}
