// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package dataplane

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"

	"github.com/mobilegw/gateway/pkg/device"
)

// relayAbsoluteForm implements the absolute-form HTTP contract of §4.F:
// strip hop-by-hop headers, dial the target via the Interface Binder,
// forward the request, and stream the response back without buffering
// the full body.
func (s *Server) relayAbsoluteForm(ctx context.Context, client net.Conn, req *http.Request, rec *device.Record) (ok bool, bytesIn, bytesOut int64) {
	target := req.URL.Host
	if req.URL.Port() == "" {
		target = net.JoinHostPort(req.URL.Hostname(), "80")
	}

	stripHopByHop(req.Header)
	req.Header.Set("Connection", "close")
	req.RequestURI = ""

	upstream, err := s.dial(ctx, rec, target)
	if err != nil {
		s.writeError(client, err)
		return false, 0, 0
	}
	defer upstream.Close()

	reqBytes := countingWriter{w: upstream}
	if err := req.Write(&reqBytes); err != nil {
		return false, reqBytes.n, 0
	}

	upstreamReader := bufio.NewReader(upstream)
	resp, err := http.ReadResponse(upstreamReader, req)
	if err != nil {
		s.writeError(client, err)
		return false, reqBytes.n, 0
	}
	defer resp.Body.Close()

	stripHopByHop(resp.Header)
	resp.Header.Set("Connection", "close")

	respBytes := countingWriter{w: client}
	if err := resp.Write(&respBytes); err != nil {
		return false, reqBytes.n, respBytes.n
	}
	return true, reqBytes.n, respBytes.n
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
