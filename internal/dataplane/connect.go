// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package dataplane

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/mobilegw/gateway/pkg/device"
)

// relayConnect implements the CONNECT tunnel contract of §4.F and §6:
// dial upstream via the Interface Binder, answer "200 Connection
// established", then copy bytes in both directions until either side
// closes or the tunnel sits idle past tunnel_idle_timeout.
func (s *Server) relayConnect(ctx context.Context, client net.Conn, req *http.Request, rec *device.Record) (ok bool, bytesIn, bytesOut int64) {
	upstream, err := s.dial(ctx, rec, req.Host)
	if err != nil {
		s.writeError(client, err)
		return false, 0, 0
	}
	defer upstream.Close()

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n")); err != nil {
		return false, 0, 0
	}

	bytesOut, bytesIn = s.pipe(client, upstream)
	return true, bytesIn, bytesOut
}

// pipe copies bytes bidirectionally. Each direction resets its own read
// deadline on every read, so a direction that sees no bytes for
// `tunnel_idle_timeout` ends and half-closes its destination (§4.F "Idle
// timeout on established tunnels"); pipe returns once both have ended.
// It returns (clientToUpstream, upstreamToClient) byte counts.
func (s *Server) pipe(client, upstream net.Conn) (toUpstream, toClient int64) {
	upDone := make(chan int64, 1)
	downDone := make(chan int64, 1)

	copyDir := func(dst, src net.Conn, done chan<- int64) {
		buf := make([]byte, s.cfg.Proxy.CopyBufferBytes)
		var n int64
		for {
			src.SetReadDeadline(time.Now().Add(s.cfg.Proxy.TunnelIdleTimeout))
			read, err := src.Read(buf)
			if read > 0 {
				written, werr := dst.Write(buf[:read])
				n += int64(written)
				if werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		if c, ok := dst.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		}
		done <- n
	}

	go copyDir(upstream, client, upDone)
	go copyDir(client, upstream, downDone)

	toUpstream = <-upDone
	toClient = <-downDone
	return toUpstream, toClient
}
