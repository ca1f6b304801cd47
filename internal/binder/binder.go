// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package binder implements the Interface Binder (§4.A): a dialer whose
// outbound TCP sockets are bound to a named local network interface, so
// traffic egresses via a specific cellular path. Binding happens at
// socket level via SO_BINDTODEVICE, the same technique the pack's
// tunneling code (psiphon-tunnel-core's DeviceBinder, and the raw-socket
// Control-callback pattern used elsewhere in the corpus) uses to keep
// connections off the wrong interface.
package binder

import (
	"context"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mobilegw/gateway/internal/common"
)

// Binder dials outbound TCP connections bound to one named interface.
// DNS resolution is unaffected — only the TCP connect is constrained, per
// spec §4.A.
type Binder struct {
	iface   string
	timeout time.Duration

	// timeoutKind/failKind classify a failed DialContext. They default to
	// the generic internal kinds (used by drivers dialing out on their own
	// behalf, e.g. echoip's external-IP query) and are switched to the
	// upstream-facing kinds by AsUpstream for the dataplane's own dials,
	// so the control/proxy surface can tell "we couldn't reach our own
	// modem" apart from "the modem's upstream didn't answer" (§7).
	timeoutKind common.Kind
	failKind    common.Kind
}

// New returns a Binder for the given interface name and connect timeout.
func New(iface string, timeout time.Duration) *Binder {
	return &Binder{iface: iface, timeout: timeout, timeoutKind: common.KindTimedOut, failKind: common.KindBindFailed}
}

// AsUpstream marks this Binder's dials as proxying to an upstream host on
// the client's behalf (§6 "504 on upstream connect timeout", §7
// "UpstreamTimeout"/"UpstreamConnectFailed"), rather than a driver's own
// internal control-plane dial.
func (b *Binder) AsUpstream() *Binder {
	b.timeoutKind = common.KindUpstreamTimeout
	b.failKind = common.KindUpstreamConnFailed
	return b
}

// DialContext connects to address (host:port), with the socket bound to
// the Binder's interface. Each call uses a fresh socket — pooling across
// devices is never performed (§4.A "pool entries MUST NOT cross devices").
func (b *Binder) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	dialer := &net.Dialer{
		Control: func(_, _ string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, b.iface)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, common.NewAppError(b.timeoutKind, "dial timed out on interface "+b.iface, err)
		}
		return nil, common.NewAppError(b.failKind, "bind/dial failed on interface "+b.iface, err)
	}
	return conn, nil
}

// Dial is the context-less convenience form.
func (b *Binder) Dial(network, address string) (net.Conn, error) {
	return b.DialContext(context.Background(), network, address)
}

// Interface returns the bound interface name.
func (b *Binder) Interface() string { return b.iface }
