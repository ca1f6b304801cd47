// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package dataplane implements the forward-proxy HTTP and CONNECT
// relay of §4.F: one shared listener and N dedicated listeners, every
// upstream socket bound to the selected device's interface via
// internal/binder.
package dataplane

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mobilegw/gateway/internal/binder"
	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/dispatcher"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/pkg/device"
)

// Server accepts forward-proxy connections on the shared port and on
// every dedicated port, relaying each through the device the
// dispatcher selects.
type Server struct {
	reg  *registry.Registry
	disp *dispatcher.Dispatcher
	cfg  *common.Config
	lc   *logging.Client

	mu        sync.Mutex
	dedicated map[int]dedicatedListener
}

type dedicatedListener struct {
	ln     net.Listener
	cancel context.CancelFunc
}

func New(reg *registry.Registry, disp *dispatcher.Dispatcher, cfg *common.Config, lc *logging.Client) *Server {
	return &Server{
		reg:       reg,
		disp:      disp,
		cfg:       cfg,
		lc:        lc.With("component", "dataplane"),
		dedicated: make(map[int]dedicatedListener),
	}
}

// ServeShared listens on the shared forward-proxy port until ctx is
// cancelled.
func (s *Server) ServeShared(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Proxy.Port))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.acceptLoop(ctx, ln, s.cfg.Proxy.Port, nil)
	return nil
}

// StartDedicated binds a dedicated listener on port and serves it in the
// background until parentCtx is cancelled or StopDedicated(port) is
// called, whichever comes first (§4.G "create_dedicated" / "remove_dedicated").
// It binds synchronously so a port already in use on the host is reported
// to the caller immediately, rather than only surfacing in a log line
// after create_dedicated has already returned 201.
func (s *Server) StartDedicated(parentCtx context.Context, port int) error {
	s.mu.Lock()
	if _, running := s.dedicated[port]; running {
		s.mu.Unlock()
		return common.NewAppError(common.KindPortInUse, "dedicated listener already running on port "+strconv.Itoa(port), nil)
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return common.NewAppError(common.KindPortInUse, "failed to bind dedicated port "+strconv.Itoa(port), err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.mu.Lock()
	s.dedicated[port] = dedicatedListener{ln: ln, cancel: cancel}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.acceptLoop(ctx, ln, port, &port)
	return nil
}

// StopDedicated stops the dedicated listener on port, if one is running,
// and closes its OS socket synchronously before returning (§3 invariant:
// "removing the dedicated binding releases the port before another device
// may claim it" — callers must be able to rely on the port being free the
// moment this returns, not at some later point after a goroutine gets
// scheduled). A no-op if no listener is running there.
func (s *Server) StopDedicated(port int) {
	s.mu.Lock()
	dl, running := s.dedicated[port]
	delete(s.dedicated, port)
	s.mu.Unlock()
	if !running {
		return
	}
	dl.ln.Close()
	dl.cancel()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, port int, dedicatedPort *int) {
	s.lc.With("port", port).Info("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.lc.Warn("accept failed: " + err.Error())
				continue
			}
		}
		go s.handle(ctx, conn, dedicatedPort)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, dedicatedPort *int) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}

	rec, err := s.selectDevice(ctx, req, dedicatedPort)
	if err != nil {
		s.writeError(conn, err)
		return
	}

	start := time.Now()
	var ok bool
	var bytesIn, bytesOut int64

	if req.Method == http.MethodConnect {
		ok, bytesIn, bytesOut = s.relayConnect(ctx, conn, req, rec)
	} else {
		ok, bytesIn, bytesOut = s.relayAbsoluteForm(ctx, conn, req, rec)
	}

	s.reg.AddCounters(rec.DeviceID, ok, bytesIn, bytesOut, float64(time.Since(start).Milliseconds()))
}

// selectDevice resolves which device serves this connection: dedicated
// port binding, then the X-Proxy-Device-ID hard pin, then shared-pool
// selection (§4.E, §4.F "Device hint").
func (s *Server) selectDevice(ctx context.Context, req *http.Request, dedicatedPort *int) (*device.Record, error) {
	if dedicatedPort != nil {
		rec, err := s.disp.SelectDedicated(ctx, *dedicatedPort, s.cfg.Proxy.BusyWait)
		if err != nil {
			return nil, err
		}
		if err := s.checkDedicatedAuth(req, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if pinned := req.Header.Get(common.DeviceHintHeader); pinned != "" {
		// A pin waits up to busy_wait for the device, as a dedicated port does.
		deadline := time.Now().Add(s.cfg.Proxy.BusyWait)
		for {
			rec, ok := s.reg.Get(pinned)
			if !ok {
				return nil, common.NewAppError(common.KindNotFound, "pinned device not found", nil)
			}
			if rec.Eligible() {
				return rec, nil
			}
			if time.Now().After(deadline) {
				kind := common.KindDeviceOffline
				if rec.Status == common.StatusBusy {
					kind = common.KindDeviceBusy
				}
				return nil, common.NewAppError(kind, "pinned device not eligible", nil)
			}
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return s.disp.SelectShared(ctx, s.cfg.Proxy.Strategy, clientHost(req))
}

func clientHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// checkDedicatedAuth enforces Basic Proxy-Authorization against the
// device's stored credentials (§4.E "MAY require Basic
// Proxy-Authorization").
func (s *Server) checkDedicatedAuth(req *http.Request, rec *device.Record) error {
	if rec.Dedicated == nil || rec.Dedicated.Username == "" {
		return nil
	}

	user, pass, ok := parseProxyAuth(req.Header.Get("Proxy-Authorization"))
	if !ok {
		return common.NewAppError(common.KindAuthRequired, "missing Proxy-Authorization", nil)
	}
	if user != rec.Dedicated.Username {
		return common.NewAppError(common.KindAuthBad, "bad credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.Dedicated.PasswordHash), []byte(pass)); err != nil {
		return common.NewAppError(common.KindAuthBad, "bad credentials", nil)
	}
	return nil
}

func (s *Server) writeError(conn net.Conn, err error) {
	status := http.StatusInternalServerError
	headers := ""
	if ae, ok := common.AsAppError(err); ok {
		status = ae.HTTPStatus()
		if ae.Kind() == common.KindAuthRequired || ae.Kind() == common.KindAuthBad {
			headers = "Proxy-Authenticate: Basic realm=\"proxy\"\r\n"
		}
	}
	resp := "HTTP/1.1 " + strconv.Itoa(status) + " " + http.StatusText(status) + "\r\n" + headers + "Connection: close\r\n\r\n"
	_, _ = conn.Write([]byte(resp))
}

// dial builds an Interface Binder for the selected device and connects
// to address (§4.A, §4.F).
func (s *Server) dial(ctx context.Context, rec *device.Record, address string) (net.Conn, error) {
	b := binder.New(rec.Interface, s.cfg.Proxy.ConnectTimeout).AsUpstream()
	return b.DialContext(ctx, "tcp", address)
}
