// SPDX-License-Identifier: Apache-2.0

package dataplane

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/dispatcher"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/internal/store"
)

func TestStripHopByHop_RemovesFixedSetAndConnectionTokens(t *testing.T) {
	h := http.Header{}
	h.Set("Proxy-Authorization", "Basic xxx")
	h.Set("Connection", "X-Custom")
	h.Set("X-Custom", "should-go")
	h.Set("X-End-To-End", "keep-me")
	h.Set(common.DeviceHintHeader, "android_ABC")

	stripHopByHop(h)

	assert.Empty(t, h.Get("Proxy-Authorization"))
	assert.Empty(t, h.Get("Connection"))
	assert.Empty(t, h.Get("X-Custom"))
	assert.Empty(t, h.Get(common.DeviceHintHeader))
	assert.Equal(t, "keep-me", h.Get("X-End-To-End"))
}

func TestParseProxyAuth(t *testing.T) {
	user, pass, ok := parseProxyAuth("Basic dXNlcjpwYXNz")
	require.True(t, ok)
	assert.Equal(t, "user", user)
	assert.Equal(t, "pass", pass)

	_, _, ok = parseProxyAuth("")
	assert.False(t, ok)

	_, _, ok = parseProxyAuth("Bearer abc")
	assert.False(t, ok)
}

func TestWriteError_AuthRequiredIncludesChallenge(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	s := &Server{}
	go s.writeError(server, common.NewAppError(common.KindAuthRequired, "missing creds", nil))

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusProxyAuthRequired, resp.StatusCode)
	assert.Equal(t, `Basic realm="proxy"`, resp.Header.Get("Proxy-Authenticate"))
}

func newTestServer() *Server {
	cfg := common.Defaults()
	lc := logging.NewClient("test", "error", "")
	reg := registry.New(cfg, lc, store.NewMemoryStore())
	disp := dispatcher.New(reg, cfg, lc)
	return New(reg, disp, cfg, lc)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestStartDedicated_AcceptsThenStopFreesPort(t *testing.T) {
	s := newTestServer()
	port := freePort(t)

	require.NoError(t, s.StartDedicated(context.Background(), port))

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	require.NoError(t, err)
	conn.Close()

	s.StopDedicated(port)

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	require.NoError(t, err, "port must be free immediately after StopDedicated returns")
	ln.Close()
}

func TestStartDedicated_RejectsDuplicatePort(t *testing.T) {
	s := newTestServer()
	port := freePort(t)

	require.NoError(t, s.StartDedicated(context.Background(), port))
	defer s.StopDedicated(port)

	err := s.StartDedicated(context.Background(), port)
	assert.Error(t, err)
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, common.KindPortInUse, ae.Kind())
}

func TestStopDedicated_UnknownPortIsNoop(t *testing.T) {
	s := newTestServer()
	assert.NotPanics(t, func() { s.StopDedicated(freePort(t)) })
}
