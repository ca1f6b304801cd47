// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/dataplane"
	"github.com/mobilegw/gateway/internal/dispatcher"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/internal/rotation"
	"github.com/mobilegw/gateway/internal/store"
	"github.com/mobilegw/gateway/pkg/device"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

type stubDriver struct{}

func (stubDriver) Kind() string               { return "android_usb" }
func (stubDriver) SupportedMethods() []string { return []string{"data_toggle"} }
func (stubDriver) Probe(ctx context.Context) (driverapi.ProbeResult, error) {
	return driverapi.ProbeResult{Up: true}, nil
}
func (stubDriver) QueryExternalIP(ctx context.Context, iface string) (string, error) {
	return "5.5.5.5", nil
}
func (stubDriver) Rotate(ctx context.Context, method string) error { return nil }

func newTestAPI(t *testing.T) *API {
	cfg := common.Defaults()
	cfg.Rotation.VerifyAttempts = 1
	cfg.Rotation.PostDelay = 5 * time.Millisecond
	cfg.Rotation.VerifyBackoff = 5 * time.Millisecond
	lc := logging.NewClient("test", "error", "")
	reg := registry.New(cfg, lc, store.NewMemoryStore())
	reg.Insert(&device.Record{DeviceID: "d1", ExternalIP: "1.1.1.1"}, stubDriver{})
	reg.SetStatus("d1", common.StatusOnline)

	eng := rotation.New(reg, cfg, lc)
	dsc := registry.NewDiscoverer(reg, nil, "/nonexistent-glob-*")
	disp := dispatcher.New(reg, cfg, lc)
	dp := dataplane.New(reg, disp, cfg, lc)
	return New(context.Background(), reg, eng, dsc, dp, lc)
}

func TestListDevices(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var devices []device.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "d1", devices[0].DeviceID)
}

func TestGetDevice_NotFound(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/devices/nope", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetRotationConfig_RoundTrips(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(device.RotationConfig{IntervalSeconds: 600, Auto: true, MethodPreference: []string{"data_toggle"}})

	req := httptest.NewRequest(http.MethodPut, "/devices/d1/rotation-config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/devices/d1", nil)
	getW := httptest.NewRecorder()
	api.Router().ServeHTTP(getW, getReq)

	var rec device.Record
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &rec))
	assert.Equal(t, 600, rec.RotationConfig.IntervalSeconds)
	assert.True(t, rec.RotationConfig.Auto)
}

func TestCreateAndRemoveDedicated(t *testing.T) {
	api := newTestAPI(t)

	// Let the OS assign a free ephemeral port up front so the test never
	// collides with something else already listening on the host.
	probe, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	require.NoError(t, probe.Close())

	body, _ := json.Marshal(createDedicatedRequest{Port: port, Username: "u", Password: "p"})
	req := httptest.NewRequest(http.MethodPost, "/dedicated/d1", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// create_dedicated must have actually opened a listening socket, not
	// just persisted the binding in the registry.
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), time.Second)
	require.NoError(t, err, "dedicated listener must be accepting connections after create_dedicated")
	conn.Close()

	delReq := httptest.NewRequest(http.MethodDelete, "/dedicated/d1", nil)
	delW := httptest.NewRecorder()
	api.Router().ServeHTTP(delW, delReq)
	assert.Equal(t, http.StatusNoContent, delW.Code)

	// remove_dedicated must release the OS port: a direct bind should now
	// succeed, proving no listener is left running on it.
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	require.NoError(t, err, "port must be free immediately after remove_dedicated")
	ln.Close()
}

func TestTestRotation_RequiresMethod(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/devices/d1/test-rotation", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestForceRotate_ChangesIP(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(rotateRequest{Method: "data_toggle"})
	req := httptest.NewRequest(http.MethodPost, "/devices/d1/rotate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var outcome rotation.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, rotation.ResultOK, outcome.Result)
	assert.Equal(t, "5.5.5.5", outcome.IPAfter)
}
