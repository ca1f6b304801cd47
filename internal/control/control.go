// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package control implements the admin-facing REST API of §4.G/§6:
// list/get devices, force/test rotation, rotation-config updates,
// dedicated-port management, and a synchronous discovery trigger.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/internal/dataplane"
	"github.com/mobilegw/gateway/internal/logging"
	"github.com/mobilegw/gateway/internal/registry"
	"github.com/mobilegw/gateway/internal/rotation"
	"github.com/mobilegw/gateway/pkg/device"
)

// API wires the registry, rotation engine, discoverer, and dataplane to a
// gorilla/mux router (the teacher's own REST dependency).
type API struct {
	// listenerCtx is the process lifetime context, not a request context:
	// dedicated listeners started from createDedicated must keep running
	// after the HTTP request that created them completes, and must stop
	// on process shutdown rather than leak past it.
	listenerCtx context.Context

	reg *registry.Registry
	eng *rotation.Engine
	dsc *registry.Discoverer
	dp  *dataplane.Server
	lc  *logging.Client
}

func New(ctx context.Context, reg *registry.Registry, eng *rotation.Engine, dsc *registry.Discoverer, dp *dataplane.Server, lc *logging.Client) *API {
	return &API{listenerCtx: ctx, reg: reg, eng: eng, dsc: dsc, dp: dp, lc: lc.With("component", "control-api")}
}

// Router builds the §6 "Control API" route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/devices", a.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}", a.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}/rotate", a.forceRotate).Methods(http.MethodPost)
	r.HandleFunc("/devices/{id}/test-rotation", a.testRotation).Methods(http.MethodPost)
	r.HandleFunc("/devices/{id}/rotation-config", a.setRotationConfig).Methods(http.MethodPut)
	r.HandleFunc("/dedicated/{id}", a.createDedicated).Methods(http.MethodPost)
	r.HandleFunc("/dedicated/{id}", a.removeDedicated).Methods(http.MethodDelete)
	r.HandleFunc("/discover", a.discover).Methods(http.MethodPost)
	return r
}

func (a *API) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.reg.All())
}

func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := a.reg.Get(id)
	if !ok {
		writeError(w, common.NewAppError(common.KindNotFound, "unknown device "+id, nil))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type rotateRequest struct {
	Method string `json:"method"`
}

func (a *API) forceRotate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body rotateRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	outcome, err := a.eng.ForceRotate(r.Context(), id, body.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// testRotation behaves exactly like forceRotate (§4.G "test_rotation(id,
// method) → same shape — does not toggle auto schedule"): it runs the
// same engine call and never touches rotation_config.auto, which only
// setRotationConfig can change. A method is required, since
// test_rotation always targets one named technique.
func (a *API) testRotation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Method == "" {
		writeError(w, common.NewBadRequestError("test-rotation requires a method", err))
		return
	}

	outcome, err := a.eng.ForceRotate(r.Context(), id, body.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) setRotationConfig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var cfg device.RotationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, common.NewBadRequestError("invalid rotation config body", err))
		return
	}
	if err := a.reg.SetRotationConfig(id, cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type createDedicatedRequest struct {
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type createDedicatedResponse struct {
	ListenPort int    `json:"listen_port"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

func (a *API) createDedicated(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body createDedicatedRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, common.NewBadRequestError("invalid dedicated-port request body", err))
		return
	}

	var hash string
	if body.Username != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, common.NewServerError("failed to hash credentials", err))
			return
		}
		hash = string(raw)
	}

	if err := a.reg.CreateDedicated(id, body.Port, body.Username, hash); err != nil {
		writeError(w, err)
		return
	}

	if err := a.dp.StartDedicated(a.listenerCtx, body.Port); err != nil {
		// Roll back the registry binding: a port the dataplane couldn't
		// actually open must not be left reserved (§3 "dedicated").
		_ = a.reg.RemoveDedicated(id)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createDedicatedResponse{
		ListenPort: body.Port,
		Username:   body.Username,
		Password:   body.Password,
	})
}

func (a *API) removeDedicated(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := a.reg.Get(id)
	if !ok {
		writeError(w, common.NewAppError(common.KindNotFound, "unknown device "+id, nil))
		return
	}

	// Stop accepting on the OS port before the registry releases it, so a
	// concurrent create_dedicated on another device can never observe the
	// port as free while this listener is still live (§3 "removing the
	// dedicated binding releases the port before another device may
	// claim it").
	if rec.Dedicated != nil {
		a.dp.StopDedicated(rec.Dedicated.ListenPort)
	}

	if err := a.reg.RemoveDedicated(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// discover triggers one synchronous discovery pass (§4.G "discover()").
func (a *API) discover(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	a.dsc.Scan(ctx)
	writeJSON(w, http.StatusOK, a.reg.All())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if ae, ok := common.AsAppError(err); ok {
		status = ae.HTTPStatus()
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
