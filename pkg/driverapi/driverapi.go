// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package driverapi defines the capability interface a device-kind driver
// implements, modeled directly on the teacher's
// pkg/models.ProtocolDriver: a small, explicit interface rather than a
// type switch over device kinds (§9 "Dynamic dispatch to drivers").
package driverapi

import (
	"context"
	"time"
)

// ProbeResult is the outcome of Driver.Probe (§4.B.1).
type ProbeResult struct {
	Up                   bool
	ControlAddrReachable bool
	LocalIP              string
}

// MethodBudget is the typical/upper-bound timeout pair for one rotation
// method (§4.B).
type MethodBudget struct {
	Typical time.Duration
	Upper   time.Duration
}

// Driver is the capability set a device-kind implementation supplies.
// A concrete driver is registered once per physical device and answers
// SupportedMethods() so the rotation engine can filter a device's
// configured method_preference down to what the driver can actually do.
type Driver interface {
	// Kind identifies which device kind this driver instance serves.
	Kind() string

	// SupportedMethods returns the rotation method names this driver
	// advertises support for (§4.B, §9 capability-set modeling).
	SupportedMethods() []string

	// Probe checks liveness and control-channel reachability. Must
	// complete within a few seconds or return an error; the built-in
	// drivers wrap probe failures as Unreachable.
	Probe(ctx context.Context) (ProbeResult, error)

	// QueryExternalIP asks a well-known echo endpoint, reached through
	// the named local interface, what public IP this device currently
	// exits with. Best-effort: an empty string with a nil error means
	// "unknown", not a hard failure.
	QueryExternalIP(ctx context.Context, iface string) (string, error)

	// Rotate invokes one named method. The context carries the
	// method's upper-bound timeout; Rotate must respect ctx.Done().
	Rotate(ctx context.Context, method string) error
}
