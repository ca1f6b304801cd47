// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package driver re-exports the driverapi.Driver contract for internal
// callers and holds the registry of built-in driver constructors keyed by
// device kind (§4.B).
package driver

import (
	"github.com/mobilegw/gateway/internal/common"
	"github.com/mobilegw/gateway/pkg/driverapi"
)

// Driver is the per-device capability set; see pkg/driverapi for the
// full contract.
type Driver = driverapi.Driver

// ProbeResult is re-exported for callers that only import this package.
type ProbeResult = driverapi.ProbeResult

// Budgets returns the per-method typical/upper-bound timeout table,
// seeded from config and falling back to the spec's §4.B defaults for
// any method not present in cfg.
func Budgets(cfg map[string]common.MethodBudget) map[common.Method]driverapi.MethodBudget {
	out := make(map[common.Method]driverapi.MethodBudget, len(cfg))
	for name, b := range cfg {
		out[common.Method(name)] = driverapi.MethodBudget{Typical: b.Typical, Upper: b.Upper}
	}
	for name, b := range common.Defaults().Methods {
		if _, ok := out[common.Method(name)]; !ok {
			out[common.Method(name)] = driverapi.MethodBudget{Typical: b.Typical, Upper: b.Upper}
		}
	}
	return out
}

// SupportsMethod reports whether d advertises support for method.
func SupportsMethod(d Driver, method common.Method) bool {
	for _, m := range d.SupportedMethods() {
		if common.Method(m) == method {
			return true
		}
	}
	return false
}

// FilterPreference returns the subset of preference that d supports, in
// preference order (§4.D "preparing": "method_preference filtered by the
// driver's advertised support").
func FilterPreference(d Driver, preference []string) []common.Method {
	out := make([]common.Method, 0, len(preference))
	for _, p := range preference {
		if SupportsMethod(d, common.Method(p)) {
			out = append(out, common.Method(p))
		}
	}
	return out
}
