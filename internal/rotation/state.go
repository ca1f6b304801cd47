// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package rotation implements the per-device rotation state machine of
// §4.D: idle → preparing → attempt(method) → verifying → ok | failed |
// aborted, serialized per device and bounded globally by
// max_parallel_rotations.
package rotation

// Outcome reports a rotation attempt's terminal result (§4.D, §4.G
// "force_rotate(id, method?) → {outcome, ip_before, ip_after}").
type Outcome struct {
	DeviceID     string   `json:"device_id"`
	Result       Result   `json:"result"`
	IPBefore     string   `json:"ip_before"`
	IPAfter      string   `json:"ip_after"`
	MethodsTried []string `json:"methods_tried"`
	Err          string   `json:"error,omitempty"`
}

// Result is the terminal state the machine reached.
type Result string

const (
	ResultOK         Result = "ok"
	ResultSoftFailed Result = "soft-failed"
	ResultFailed     Result = "failed"
	ResultAborted    Result = "aborted"
)
