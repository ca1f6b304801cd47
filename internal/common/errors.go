// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy of §7.
type Kind string

const (
	KindNoDeviceAvailable   Kind = "NoDeviceAvailable"
	KindDeviceBusy          Kind = "DeviceBusy"
	KindDeviceOffline       Kind = "DeviceOffline"
	KindAuthRequired        Kind = "AuthRequired"
	KindAuthBad             Kind = "AuthBad"
	KindBindFailed          Kind = "BindFailed"
	KindUpstreamConnFailed  Kind = "UpstreamConnectFailed"
	KindUpstreamTimeout     Kind = "UpstreamTimeout"
	KindRotationBusy        Kind = "RotationBusy"
	KindDriverUnsupported   Kind = "DriverUnsupported"
	KindDriverError         Kind = "DriverError"
	KindTimedOut            Kind = "TimedOut"
	KindUnreachable         Kind = "Unreachable"
	KindPortInUse           Kind = "PortInUse"
	KindNotFound            Kind = "NotFound"
	KindInvalidArgument     Kind = "InvalidArgument"
)

// AppError is the application-level error type carried across package
// boundaries; it knows its taxonomy Kind and the HTTP status the dataplane
// or control surface should answer with, modeled on the teacher's
// common.AppError contract.
type AppError struct {
	kind    Kind
	message string
	cause   error
}

func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{kind: kind, message: message, cause: cause}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) Kind() Kind { return e.kind }

// HTTPStatus maps a Kind to the status code the proxy or control surface
// must return (§7).
func (e *AppError) HTTPStatus() int {
	switch e.kind {
	case KindNoDeviceAvailable, KindDeviceBusy, KindDeviceOffline:
		return http.StatusServiceUnavailable
	case KindAuthRequired, KindAuthBad:
		return http.StatusProxyAuthRequired
	case KindBindFailed, KindUpstreamConnFailed:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument, KindRotationBusy, KindDriverUnsupported, KindPortInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewBadRequestError(message string, cause error) *AppError {
	return NewAppError(KindInvalidArgument, message, cause)
}

func NewServerError(message string, cause error) *AppError {
	return NewAppError(KindDriverError, message, cause)
}

// Wrap annotates err with a message while preserving its cause chain,
// using the teacher's error-wrapping dependency.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// AsAppError extracts an *AppError from err, if any is present in its chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
