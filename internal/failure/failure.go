// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package failure defines the error taxonomy shared by every stage of the
// guide pipeline. Each failed run is classified into exactly one Kind.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindNone                Kind = ""
	NoDevicesFound          Kind = "no_devices_found"
	SubscriptionRequired    Kind = "subscription_required"
	AccessDenied            Kind = "access_denied"
	TransientNetworkFailure Kind = "transient_network_failure"
	MalformedResponse       Kind = "malformed_response"
	WriteFailure            Kind = "write_failure"
	Canceled                Kind = "canceled"
	Internal                Kind = "internal"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNoDevicesFound          = errors.New("hdhr: no devices found")
	ErrSubscriptionRequired    = errors.New("guide: subscription required")
	ErrAccessDenied            = errors.New("guide: access denied")
	ErrTransientNetworkFailure = errors.New("guide: transient network failure")
	ErrMalformedResponse       = errors.New("guide: malformed response")
	ErrWriteFailure            = errors.New("artifact: write failure")
	ErrCanceled                = errors.New("run canceled")
	ErrInternal                = errors.New("internal error")
)

var sentinels = map[Kind]error{
	NoDevicesFound:          ErrNoDevicesFound,
	SubscriptionRequired:    ErrSubscriptionRequired,
	AccessDenied:            ErrAccessDenied,
	TransientNetworkFailure: ErrTransientNetworkFailure,
	MalformedResponse:       ErrMalformedResponse,
	WriteFailure:            ErrWriteFailure,
	Canceled:                ErrCanceled,
	Internal:                ErrInternal,
}

var defaultHints = map[Kind]string{
	NoDevicesFound:          "check that the tuner is powered on and reachable, or set HDHR_HOST to its address",
	SubscriptionRequired:    "the XMLTV feed needs an active HDHomeRun DVR subscription associated with the discovered devices",
	AccessDenied:            "the legacy guide endpoint refused the request; set HDHR_USE_OFFICIAL_XMLTV=true",
	TransientNetworkFailure: "the guide service was unreachable; the next scheduled run will retry",
	MalformedResponse:       "the guide service returned data that could not be interpreted",
	WriteFailure:            "check that the output directory exists and is writable",
}

// Sentinel returns the sentinel error for k.
func (k Kind) Sentinel() error {
	if s, ok := sentinels[k]; ok {
		return s
	}
	return ErrInternal
}

// Retryable reports whether a failure of this kind may succeed on an
// immediate retry.
func (k Kind) Retryable() bool {
	return k == TransientNetworkFailure
}

// DefaultHint returns the operator-facing remediation text for k.
func (k Kind) DefaultHint() string {
	return defaultHints[k]
}

func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}

// Error is a classified pipeline error carrying operator context.
type Error struct {
	Kind    Kind
	Op      string
	Status  int    // HTTP status, when the failure came from a response
	Devices int    // contributing device count, when known
	Hint    string // remediation text; DefaultHint is used when empty
	Err     error
}

// New wraps err with kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an Error whose cause is a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind.Sentinel())
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Devices > 0 {
		msg = fmt.Sprintf("%s (devices=%d)", msg, e.Devices)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// Remediation returns the explicit hint or the kind default.
func (e *Error) Remediation() string {
	if e.Hint != "" {
		return e.Hint
	}
	return e.Kind.DefaultHint()
}

// WithHint sets the remediation text and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithStatus sets the HTTP status and returns e.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// KindOf classifies err. Context cancellation maps to Canceled and any
// unclassified error to Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	return Internal
}

// HintOf returns the remediation text for err, if any.
func HintOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Remediation()
	}
	return KindOf(err).DefaultHint()
}

// DevicesOf returns the device count recorded on err, or 0.
func DevicesOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Devices
	}
	return 0
}
