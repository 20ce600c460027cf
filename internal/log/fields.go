// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID    = "run_id"
	FieldTraceID  = "trace_id"
	FieldSpanID   = "span_id"
	FieldDeviceID = "device_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldStrategy  = "strategy"
	FieldAttempt   = "attempt"
	FieldDuration  = "duration_ms"

	// Outcome fields
	FieldErrorKind = "error_kind"
	FieldHint      = "hint"
	FieldDevices   = "devices"
	FieldChannels  = "channels"
	FieldEntries   = "entries"
	FieldDropped   = "dropped"
	FieldBytes     = "bytes"

	// Path / URL fields
	FieldPath = "path"
	FieldHost = "host"
	FieldURL  = "url"
)
