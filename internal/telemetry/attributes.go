// SPDX-License-Identifier: MIT
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on pipeline spans.
const (
	RunIDKey     = "run.id"
	StrategyKey  = "guide.strategy"
	DevicesKey   = "guide.devices"
	ChannelsKey  = "guide.channels"
	EntriesKey   = "guide.entries"
	DroppedKey   = "guide.dropped"
	BytesKey     = "artifact.bytes"
	PathKey      = "artifact.path"
	ErrorKindKey = "error.kind"
	ErrorHintKey = "error.hint"
)

// GuideAttributes describes the document produced by a run.
func GuideAttributes(strategy string, devices, channels, entries, dropped int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StrategyKey, strategy),
		attribute.Int(DevicesKey, devices),
		attribute.Int(ChannelsKey, channels),
		attribute.Int(EntriesKey, entries),
		attribute.Int(DroppedKey, dropped),
	}
}

// RecordError marks span as failed with a classified error.
func RecordError(span trace.Span, err error, kind, hint string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	attrs := []attribute.KeyValue{attribute.String(ErrorKindKey, kind)}
	if hint != "" {
		attrs = append(attrs, attribute.String(ErrorHintKey, hint))
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, kind)
}
