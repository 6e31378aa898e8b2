package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g. "cycle_check", "definition_validated")
//   - Attributes: graph id, node id, and all event.Meta fields
//   - Status: error if event.Meta["error"] is present
//
// Validation events represent points in time rather than durations, so
// the span is ended immediately after creation.
//
// Usage:
//
//	tracer := otel.Tracer("taskgraph-go")
//	emitter := emit.NewOTelEmitter(tracer)
//	validator := dag.NewValidator(view, emitter, dag.Options{})
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter backed by the given tracer,
// typically obtained from otel.Tracer("service-name").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends an OpenTelemetry span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	if event.GraphID != "" {
		span.SetAttributes(attribute.String("graph.id", event.GraphID))
	}
	if event.NodeID != "" {
		span.SetAttributes(attribute.String("node.id", event.NodeID))
	}

	for key, value := range event.Meta {
		span.SetAttributes(metaAttribute(key, value))
	}

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, fmt.Sprintf("%v", errVal))
	}
}

// metaAttribute converts a metadata value to a typed span attribute,
// falling back to its string representation.
func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
