package telemetry

import "go.opentelemetry.io/otel/attribute"

// Metric label keys. Values must stay low-cardinality: route patterns, not
// raw paths; result and kind constants, not free text.
const (
	keyMethod = attribute.Key("method")
	keyRoute  = attribute.Key("route")
	keyStatus = attribute.Key("status")
	keyResult = attribute.Key("result")
	keyLayer  = attribute.Key("layer")
	keyKind   = attribute.Key("kind")
)
