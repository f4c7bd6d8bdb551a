package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Counter names.
const (
	EventsAppended = "foreman.events.appended"
	RelayEvents    = "foreman.relay.events"
	RelayErrors    = "foreman.relay.errors"
	AgentSessions  = "foreman.agent.sessions"
	AgentChunks    = "foreman.agent.chunks"
)

var descriptions = map[string]string{
	EventsAppended: "Events appended to the log",
	RelayEvents:    "Events forwarded by the relay",
	RelayErrors:    "Relay event groups that failed",
	AgentSessions:  "Sessions processed by the agent loop, by outcome",
	AgentChunks:    "Runner stream chunks consumed",
}

// Counter returns the named counter from scope. Instrument errors fall back
// to a no-op counter so callers never need to check them.
func Counter(scope, name string) metric.Int64Counter {
	c, err := Meter(scope).Int64Counter(name, metric.WithDescription(descriptions[name]))
	if err != nil {
		nc, _ := metricnoop.NewMeterProvider().Meter(scope).Int64Counter(name)
		return nc
	}
	return c
}
