package common

// EventMeta binds one message type to its broker topology.
type EventMeta struct {
	EventType  string // e.g. "flows.outgoing.v1"
	Exchange   string // e.g. "agentic.flows"
	RoutingKey string // e.g. "flows.outgoing.v1"
}
