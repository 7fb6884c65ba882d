package constants

// Broker topology shared by every agentic service. Queue names are the
// literal identifiers the platform provisioned; do not normalize them.
const (
	ExchangeFlows = "agentic.flows"

	QueueIncoming = "agentic:queue:incoming"
	QueueOutgoing = "agentic:queue:outgoing"

	KeyFlowsIncoming = "flows.incoming.v1"
	KeyFlowsOutgoing = "flows.outgoing.v1"
)

// Producer names stamped into message attributes (AppId).
const (
	ProducerGateway  = "agentic-gateway"
	ProducerEngine   = "agentic-engine"
	ProducerDelivery = "agentic-delivery"
)

// Messaging platforms the gateway bridges.
const (
	PlatformWhatsApp = "whatsapp"
	PlatformTelegram = "telegram"
)
