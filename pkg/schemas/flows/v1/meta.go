package flows

import (
	"github.com/agentichq/agentic-events/pkg/constants"
	"github.com/agentichq/agentic-events/pkg/schemas/common"
)

// Broker bindings for flow traffic. All three incoming variants share one
// routing key; the discriminator rides in the body.
var (
	IncomingMeta = common.EventMeta{
		EventType:  constants.KeyFlowsIncoming,
		Exchange:   constants.ExchangeFlows,
		RoutingKey: constants.KeyFlowsIncoming,
	}

	OutgoingMeta = common.EventMeta{
		EventType:  constants.KeyFlowsOutgoing,
		Exchange:   constants.ExchangeFlows,
		RoutingKey: constants.KeyFlowsOutgoing,
	}
)
