package handlers

import (
	"github.com/tokengate/tokengate/internal/gateway"
	"github.com/tokengate/tokengate/internal/pricing"
	"github.com/tokengate/tokengate/internal/relay"
	"github.com/tokengate/tokengate/internal/settle"
)

// Routes self-register in init(); the services they call are injected here
// before the engine starts serving.
var (
	calculator *pricing.Calculator
	payGateway *gateway.Gateway
	settler    *settle.Orchestrator
	relaySvc   *relay.Relay
)

func Setup(c *pricing.Calculator, g *gateway.Gateway, s *settle.Orchestrator, r *relay.Relay) {
	calculator = c
	payGateway = g
	settler = s
	relaySvc = r
}
