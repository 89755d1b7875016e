package fhir

import (
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/requester"
	"go.uber.org/fx"
)

// Params holds the dependencies of a configured Client
type Params struct {
	fx.In

	Config    *config.FHIRConfig
	Requester *requester.HTTPRequester
}

// NewFromConfig creates a Client for the configured base URL; the requester
// carries the configured token and timeout
func NewFromConfig(p Params) *Client {
	return newClient(p.Config.BaseURL, p.Requester)
}

// Module provides the FHIR client dependencies
var Module = fx.Module("fhir",
	requester.Module,
	fx.Provide(NewFromConfig),
)
