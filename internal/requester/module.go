package requester

import (
	"net/http"

	"github.com/brizzai/fhir-chart/internal/config"
	"go.uber.org/fx"
)

// Module provides the requester module dependencies
var Module = fx.Options(
	fx.Provide(
		NewHTTPClient,
		NewHTTPRequester,
		fx.Annotate(
			NewBearerAuthFromConfig,
			fx.As(new(AuthManager)),
		),
	),
)

// NewHTTPClient creates the HTTP client used for FHIR reads. A zero timeout
// leaves the transport defaults in place.
func NewHTTPClient(cfg *config.FHIRConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}
