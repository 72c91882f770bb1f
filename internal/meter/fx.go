package meter

import (
	"github.com/veridex/tokenmeter/internal/meter/service"
	"go.uber.org/fx"
)

// Module wires the metering facade.
var Module = fx.Module("meter.service",
	fx.Provide(service.New),
)
