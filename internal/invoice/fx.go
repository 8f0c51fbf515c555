package invoice

import (
	"github.com/smallbiznis/cdrbill/internal/invoice/service"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(func(c *carrier.Client) service.Carrier { return c }),
	fx.Provide(service.NewService),
)
