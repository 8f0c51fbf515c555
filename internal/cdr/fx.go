package cdr

import (
	"github.com/smallbiznis/cdrbill/internal/cdr/repository"
	"github.com/smallbiznis/cdrbill/internal/cdr/service"
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"go.uber.org/fx"
)

var Module = fx.Module("cdr.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *carrier.Client) service.Carrier { return c }),
	fx.Provide(service.New),
)
