package providers

import (
	"github.com/smallbiznis/cdrbill/internal/providers/carrier"
	"github.com/smallbiznis/cdrbill/internal/providers/email"
	"github.com/smallbiznis/cdrbill/internal/providers/pdf"
	"github.com/smallbiznis/cdrbill/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	carrier.Module,
	email.Module,
	pdf.Module,
	storage.Module,
)
