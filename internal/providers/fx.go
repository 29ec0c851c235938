package providers

import (
	"github.com/smallbiznis/tasklane/internal/providers/email"
	"github.com/smallbiznis/tasklane/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	storage.Module,
)
