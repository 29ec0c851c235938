package auth

import (
	"github.com/smallbiznis/tasklane/internal/auth/service"
	"github.com/smallbiznis/tasklane/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(service.New),
	session.Module,
)
