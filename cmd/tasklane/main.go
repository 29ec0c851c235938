package main

import (
	"github.com/smallbiznis/tasklane/internal/app"
	"github.com/smallbiznis/tasklane/internal/config"
	"go.uber.org/fx"
)

func main() {
	fx.New(app.Options(config.Load())).Run()
}
