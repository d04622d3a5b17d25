//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/apischema/internal/config"
)

func InitializeApp(cfg *config.Config, registerer prometheus.Registerer) (*App, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
