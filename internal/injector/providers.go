package injector

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/apischema/internal/config"
	"github.com/zeusync/apischema/internal/core/observability/log"
	"github.com/zeusync/apischema/internal/core/observability/metrics"
	"github.com/zeusync/apischema/internal/core/schema/decoder"
	"github.com/zeusync/apischema/internal/core/schema/registry"
	"github.com/zeusync/apischema/internal/core/schema/watch"
)

// App is the wired object graph used by the command line tool.
type App struct {
	Logger *log.Logger
	Holder *watch.Holder
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideRecorder,
	wire.Bind(new(metrics.Recorder), new(*metrics.Decode)),
	ProvideHolder,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

func ProvideRecorder(registerer prometheus.Registerer) (*metrics.Decode, error) {
	return metrics.NewDecode(registerer)
}

// ProvideHolder loads the catalog and the configured schema file into the first snapshot.
func ProvideHolder(cfg *config.Config, logger log.Log, recorder metrics.Recorder) (*watch.Holder, error) {
	mode, err := cfg.ValidationMode()
	if err != nil {
		return nil, err
	}
	return watch.New(cfg.SchemaFile,
		watch.WithCatalog(cfg.Catalog),
		watch.WithLogger(logger),
		watch.WithRegistryOptions(registry.WithValidation(mode)),
		watch.WithDecoderOptions(
			decoder.WithMaxDepth(cfg.MaxDepth),
			decoder.WithStrict(cfg.Strict),
			decoder.WithParallelism(cfg.Parallelism),
			decoder.WithMetrics(recorder),
		),
	)
}
