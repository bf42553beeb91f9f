package cmd

import (
	"context"
	"os"
	"time"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"
)

// InitTracing sets up the OTLP exporter when OTEL_EXPORTER_OTLP_ENDPOINT
// is set; otherwise spans are discarded.
func InitTracing(ctx context.Context) (tracing.TpShutdownFunc, error) {
	if len(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) == 0 {
		return func(context.Context) error { return nil }, nil
	}

	environment := os.Getenv("CDNOPT_ENVIRONMENT")
	if len(environment) == 0 {
		environment = "prod"
	}

	tpShutdownFn, err := tracing.InitTracer(ctx,
		&tracing.TracerConfig{
			ServiceName: "cdnopt",
			Environment: environment,
		},
	)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		log := logger.FromContext(ctx)
		log.Debug("shutting down trace provider")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tpShutdownFn(shutdownCtx)
	}, nil
}
