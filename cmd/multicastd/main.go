package main

import (
	"log"

	"github.com/creastat/infra/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/creastat/multicast"
	"github.com/creastat/multicast/aggregate"
	"github.com/creastat/multicast/internal/config"
	"github.com/creastat/multicast/internal/server"
	"github.com/creastat/multicast/processors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	logger.Info("multicastd: starting",
		telemetry.String("listen_addr", cfg.ListenAddr),
		telemetry.Int("targets", len(cfg.Targets)),
		telemetry.Bool("parallel", cfg.Parallel),
		telemetry.Bool("streaming", cfg.Streaming),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b := multicast.NewBuilder().
		Name("multicastd").
		Aggregate(aggregate.SurfaceFailures(aggregate.Concat(cfg.Separator))).
		PoolSize(cfg.PoolSize).
		ShutdownWait(cfg.ShutdownWait).
		Logger(logger).
		Metrics(multicast.NewMetrics(reg))
	if cfg.Streaming {
		b.Streaming()
	} else if cfg.Parallel {
		b.Parallel()
	}
	for _, target := range cfg.Targets {
		b.AddBranch(processors.NewHTTPForwarder(processors.HTTPForwarderConfig{
			URL:    target,
			Logger: logger,
		}))
	}

	eng, err := b.Build()
	if err != nil {
		log.Fatalf("failed to build multicast: %v", err)
	}

	srv := server.NewServer(cfg.ListenAddr, eng, reg, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
