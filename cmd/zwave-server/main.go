// Command zwave-server runs the websocket gateway in front of a simulated
// Z-Wave driver.
//
// Usage:
//
//	zwave-server [flags]
//
// Flags:
//
//	-listen string     Listen address (default ":3000")
//	-config string     YAML configuration file path
//	-ping duration     Liveness sweep period (default 30s)
//	-mdns              Advertise the server over mDNS
//	-trace string      Write a CBOR protocol trace to this file
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Start with defaults on port 3000
//	zwave-server
//
//	# Start from a config file with mDNS and a protocol trace
//	zwave-server -config /etc/zwave/server.yaml -mdns -trace /var/log/zwave-trace.cbor
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zwave-js/zwave-js-server-go/pkg/config"
	"github.com/zwave-js/zwave-js-server-go/pkg/discovery"
	"github.com/zwave-js/zwave-js-server-go/pkg/driversim"
	"github.com/zwave-js/zwave-js-server-go/pkg/gateway"
	"github.com/zwave-js/zwave-js-server-go/pkg/log"
	"github.com/zwave-js/zwave-js-server-go/pkg/metrics"
	"github.com/zwave-js/zwave-js-server-go/pkg/version"
)

const simHomeID = 0xE5CAFE01

func main() {
	var (
		listen     = flag.String("listen", "", "listen address (overrides config)")
		configPath = flag.String("config", "", "YAML configuration file path")
		ping       = flag.Duration("ping", 0, "liveness sweep period (overrides config)")
		mdns       = flag.Bool("mdns", false, "advertise the server over mDNS")
		trace      = flag.String("trace", "", "write a CBOR protocol trace to this file")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *ping > 0 {
		cfg.PingInterval = config.Duration(*ping)
	}
	if *mdns {
		cfg.MDNS = true
	}
	if *trace != "" {
		cfg.TraceFile = *trace
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	var traceLog log.Logger = log.NoopLogger{}
	if cfg.TraceFile != "" {
		fl, err := log.NewFileLogger(cfg.TraceFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("opening trace file")
		}
		defer fl.Close()
		traceLog = fl
		logger.Info().Str("file", cfg.TraceFile).Msg("protocol trace enabled")
	}

	sim := driversim.New(simHomeID, "12.4.0-sim")
	seedNetwork(sim)

	m := metrics.New()
	g := gateway.New(sim, sim.Handlers(), gateway.Options{
		Listen:       cfg.Listen,
		PingInterval: cfg.PingInterval.Std(),
		Logger:       logger,
		Trace:        traceLog,
		Metrics:      m,
	})
	if err := g.Start(); err != nil {
		logger.Fatal().Err(err).Msg("starting gateway")
	}
	logger.Info().
		Str("addr", g.Addr().String()).
		Str("serverVersion", version.Server).
		Str("driverVersion", sim.Version()).
		Uint32("homeId", sim.HomeID()).
		Msg("server up")

	var advertiser discovery.Advertiser
	if cfg.MDNS {
		port := 0
		if addr, ok := g.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		instance := fmt.Sprintf("zwave-js-server-%08x", sim.HomeID())
		if err := advertiser.Advertise(instance, port, discovery.Info{
			HomeID:        sim.HomeID(),
			ServerVersion: version.Server,
			MinSchema:     version.MinSchema,
			MaxSchema:     version.MaxSchema,
		}); err != nil {
			logger.Warn().Err(err).Msg("mdns advertisement failed")
		} else {
			defer advertiser.Stop()
			logger.Info().Str("instance", instance).Msg("advertising over mdns")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Destroy(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
		os.Exit(1)
	}
}

// seedNetwork populates the simulator with a small demo network.
func seedNetwork(sim *driversim.Simulator) {
	sim.AddNode("Living Room Light", "switch", map[string]any{
		"currentValue": false,
	})
	sim.AddNode("Hallway Dimmer", "multilevel switch", map[string]any{
		"currentValue": 0,
	})
	sim.AddNode("Front Door Sensor", "binary sensor", map[string]any{
		"open":    false,
		"battery": 87,
	})
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
