package main

import (
	"context"
	"fmt"
	"os"

	"load_simulator/internal/attack"
	"load_simulator/internal/collectors"
	"load_simulator/internal/config"
	"load_simulator/internal/leaderboard"
	"load_simulator/internal/pressure"
	"load_simulator/internal/profile"
	"load_simulator/internal/server"
	"load_simulator/internal/snapshot"
	"load_simulator/internal/window"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var configPath = "internal/config/configurations.json"

func main() {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Load configuration from JSON or YAML file to config.Config
			func() *config.Config {
				cfg, err := config.Load(configPath)
				if err != nil {
					panic(fmt.Sprintf("Failed to load configuration: %v", err))
				}
				return cfg
			},
			newLogger,
			newHostStats,
			newSampler,
			newManager,
			newSimulator,
			func(cfg *config.Config) *window.Aggregator {
				return window.New(cfg.Metrics.Window.Duration)
			},
			func(cfg *config.Config, agg *window.Aggregator, sampler *collectors.SystemCollector, logger *zap.Logger) *snapshot.Builder {
				return snapshot.NewBuilder(agg, sampler, logger, cfg.Load.DeclaredMemoryMB)
			},
			leaderboard.New,
			server.New,
			server.NewServerLifecycle,
		),

		// Invoke startup functions
		fx.Invoke(
			func(lifecycle fx.Lifecycle, serverLifecycle *server.ServerLifecycle) {
				lifecycle.Append(fx.Hook{
					OnStart: serverLifecycle.Start,
					OnStop:  serverLifecycle.Stop,
				})
			},
		),

		// Configure logging
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

// newLogger builds a zap logger from the logging section
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging.level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

func newHostStats() (collectors.HostStats, error) {
	return collectors.NewProcHostStats()
}

func newSampler(host collectors.HostStats, logger *zap.Logger, cfg *config.Config) *collectors.SystemCollector {
	return collectors.NewSystemCollector(&collectors.CollectorDependencies{
		Host:   host,
		Logger: logger,
		Config: cfg,
	})
}

// newManager applies the initial level at construction and releases all
// pressure when the app stops
func newManager(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*pressure.Manager, error) {
	initial, err := profile.ParseLevel(cfg.Load.InitialLevel)
	if err != nil {
		return nil, err
	}
	m := pressure.New(logger, profile.HostTable(), initial, pressure.Options{
		ScratchFile:  cfg.Load.ScratchFile,
		IOBurstBytes: cfg.Load.IOBurstBytes,
		ChunkMB:      cfg.Load.MemoryChunkMB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Close()
			return nil
		},
	})
	return m, nil
}

func newSimulator(cfg *config.Config, logger *zap.Logger, manager *pressure.Manager) *attack.Simulator {
	return attack.New(logger, manager, cfg.Attack.LogCapacity)
}
