package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/config"
	"github.com/ajitpratap0/memgate/pkg/connector/instance"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/logger"
	"github.com/ajitpratap0/memgate/pkg/metrics"
	"github.com/ajitpratap0/memgate/pkg/observability"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile  string
	pluginPaths []string
	verbosity   int
	metricsAddr string
	trace       bool
	cachePages  int
}

// app holds the state of one command invocation.
type app struct {
	flags  globalFlags
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	log     *zap.Logger
	inv     *inventory.Inventory
	metrics *metrics.Server
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("verbose") {
		cfg.Logging.Level = logger.VerbosityLevel(a.flags.verbosity)
	}
	if len(a.flags.pluginPaths) > 0 {
		cfg.Inventory.SearchPaths = a.flags.pluginPaths
	}
	if cmd.Flags().Changed("cache-pages") {
		cfg.Access.CachePages = a.flags.cachePages
	}
	if a.flags.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = a.flags.metricsAddr
	}
	if a.flags.trace {
		cfg.Tracing.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	a.log = logger.Get().With(zap.String("component", "memgate-cli"))

	tc := cfg.TracingConfig(version)
	tc.Writer = a.errOut
	if err := observability.Init(tc); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		srv, err := metrics.Serve(cfg.Metrics.Address)
		if err != nil {
			return err
		}
		a.metrics = srv
	}
	return nil
}

// inventory scans on first use.
func (a *app) inventory(ctx context.Context) (*inventory.Inventory, error) {
	if a.inv != nil {
		return a.inv, nil
	}
	opts := append(a.cfg.InventoryOptions(), inventory.WithLogger(a.log))
	inv, err := inventory.Scan(ctx, a.cfg.Inventory.SearchPaths, opts...)
	if err != nil {
		return nil, err
	}
	a.inv = inv
	return inv, nil
}

// withInstance runs fn on a fresh instance of connector.
func (a *app) withInstance(ctx context.Context, connector, args string, fn func(*instance.Instance) error) error {
	inv, err := a.inventory(ctx)
	if err != nil {
		return err
	}
	return inventory.WithConnector(ctx, inv, connector, args, fn)
}

func (a *app) teardown() error {
	var errs []error
	if a.inv != nil {
		errs = append(errs, a.inv.Destroy())
		a.inv = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
		a.metrics = nil
	}
	errs = append(errs, observability.Shutdown(ctx))
	errs = append(errs, logger.Shutdown())
	return errors.Join(errs...)
}
