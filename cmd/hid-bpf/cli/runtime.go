package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/frobware/go-hidbpf/config"
	"github.com/frobware/go-hidbpf/interpreter"
	"github.com/frobware/go-hidbpf/interpreter/ebpf"
	"github.com/frobware/go-hidbpf/interpreter/store/sqlite"
	"github.com/frobware/go-hidbpf/loader"
)

// Runtime holds everything a command needs to load, list or inspect.
type Runtime struct {
	Config     config.Config
	Paths      config.Paths
	Logger     *slog.Logger
	Kernel     interpreter.Kernel
	Store      interpreter.Store
	Strategies *loader.StrategyCache
	Loader     *loader.Loader
}

// NewRuntime loads the configuration and opens the ledger. The
// returned runtime must be closed when no longer needed.
func (c *CLI) NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := c.Logger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger = logger.With("component", "cli")

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(paths.Runtime(), 0o755); err != nil {
		return nil, fmt.Errorf("create runtime directory: %w", err)
	}

	store, err := sqlite.New(ctx, paths.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", paths.DBPath(), err)
	}

	kernel := ebpf.New(ebpf.WithLogger(logger))
	strategies := loader.NewStrategyCache(kernel, paths.AttachObject(), logger)

	return &Runtime{
		Config:     cfg,
		Paths:      paths,
		Logger:     logger,
		Kernel:     kernel,
		Store:      store,
		Strategies: strategies,
		Loader: loader.New(kernel, strategies,
			loader.WithStore(store),
			loader.WithLogger(logger),
			loader.WithPinRoot(paths.PinRoot()),
		),
	}, nil
}

// Close releases the attach skeleton and the ledger.
func (r *Runtime) Close() error {
	return errors.Join(r.Strategies.Close(), r.Store.Close())
}
