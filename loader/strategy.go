package loader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
)

const (
	// structOpsSectionPrefix marks struct_ops programs implementing
	// struct hid_bpf_ops.
	structOpsSectionPrefix = "struct_ops/hid_"

	// attachProgramName is the syscall program of the attach skeleton.
	attachProgramName = "attach_prog"
)

// SelectStrategy picks the attach strategy of an object from its
// program metadata.
func SelectStrategy(progs []hidbpf.ProgramDescriptor) hidbpf.Strategy {
	for _, p := range progs {
		if p.Kind == hidbpf.ProgramKindStructOps && strings.HasPrefix(p.Section, structOpsSectionPrefix) {
			return hidbpf.StrategyStructOps
		}
	}
	return hidbpf.StrategyTracing
}

// attacher is implemented by the two strategies only.
type attacher interface {
	// load moves an opened object into the kernel, applying any
	// strategy-specific patching first.
	load(ctx context.Context, open interpreter.OpenObject, dev hidbpf.Device) (interpreter.Object, error)
	// attachAndPin attaches the object to dev and pins every
	// attachment below dir, returning the pinned paths.
	attachAndPin(ctx context.Context, obj interpreter.Object, dev hidbpf.Device, dir string) ([]string, error)
}

// skeleton is the loaded attach object used by the tracing strategy.
type skeleton struct {
	obj  interpreter.Object
	prog interpreter.Program
}

// StrategyCache holds the process-wide state of the attach strategies:
// the tracing attach skeleton. The skeleton is loaded on first use and
// the outcome, success or failure, is kept for the life of the cache.
type StrategyCache struct {
	kernel       interpreter.Kernel
	attachObject string
	logger       *slog.Logger

	tracing func() (*skeleton, error)

	mu     sync.Mutex
	loaded *skeleton
	closed bool
}

// NewStrategyCache creates a cache whose tracing skeleton is loaded
// from attachObject.
func NewStrategyCache(kernel interpreter.Kernel, attachObject string, logger *slog.Logger) *StrategyCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &StrategyCache{
		kernel:       kernel,
		attachObject: attachObject,
		logger:       logger.With("component", "loader"),
	}
	c.tracing = sync.OnceValues(c.loadSkeleton)
	return c
}

// TracingSkeleton returns the attach program, loading the skeleton on
// the first call. Every later call returns the same outcome.
func (c *StrategyCache) TracingSkeleton() (interpreter.Program, error) {
	s, err := c.tracing()
	if err != nil {
		return nil, err
	}
	return s.prog, nil
}

// Close releases the skeleton if it was loaded. Links created through
// it stay attached through their pins.
func (c *StrategyCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.loaded == nil {
		return nil
	}
	err := c.loaded.obj.Close()
	c.loaded = nil
	return err
}

func (c *StrategyCache) loadSkeleton() (*skeleton, error) {
	const feature = "hid-bpf tracing attach"

	if err := c.kernel.SyscallPrograms(); err != nil {
		c.logger.Warn("tracing attach unavailable", "error", err)
		return nil, &hidbpf.UnsupportedError{Feature: feature, Err: err}
	}

	open, err := c.kernel.Open(c.attachObject)
	if err != nil {
		c.logger.Warn("tracing attach unavailable", "object", c.attachObject, "error", err)
		return nil, &hidbpf.UnsupportedError{Feature: feature, Err: err}
	}
	obj, err := open.Load()
	if err != nil {
		c.logger.Warn("tracing attach unavailable", "object", c.attachObject, "error", err)
		return nil, &hidbpf.UnsupportedError{Feature: feature, Err: err}
	}

	prog, ok := obj.Program(attachProgramName)
	if !ok {
		obj.Close()
		return nil, &hidbpf.UnsupportedError{
			Feature: feature,
			Err:     fmt.Errorf("program %q in %s: %w", attachProgramName, c.attachObject, interpreter.ErrNotFound),
		}
	}

	s := &skeleton{obj: obj, prog: prog}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		obj.Close()
		return nil, &hidbpf.UnsupportedError{Feature: feature, Err: fmt.Errorf("strategy cache closed")}
	}
	c.loaded = s

	c.logger.Debug("loaded attach skeleton", "object", c.attachObject)
	return s, nil
}
