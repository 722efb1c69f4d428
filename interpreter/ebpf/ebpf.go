// Package ebpf provides kernel operations using cilium/ebpf.
package ebpf

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/features"

	"github.com/frobware/go-hidbpf/interpreter"
)

// kernelAdapter implements interpreter.Kernel using cilium/ebpf.
type kernelAdapter struct {
	logger *slog.Logger
}

// Option configures a kernelAdapter.
type Option func(*kernelAdapter)

// WithLogger sets the logger for kernel operations.
func WithLogger(logger *slog.Logger) Option {
	return func(k *kernelAdapter) {
		k.logger = logger
	}
}

// New creates a new kernel adapter.
func New(opts ...Option) interpreter.Kernel {
	k := &kernelAdapter{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.With("component", "kernel")
	return k
}

// SyscallPrograms probes for BPF_PROG_TYPE_SYSCALL support.
func (k *kernelAdapter) SyscallPrograms() error {
	if err := features.HaveProgramType(ebpf.Syscall); err != nil {
		return fmt.Errorf("syscall program type: %w", err)
	}
	return nil
}

// notFound tags errors that cilium/ebpf or the filesystem report as a
// missing type or file with interpreter.ErrNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, btf.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", interpreter.ErrNotFound, err)
	}
	return err
}
