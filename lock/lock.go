// Package lock provides a cross-process writer lock using flock(2) to
// serialise changes to the HID-BPF pin tree and load ledger.
//
// udev may run several hid-bpf commands at once for different devices.
// The add and remove commands run their whole body under Run; read-only
// commands never take the lock.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Run acquires the writer lock at lockPath, executes fn, then
// releases. The lock file and its directory are created if missing.
// Uses LOCK_EX|LOCK_NB with exponential backoff, respects ctx
// cancellation.
func Run(ctx context.Context, lockPath string, fn func(context.Context) error) error {
	f, err := acquireWriter(ctx, lockPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(ctx)
}

func acquireWriter(ctx context.Context, path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	backoff := 25 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if err != syscall.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("flock: %w", err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
