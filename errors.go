package hidbpf

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrUnsupported is matched by every UnsupportedError.
var ErrUnsupported = errors.New("unsupported on this kernel")

// LoaderError wraps a failure reported by the kernel-extension loading
// library: opening, verification, relocation, type metadata or map
// access.
type LoaderError struct {
	Object string
	Op     string
	Err    error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Object, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// KernelCallError is returned when a blocking kernel call (test-run,
// attach, pin) fails, or when a probe program reports a nonzero
// status. Status is the raw value the BPF program stored, when there
// was one. Errno is the OS error number; it is zero for a positive
// Status, which carries no errno.
type KernelCallError struct {
	Op       string
	Target   string
	DeviceID uint32
	Errno    unix.Errno
	Status   int32
	Err      error
}

func (e *KernelCallError) Error() string {
	msg := fmt.Sprintf("%s %s on device %d", e.Op, e.Target, e.DeviceID)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case e.Errno != 0:
		return msg + ": " + e.Errno.Error()
	default:
		return msg
	}
}

// Unwrap exposes both the underlying error and the errno so that
// errors.Is(err, unix.EINVAL) works regardless of how the failure was
// produced.
func (e *KernelCallError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Errno != 0 {
		errs = append(errs, e.Errno)
	}
	return errs
}

// ErrnoFromStatus converts a negative kernel status into an errno.
// Nonnegative statuses have no errno equivalent and yield zero.
func ErrnoFromStatus(status int32) unix.Errno {
	if status < 0 {
		return unix.Errno(-status)
	}
	return 0
}

// UnsupportedError reports that the running kernel lacks a facility an
// attach strategy needs.
type UnsupportedError struct {
	Feature string
	Err     error
}

func (e *UnsupportedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Feature, ErrUnsupported, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Feature, ErrUnsupported)
}

func (e *UnsupportedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnsupported, e.Err}
	}
	return []error{ErrUnsupported}
}

// AggregateAttachError is returned when an object loaded and probed
// successfully but not a single artifact could be attached and pinned.
type AggregateAttachError struct {
	Object   string
	DeviceID uint32
	Failures []error
}

func (e *AggregateAttachError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no programs of %s attached to device %d", e.Object, e.DeviceID)
	}
	return fmt.Sprintf("no programs of %s attached to device %d: %v", e.Object, e.DeviceID, errors.Join(e.Failures...))
}

func (e *AggregateAttachError) Unwrap() []error { return e.Failures }
