package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
	"github.com/frobware/go-hidbpf/kernel"
)

// tracingAttacher attaches every tracing program of an object to the
// device through the attach skeleton's syscall program.
type tracingAttacher struct {
	objName    string
	strategies *StrategyCache
	pinner     interpreter.Pinner
	logger     *slog.Logger
}

func (a *tracingAttacher) load(ctx context.Context, open interpreter.OpenObject, dev hidbpf.Device) (interpreter.Object, error) {
	if _, err := a.strategies.TracingSkeleton(); err != nil {
		return nil, err
	}

	obj, err := open.Load()
	if err != nil {
		return nil, &hidbpf.LoaderError{Object: a.objName, Op: "load", Err: err}
	}
	return obj, nil
}

// attachAndPin attaches each tracing program independently. A program
// that fails to attach or pin is logged and left out; the call fails
// only when no program is left.
func (a *tracingAttacher) attachAndPin(ctx context.Context, obj interpreter.Object, dev hidbpf.Device, dir string) ([]string, error) {
	attachProg, err := a.strategies.TracingSkeleton()
	if err != nil {
		return nil, err
	}

	var (
		attached []string
		failures []error
	)
	for _, pd := range obj.Programs() {
		if pd.Kind != hidbpf.ProgramKindTracing {
			continue
		}
		path, err := a.attachProgram(ctx, attachProg, obj, pd.Name, dev.ID(), dir)
		if err != nil {
			a.logger.WarnContext(ctx, "failed to attach program", "program", pd.Name, "error", err)
			failures = append(failures, err)
			continue
		}
		attached = append(attached, path)
	}

	if len(attached) == 0 {
		return nil, &hidbpf.AggregateAttachError{
			Object:   a.objName,
			DeviceID: dev.ID(),
			Failures: failures,
		}
	}
	return attached, nil
}

// attachProgram attaches one program and pins the returned link. The
// skeleton hands the link back as a bare file descriptor; the pinner
// consumes it, so only the pin keeps the link.
func (a *tracingAttacher) attachProgram(ctx context.Context, attachProg interpreter.Program, obj interpreter.Object, name string, hid uint32, dir string) (string, error) {
	prog, ok := obj.Program(name)
	if !ok {
		return "", fmt.Errorf("program %q: %w", name, interpreter.ErrNotFound)
	}

	out, err := Submit(attachProg, kernel.NewAttachArgs(prog.FD(), hid))
	if err != nil {
		return "", &hidbpf.KernelCallError{Op: "attach", Target: name, DeviceID: hid, Errno: errnoOf(err), Err: err}
	}
	if out.Retval < 0 {
		return "", &hidbpf.KernelCallError{
			Op:       "attach",
			Target:   name,
			DeviceID: hid,
			Status:   out.Retval,
			Errno:    hidbpf.ErrnoFromStatus(out.Retval),
		}
	}
	a.logger.DebugContext(ctx, "attached program", "program", name, "link_fd", out.Retval)

	mkdirPinDir(ctx, dir, a.logger)

	path := hidbpf.ArtifactPinPath(dir, name)
	if err := a.pinner.PinLinkFD(int(out.Retval), path); err != nil {
		return "", &hidbpf.KernelCallError{Op: "pin", Target: path, DeviceID: hid, Errno: errnoOf(err), Err: err}
	}
	a.logger.DebugContext(ctx, "pinned link", "program", name, "path", path)
	return path, nil
}
