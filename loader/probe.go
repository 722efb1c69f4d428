package loader

import (
	"context"
	"os"
	"path/filepath"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
	"github.com/frobware/go-hidbpf/kernel"
)

const (
	// probeProgramName is the optional syscall program that decides
	// whether an object applies to a device.
	probeProgramName = "probe"

	// reportDescriptorFile is the sysfs attribute holding the raw HID
	// report descriptor.
	reportDescriptorFile = "report_descriptor"
)

// probe runs the object's probe program, if it has one, against the
// device's report descriptor. Only a status of exactly zero accepts
// the device.
func probe(ctx context.Context, obj interpreter.Object, objName string, dev hidbpf.Device) error {
	prog, ok := obj.Program(probeProgramName)
	if !ok {
		return nil
	}

	rdesc, err := os.ReadFile(filepath.Join(dev.Syspath(), reportDescriptorFile))
	if err != nil {
		return &hidbpf.LoaderError{Object: objName, Op: "probe", Err: err}
	}

	args, err := kernel.NewProbeArgs(dev.ID(), rdesc)
	if err != nil {
		return &hidbpf.LoaderError{Object: objName, Op: "probe", Err: err}
	}

	out, err := Submit(prog, args)
	if err != nil {
		return &hidbpf.KernelCallError{
			Op:       "probe",
			Target:   objName,
			DeviceID: dev.ID(),
			Errno:    errnoOf(err),
			Err:      err,
		}
	}
	if out.Retval != 0 {
		return &hidbpf.KernelCallError{
			Op:       "probe",
			Target:   objName,
			DeviceID: dev.ID(),
			Status:   out.Retval,
			Errno:    hidbpf.ErrnoFromStatus(out.Retval),
		}
	}
	return nil
}
