package loader

import (
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
)

// structOpsAttacher registers every struct_ops map of an object. The
// device id is embedded in each map's initial value before load.
type structOpsAttacher struct {
	objName string
	logger  *slog.Logger
}

func (a *structOpsAttacher) load(ctx context.Context, open interpreter.OpenObject, dev hidbpf.Device) (interpreter.Object, error) {
	for _, m := range open.Maps() {
		if m.Kind != hidbpf.MapKindStructOps {
			continue
		}
		// struct hid_bpf_ops starts with the hid id.
		buf, ok := open.InitialValue(m.Name)
		if !ok || len(buf) < 4 {
			continue
		}
		binary.LittleEndian.PutUint32(buf[:4], dev.ID())
	}

	obj, err := open.Load()
	if err != nil {
		if isStructOpsUnsupported(err) {
			return nil, &hidbpf.UnsupportedError{Feature: "hid-bpf struct_ops", Err: err}
		}
		return nil, &hidbpf.LoaderError{Object: a.objName, Op: "load", Err: err}
	}
	return obj, nil
}

// isStructOpsUnsupported reports whether a struct_ops load failure
// means the kernel has no struct hid_bpf_ops. A missing kernel type
// surfaces as "not found", the same as a missing file; the object is
// already open here, so any not found is taken as the type.
func isStructOpsUnsupported(err error) bool {
	return errors.Is(err, interpreter.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// attachAndPin attaches every struct_ops map and pins its link. The
// first failure undoes the pins already made and fails the object.
func (a *structOpsAttacher) attachAndPin(ctx context.Context, obj interpreter.Object, dev hidbpf.Device, dir string) ([]string, error) {
	mkdirPinDir(ctx, dir, a.logger)

	var (
		undo     undoStack
		attached []string
	)
	for _, m := range obj.Maps() {
		if m.Kind != hidbpf.MapKindStructOps {
			continue
		}

		path := hidbpf.ArtifactPinPath(dir, m.Name)
		if err := obj.AttachStructOps(m.Name, path); err != nil {
			kerr := &hidbpf.KernelCallError{
				Op:       "attach struct_ops",
				Target:   m.Name,
				DeviceID: dev.ID(),
				Errno:    errnoOf(err),
				Err:      err,
			}
			if rbErr := undo.rollback(ctx, a.logger); rbErr != nil {
				return nil, errors.Join(kerr, rbErr)
			}
			return nil, kerr
		}
		undo.push("unpin "+path, func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		})

		a.logger.DebugContext(ctx, "attached struct_ops", "map", m.Name, "path", path)
		attached = append(attached, path)
	}
	return attached, nil
}
