package loader

import (
	"context"
	"log/slog"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
)

// pinMaps pins every map the attacher has not already pinned. Maps
// synthesised for global data sections are skipped. If any pin fails
// the whole object pin directory is removed, including the
// attachments, and the load fails.
func pinMaps(ctx context.Context, obj interpreter.Object, dir string, hid uint32, logger *slog.Logger) ([]string, error) {
	var pinned []string
	for _, m := range obj.Maps() {
		if m.IsCompilerInternal() || m.Kind == hidbpf.MapKindStructOps {
			continue
		}

		path := hidbpf.ArtifactPinPath(dir, m.Name)
		if err := obj.PinMap(m.Name, path); err != nil {
			removePinDir(ctx, dir, logger)
			return nil, &hidbpf.KernelCallError{
				Op:       "pin map",
				Target:   path,
				DeviceID: hid,
				Errno:    errnoOf(err),
				Err:      err,
			}
		}
		logger.DebugContext(ctx, "pinned map", "map", m.Name, "path", path)
		pinned = append(pinned, path)
	}
	return pinned, nil
}
