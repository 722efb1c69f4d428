// Package loader loads HID-BPF objects for one device at a time.
//
// # Pipeline
//
// LoadPrograms drives a single device/object pair through:
//
//	open -> select strategy -> load -> inject properties -> probe
//	     -> attach and pin -> pin maps -> record
//
// The object handle is owned by the call and closed on return. Only
// pinned kernel objects outlive it; afterwards they are reachable by
// path alone:
//
//	<pin-root>/<sanitize(sysname)>/<sanitize(object)>/<artifact>
//
// # Strategies
//
// Objects declaring a struct_ops program in a "struct_ops/hid_"
// section are attached by registering their struct_ops maps. All other
// objects attach each tracing program through the syscall program of
// the attach skeleton, which is loaded once per StrategyCache.
//
// # Atomicity
//
// A load either leaves a complete artifact set pinned or nothing. A
// map pin failure removes the object's pin directory; a struct_ops
// failure removes the struct_ops links already pinned; a ledger
// failure removes the pin directory. Tracing programs are the
// exception: each one that fails to attach is logged and skipped, and
// only an empty result fails the load.
//
// Loads of the same device/object pair are not serialised here.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/bpffs"
	"github.com/frobware/go-hidbpf/interpreter"
)

// ErrNoStore is returned by operations that need the ledger when the
// Loader was built without one.
var ErrNoStore = errors.New("no load ledger configured")

// Loader loads objects for devices.
type Loader struct {
	kernel     interpreter.Kernel
	strategies *StrategyCache
	store      interpreter.Store
	pinRoot    string
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithStore records every successful load in store.
func WithStore(store interpreter.Store) Option {
	return func(l *Loader) {
		l.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithPinRoot overrides hidbpf.DefaultPinRoot.
func WithPinRoot(root string) Option {
	return func(l *Loader) {
		l.pinRoot = root
	}
}

// New creates a Loader. The StrategyCache is shared by every load
// performed through the Loader and may be shared between Loaders.
func New(kernel interpreter.Kernel, strategies *StrategyCache, opts ...Option) *Loader {
	l := &Loader{
		kernel:     kernel,
		strategies: strategies,
		pinRoot:    hidbpf.DefaultPinRoot,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// PinRoot returns the directory below which devices are pinned.
func (l *Loader) PinRoot() string { return l.pinRoot }

// LoadPrograms loads the object at objectPath for dev. props are
// extra properties that override the device's own properties of the
// same name. On success the returned set lists every pinned path; on
// failure nothing is left pinned for this device/object pair.
func (l *Loader) LoadPrograms(ctx context.Context, objectPath string, dev hidbpf.Device, props []hidbpf.Property) (hidbpf.ArtifactSet, error) {
	if err := ctx.Err(); err != nil {
		return hidbpf.ArtifactSet{}, err
	}

	objName := hidbpf.ObjectName(objectPath)
	logger := l.logger.With("object", objName, "sysname", dev.Sysname(), "device_id", dev.ID())
	logger.DebugContext(ctx, "loading object", "path", objectPath)

	open, err := l.kernel.Open(objectPath)
	if err != nil {
		return hidbpf.ArtifactSet{}, &hidbpf.LoaderError{Object: objName, Op: "open", Err: err}
	}

	strategy := SelectStrategy(open.Programs())
	a := l.attacherFor(strategy, objName, logger)
	logger.DebugContext(ctx, "selected attach strategy", "strategy", strategy)

	obj, err := a.load(ctx, open, dev)
	if err != nil {
		return hidbpf.ArtifactSet{}, err
	}
	defer obj.Close()

	merged := hidbpf.MergeProperties(dev.Properties(), props)
	if err := injectProperties(ctx, obj, objName, merged, logger); err != nil {
		return hidbpf.ArtifactSet{}, err
	}

	if err := probe(ctx, obj, objName, dev); err != nil {
		return hidbpf.ArtifactSet{}, err
	}

	dir := hidbpf.ObjectPinDir(l.pinRoot, dev.Sysname(), objName)
	attached, err := a.attachAndPin(ctx, obj, dev, dir)
	if err != nil {
		return hidbpf.ArtifactSet{}, err
	}

	maps, err := pinMaps(ctx, obj, dir, dev.ID(), logger)
	if err != nil {
		return hidbpf.ArtifactSet{}, err
	}

	set := hidbpf.ArtifactSet{
		Dir:      dir,
		Strategy: strategy,
		Attached: attached,
		Maps:     maps,
	}

	if l.store != nil {
		rec := hidbpf.LoadRecord{
			ID:         uuid.NewString(),
			Sysname:    dev.Sysname(),
			DeviceID:   dev.ID(),
			ObjectPath: objectPath,
			ObjectName: objName,
			Artifacts:  set,
			CreatedAt:  l.now(),
		}
		if err := l.store.SaveLoad(ctx, rec); err != nil {
			removePinDir(ctx, dir, logger)
			return hidbpf.ArtifactSet{}, fmt.Errorf("record load of %s on %s: %w", objName, dev.Sysname(), err)
		}
	}

	logger.InfoContext(ctx, "loaded object", "strategy", strategy, "attached", len(attached), "maps", len(maps))
	return set, nil
}

// RemoveDevice removes every pin of a device and forgets its recorded
// loads. Removing a device with nothing pinned is not an error.
func (l *Loader) RemoveDevice(ctx context.Context, sysname string) error {
	dir := hidbpf.DevicePinDir(l.pinRoot, sysname)
	if err := bpffs.RemoveTree(dir); err != nil {
		return err
	}

	n := 0
	if l.store != nil {
		var err error
		if n, err = l.store.DeleteBySysname(ctx, sysname); err != nil {
			return fmt.Errorf("forget loads of %s: %w", sysname, err)
		}
	}

	l.logger.InfoContext(ctx, "removed device", "sysname", sysname, "dir", dir, "records", n)
	return nil
}

// List returns the recorded loads, newest first.
func (l *Loader) List(ctx context.Context) ([]hidbpf.LoadRecord, error) {
	if l.store == nil {
		return nil, ErrNoStore
	}
	return l.store.ListLoads(ctx)
}

// ListDevice returns the recorded loads of one device, newest first.
func (l *Loader) ListDevice(ctx context.Context, sysname string) ([]hidbpf.LoadRecord, error) {
	if l.store == nil {
		return nil, ErrNoStore
	}
	return l.store.ListLoadsBySysname(ctx, sysname)
}

func (l *Loader) attacherFor(s hidbpf.Strategy, objName string, logger *slog.Logger) attacher {
	if s == hidbpf.StrategyStructOps {
		return &structOpsAttacher{objName: objName, logger: logger}
	}
	return &tracingAttacher{
		objName:    objName,
		strategies: l.strategies,
		pinner:     l.kernel,
		logger:     logger,
	}
}

// removePinDir removes an object pin directory, logging instead of
// failing since the caller is already reporting an error.
func removePinDir(ctx context.Context, dir string, logger *slog.Logger) {
	if err := bpffs.RemoveTree(dir); err != nil {
		logger.WarnContext(ctx, "failed to remove pin directory", "dir", dir, "error", err)
	}
}

// mkdirPinDir creates an object pin directory. Failure is only
// logged: the pin that follows reports the real error.
func mkdirPinDir(ctx context.Context, dir string, logger *slog.Logger) {
	if err := bpffs.MkdirAll(dir); err != nil {
		logger.WarnContext(ctx, "failed to create pin directory", "dir", dir, "error", err)
	}
}
