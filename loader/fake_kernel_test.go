package loader_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
	"github.com/frobware/go-hidbpf/kernel"
)

const attachObjectPath = "/usr/local/lib/hid-bpf/attach.bpf.o"

// kernelOp records an operation performed on the fake kernel.
type kernelOp struct {
	Op   string // "open", "load", "probe", "attach", "pin-link", "pin-map", "attach-struct-ops", "update"
	Name string // object path, program, map or pin path
}

// fakeMap describes one map of a fake object.
type fakeMap struct {
	desc hidbpf.MapDescriptor
	// initial is the pre-load value of key 0. Struct_ops maps expose
	// it through InitialValue.
	initial []byte
}

// fakeObjectSpec describes what a fake object file contains and how
// the fake kernel treats it.
type fakeObjectSpec struct {
	programs []hidbpf.ProgramDescriptor
	maps     []fakeMap
	sections map[string][]interpreter.SectionVar

	loadErr error
	// probeStatus is what the "probe" program writes to retval.
	probeStatus int32
	// attachStatus maps a tracing program to the negative errno the
	// attach program returns for it.
	attachStatus map[string]int32
	// structOpsErr maps a struct_ops map to its attach error.
	structOpsErr map[string]error
	// pinMapErr maps a map to its pin error.
	pinMapErr map[string]error
}

// fakeKernel implements interpreter.Kernel for testing. Pins create
// empty files so that the pin layout can be checked on disk.
type fakeKernel struct {
	mu      sync.Mutex
	objects map[string]*fakeObjectSpec
	ops     []kernelOp
	nextFD  int
	// links maps an outstanding link fd to its program.
	links  map[int]string
	closed []int
	// loaded lists every object loaded, so that the attach program
	// can resolve program fds.
	loaded []*fakeObject

	// Error injection.
	syscallErr error
	pinLinkErr map[string]error // by program name

	syscallChecks atomic.Int32
	skeletonOpens atomic.Int32

	// Captured probe arguments.
	probeArgs []kernel.ProbeArgs
	// Final value of key 0 of each loaded map, updated on Update.
	mapValues map[string][]byte
}

func newFakeKernel() *fakeKernel {
	fk := &fakeKernel{
		objects:    make(map[string]*fakeObjectSpec),
		links:      make(map[int]string),
		pinLinkErr: make(map[string]error),
		mapValues:  make(map[string][]byte),
		nextFD:     100,
	}
	fk.objects[attachObjectPath] = &fakeObjectSpec{
		programs: []hidbpf.ProgramDescriptor{
			{Name: "attach_prog", Kind: hidbpf.ProgramKindSyscall, Section: "syscall"},
		},
	}
	return fk
}

// addObject registers an object file.
func (f *fakeKernel) addObject(path string, spec *fakeObjectSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = spec
}

// Operations returns a copy of recorded operations for verification.
func (f *fakeKernel) Operations() []kernelOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]kernelOp, len(f.ops))
	copy(ops, f.ops)
	return ops
}

// opsOf returns the names of the recorded operations of one kind.
func (f *fakeKernel) opsOf(op string) []string {
	var names []string
	for _, o := range f.Operations() {
		if o.Op == op {
			names = append(names, o.Name)
		}
	}
	return names
}

func (f *fakeKernel) recordOp(op, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, kernelOp{Op: op, Name: name})
}

func (f *fakeKernel) allocFD() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFD++
	return f.nextFD
}

// Open implements interpreter.ObjectOpener.
func (f *fakeKernel) Open(path string) (interpreter.OpenObject, error) {
	f.recordOp("open", path)
	if path == attachObjectPath {
		f.skeletonOpens.Add(1)
	}

	f.mu.Lock()
	spec, ok := f.objects[path]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}

	o := &fakeOpenObject{kernel: f, path: path, spec: spec, initial: make(map[string][]byte)}
	for _, m := range spec.maps {
		if m.initial != nil {
			o.initial[m.desc.Name] = append([]byte(nil), m.initial...)
		}
	}
	return o, nil
}

// PinLinkFD implements interpreter.Pinner. The fd is released on
// every path, as the real adapter does.
func (f *fakeKernel) PinLinkFD(fd int, path string) error {
	f.mu.Lock()
	prog, ok := f.links[fd]
	injected := f.pinLinkErr[prog]
	if ok {
		delete(f.links, fd)
		f.closed = append(f.closed, fd)
	}
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin link fd %d: %w", fd, unix.EBADF)
	}
	if injected != nil {
		return injected
	}
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return err
	}
	f.recordOp("pin-link", path)
	return nil
}

// SyscallPrograms implements interpreter.Features.
func (f *fakeKernel) SyscallPrograms() error {
	f.syscallChecks.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syscallErr
}

// InspectPin implements interpreter.PinInspector.
func (f *fakeKernel) InspectPin(path string) (kernel.PinnedObject, error) {
	if _, err := os.Stat(path); err != nil {
		return kernel.PinnedObject{}, err
	}
	return kernel.PinnedObject{Path: path, Kind: kernel.PinKindLink}, nil
}

// fakeOpenObject implements interpreter.OpenObject.
type fakeOpenObject struct {
	kernel  *fakeKernel
	path    string
	spec    *fakeObjectSpec
	initial map[string][]byte
}

func (o *fakeOpenObject) Path() string { return o.path }

func (o *fakeOpenObject) Programs() []hidbpf.ProgramDescriptor { return o.spec.programs }

func (o *fakeOpenObject) Maps() []hidbpf.MapDescriptor {
	descs := make([]hidbpf.MapDescriptor, 0, len(o.spec.maps))
	for _, m := range o.spec.maps {
		descs = append(descs, m.desc)
	}
	return descs
}

func (o *fakeOpenObject) InitialValue(name string) ([]byte, bool) {
	buf, ok := o.initial[name]
	return buf, ok
}

func (o *fakeOpenObject) Load() (interpreter.Object, error) {
	o.kernel.recordOp("load", o.path)
	if o.spec.loadErr != nil {
		return nil, o.spec.loadErr
	}

	obj := &fakeObject{
		kernel:   o.kernel,
		spec:     o.spec,
		programs: make(map[string]*fakeProgram),
		values:   make(map[string][]byte),
	}
	for _, p := range o.spec.programs {
		obj.programs[p.Name] = &fakeProgram{name: p.Name, fd: o.kernel.allocFD(), object: obj}
	}
	o.kernel.mu.Lock()
	o.kernel.loaded = append(o.kernel.loaded, obj)
	o.kernel.mu.Unlock()
	for _, m := range o.spec.maps {
		if buf, ok := o.initial[m.desc.Name]; ok {
			obj.values[m.desc.Name] = append([]byte(nil), buf...)
			o.kernel.setMapValue(m.desc.Name, buf)
		}
	}
	return obj, nil
}

func (f *fakeKernel) setMapValue(name string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapValues[name] = append([]byte(nil), value...)
}

func (f *fakeKernel) mapValue(name string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mapValues[name]
}

// fakeObject implements interpreter.Object.
type fakeObject struct {
	kernel   *fakeKernel
	spec     *fakeObjectSpec
	programs map[string]*fakeProgram
	values   map[string][]byte
	closed   bool
}

func (o *fakeObject) Close() error {
	o.closed = true
	return nil
}

func (o *fakeObject) Programs() []hidbpf.ProgramDescriptor { return o.spec.programs }

func (o *fakeObject) Maps() []hidbpf.MapDescriptor {
	descs := make([]hidbpf.MapDescriptor, 0, len(o.spec.maps))
	for _, m := range o.spec.maps {
		descs = append(descs, m.desc)
	}
	return descs
}

func (o *fakeObject) Program(name string) (interpreter.Program, bool) {
	p, ok := o.programs[name]
	if !ok {
		return nil, false
	}
	return p, true
}

func (o *fakeObject) programByFD(fd int) (*fakeProgram, bool) {
	for _, p := range o.programs {
		if p.fd == fd {
			return p, true
		}
	}
	return nil, false
}

func (o *fakeObject) DataSection(name string) ([]interpreter.SectionVar, bool) {
	vars, ok := o.spec.sections[name]
	return vars, ok
}

func (o *fakeObject) MapKeys(name string) ([]uint32, error) {
	if _, ok := o.values[name]; !ok {
		return nil, nil
	}
	return []uint32{0}, nil
}

func (o *fakeObject) Lookup(name string, key uint32) ([]byte, error) {
	v, ok := o.values[name]
	if !ok || key != 0 {
		return nil, fmt.Errorf("lookup %s[%d]: %w", name, key, interpreter.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (o *fakeObject) Update(name string, key uint32, value []byte) error {
	o.kernel.recordOp("update", name)
	o.values[name] = append([]byte(nil), value...)
	o.kernel.setMapValue(name, value)
	return nil
}

func (o *fakeObject) PinMap(name, path string) error {
	if err := o.spec.pinMapErr[name]; err != nil {
		return err
	}
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return err
	}
	o.kernel.recordOp("pin-map", path)
	return nil
}

func (o *fakeObject) AttachStructOps(name, path string) error {
	if err := o.spec.structOpsErr[name]; err != nil {
		return err
	}
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return err
	}
	o.kernel.recordOp("attach-struct-ops", path)
	return nil
}

// fakeProgram implements interpreter.Program. Running "attach_prog"
// or "probe" decodes the context the way the real programs declare it.
type fakeProgram struct {
	name   string
	fd     int
	object *fakeObject
	runErr error
}

func (p *fakeProgram) Name() string { return p.name }

func (p *fakeProgram) FD() int { return p.fd }

func (p *fakeProgram) Run(ctx []byte) error {
	if p.runErr != nil {
		return p.runErr
	}
	switch p.name {
	case "attach_prog":
		return p.runAttach(ctx)
	case "probe":
		return p.runProbe(ctx)
	}
	return nil
}

func (p *fakeProgram) runProbe(ctx []byte) error {
	k := p.object.kernel
	k.recordOp("probe", p.name)

	var args kernel.ProbeArgs
	if err := binary.Read(bytes.NewReader(ctx), binary.NativeEndian, &args); err != nil {
		return err
	}
	k.mu.Lock()
	k.probeArgs = append(k.probeArgs, args)
	k.mu.Unlock()

	args.Retval = p.object.spec.probeStatus
	return encodeInto(ctx, args)
}

func (p *fakeProgram) runAttach(ctx []byte) error {
	k := p.object.kernel

	var args kernel.AttachArgs
	if err := binary.Read(bytes.NewReader(ctx), binary.NativeEndian, &args); err != nil {
		return err
	}

	target, ok := k.findProgram(int(args.ProgFD))
	if !ok {
		args.Retval = -9 // EBADF
		return encodeInto(ctx, args)
	}
	k.recordOp("attach", target.name)

	if status, ok := target.object.spec.attachStatus[target.name]; ok {
		args.Retval = status
		return encodeInto(ctx, args)
	}

	fd := k.allocFD()
	k.mu.Lock()
	k.links[fd] = target.name
	k.mu.Unlock()
	args.Retval = int32(fd)
	return encodeInto(ctx, args)
}

// findProgram resolves a program fd against every loaded object.
func (f *fakeKernel) findProgram(fd int) (*fakeProgram, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range f.loaded {
		if p, ok := obj.programByFD(fd); ok {
			return p, true
		}
	}
	return nil, false
}

func encodeInto(ctx []byte, v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, v); err != nil {
		return err
	}
	copy(ctx, buf.Bytes())
	return nil
}
