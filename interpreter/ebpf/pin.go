package ebpf

import (
	"fmt"
	"io"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/pin"
	"golang.org/x/sys/unix"

	"github.com/frobware/go-hidbpf/kernel"
)

// linkTypeNames names the link types hid-bpf pins, plus the common
// ones a stale pin directory might hold.
var linkTypeNames = map[link.Type]string{
	link.RawTracepointType: "raw_tracepoint",
	link.TracingType:       "tracing",
	link.CgroupType:        "cgroup",
	link.IterType:          "iter",
	link.NetNsType:         "netns",
	link.XDPType:           "xdp",
	link.PerfEventType:     "perf_event",
	link.StructOpsType:     "struct_ops",
}

func linkTypeName(t link.Type) string {
	if name, ok := linkTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("link type %d", t)
}

// PinLinkFD pins a link known only by its file descriptor. Links
// created inside a syscall program come back as a bare fd. The fd is
// owned by the call and closed whether or not the pin succeeds.
func (k *kernelAdapter) PinLinkFD(fd int, path string) error {
	lnk, err := link.NewFromFD(fd)
	if err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("wrap link fd %d: %w", fd, err)
	}
	defer lnk.Close()

	if err := lnk.Pin(path); err != nil {
		return fmt.Errorf("pin link fd %d to %s: %w", fd, path, err)
	}
	k.logger.Debug("pinned link", "fd", fd, "path", path)
	return nil
}

// InspectPin opens a pin and reports what kernel object it refers to.
func (k *kernelAdapter) InspectPin(path string) (kernel.PinnedObject, error) {
	obj := kernel.PinnedObject{Path: path, Kind: kernel.PinKindUnknown}

	p, err := pin.Load(path, nil)
	if err != nil {
		return obj, fmt.Errorf("inspect pin %s: %w", path, notFound(err))
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	switch v := p.(type) {
	case link.Link:
		obj.Kind = kernel.PinKindLink
		if info, err := v.Info(); err == nil {
			obj.ID = uint32(info.ID)
			obj.Type = linkTypeName(info.Type)
			obj.Name = fmt.Sprintf("prog %d", info.Program)
		}
	case *ebpf.Map:
		obj.Kind = kernel.PinKindMap
		obj.Type = v.Type().String()
		if info, err := v.Info(); err == nil {
			id, _ := info.ID()
			obj.ID = uint32(id)
			obj.Name = info.Name
		}
	case *ebpf.Program:
		obj.Kind = kernel.PinKindProgram
		obj.Type = v.Type().String()
		if info, err := v.Info(); err == nil {
			id, _ := info.ID()
			obj.ID = uint32(id)
			obj.Name = info.Name
		}
	}
	return obj, nil
}
