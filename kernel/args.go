// Package kernel holds the fixed-layout values exchanged with BPF
// programs run through the kernel's test-execution interface, and
// plain descriptions of kernel objects observed on bpffs.
package kernel

import (
	"errors"
	"fmt"
)

// ReportDescriptorCapacity is the size of the report descriptor buffer
// in struct hid_bpf_probe_args.
const ReportDescriptorCapacity = 4096

// ErrDescriptorTooLarge is returned when a report descriptor does not
// fit in ReportDescriptorCapacity bytes.
var ErrDescriptorTooLarge = errors.New("report descriptor exceeds probe buffer")

// ReportDescriptor is the fixed-capacity report descriptor buffer of
// the probe arguments. Bytes past the descriptor length are zero.
type ReportDescriptor [ReportDescriptorCapacity]byte

// NewReportDescriptor copies rdesc into a zero-filled buffer. A
// descriptor longer than the capacity is rejected rather than
// truncated so that a probe never sees a partial descriptor.
func NewReportDescriptor(rdesc []byte) (ReportDescriptor, error) {
	var buf ReportDescriptor
	if len(rdesc) > len(buf) {
		return buf, fmt.Errorf("%w: %d > %d bytes", ErrDescriptorTooLarge, len(rdesc), len(buf))
	}
	copy(buf[:], rdesc)
	return buf, nil
}

// ProbeArgs mirrors struct hid_bpf_probe_args:
//
//	struct hid_bpf_probe_args {
//		unsigned int hid;
//		unsigned int rdesc_size;
//		unsigned char rdesc[4096];
//		int retval;
//	};
type ProbeArgs struct {
	Hid       uint32
	RdescSize uint32
	Rdesc     ReportDescriptor
	Retval    int32
}

// NewProbeArgs builds probe arguments for a device. Retval is preset to
// -1 so that a probe program which never writes it is treated as a
// rejection.
func NewProbeArgs(hid uint32, rdesc []byte) (ProbeArgs, error) {
	buf, err := NewReportDescriptor(rdesc)
	if err != nil {
		return ProbeArgs{}, err
	}
	return ProbeArgs{
		Hid:       hid,
		RdescSize: uint32(len(rdesc)),
		Rdesc:     buf,
		Retval:    -1,
	}, nil
}

// AttachArgs mirrors struct attach_prog_args consumed by the attach
// skeleton's syscall program:
//
//	struct attach_prog_args {
//		int prog_fd;
//		unsigned int hid;
//		int retval;
//	};
//
// On return, a nonnegative Retval is a bpf link file descriptor
// installed in the calling process.
type AttachArgs struct {
	ProgFD int32
	Hid    uint32
	Retval int32
}

// NewAttachArgs builds attach arguments with Retval preset to -1.
func NewAttachArgs(progFD int, hid uint32) AttachArgs {
	return AttachArgs{
		ProgFD: int32(progFD),
		Hid:    hid,
		Retval: -1,
	}
}
