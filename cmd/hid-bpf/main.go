// hid-bpf loads HID-BPF programs for HID devices. It is meant to be
// run by udev when a device is bound and unbound.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cilium/ebpf/rlimit"

	"github.com/frobware/go-hidbpf/cmd/hid-bpf/cli"
)

func main() {
	var c cli.CLI

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(cli.KongOptions(), kong.BindTo(ctx, (*context.Context)(nil)))
	kctx := kong.Parse(&c, opts...)

	// Kernels before 5.11 charge BPF memory against RLIMIT_MEMLOCK.
	if err := rlimit.RemoveMemlock(); err != nil {
		fmt.Fprintf(os.Stderr, "hid-bpf: remove memlock limit: %v\n", err)
	}

	if err := kctx.Run(&c); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "hid-bpf: %v\n", err)
		os.Exit(1)
	}
}
