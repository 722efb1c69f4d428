package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/bpffs"
	"github.com/frobware/go-hidbpf/sysfs"
)

// AddCmd loads one or more objects for a device.
type AddCmd struct {
	Device     string     `arg:"" name:"devpath" help:"sysfs path or sysname of the HID device."`
	Objects    []string   `arg:"" name:"object" help:"HID-BPF object files to load."`
	Properties []KeyValue `short:"p" name:"property" help:"NAME=VALUE property overriding the device's own (can be repeated)."`
}

// Run executes the add command: loads under lock, output outside. Every
// object is attempted; the command fails if any one of them failed.
func (c *AddCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	dev, err := sysfs.Lookup(sysfs.HIDDevicesDir, c.Device)
	if err != nil {
		return err
	}
	props := Properties(c.Properties)

	var (
		loaded   []hidbpf.ArtifactSet
		failures []error
	)
	err = cli.RunWithLock(ctx, rt.Paths.Lock(), func(ctx context.Context) error {
		if rt.Config.Loader.MountBPFFS {
			if err := bpffs.EnsureMounted(bpffs.DefaultMountInfoPath, rt.Paths.BPFFS()); err != nil {
				return fmt.Errorf("ensure bpffs at %s: %w", rt.Paths.BPFFS(), err)
			}
		}
		for _, obj := range c.Objects {
			set, err := rt.Loader.LoadPrograms(ctx, obj, dev, props)
			if err != nil {
				rt.Logger.ErrorContext(ctx, "failed to load object", "object", obj, "sysname", dev.Sysname(), "error", err)
				failures = append(failures, fmt.Errorf("%s: %w", obj, err))
				continue
			}
			loaded = append(loaded, set)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, set := range loaded {
		if err := cli.PrintOut(FormatArtifactSet(set)); err != nil {
			return err
		}
	}
	return errors.Join(failures...)
}
