package cli

import (
	"context"
	"fmt"
)

// RemoveCmd removes everything pinned for a device.
type RemoveCmd struct {
	Device string `arg:"" name:"devpath" help:"sysfs path or sysname of the HID device."`
}

// Run executes the remove command: mutation under lock, output outside.
func (c *RemoveCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	sysname := SysnameOf(c.Device)
	if err := cli.RunWithLock(ctx, rt.Paths.Lock(), func(ctx context.Context) error {
		return rt.Loader.RemoveDevice(ctx, sysname)
	}); err != nil {
		return err
	}

	return cli.PrintOutf("Removed %s\n", sysname)
}
