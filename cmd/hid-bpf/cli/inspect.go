package cli

import (
	"context"
	"fmt"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/bpffs"
	"github.com/frobware/go-hidbpf/kernel"
)

// InspectCmd shows the pins of a device and what they refer to.
type InspectCmd struct {
	OutputFlags
	Device string `arg:"" name:"devpath" help:"sysfs path or sysname of the HID device."`
}

// Run executes the inspect command.
func (c *InspectCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	scanner := bpffs.NewScanner(rt.Paths.PinRoot()).WithOnMalformed(func(path string, err error) {
		rt.Logger.WarnContext(ctx, "unexpected entry in pin tree", "path", path, "error", err)
	})

	state, err := scanner.ScanDevice(ctx, hidbpf.Sanitize(SysnameOf(c.Device)))
	if err != nil {
		return err
	}

	pins := make([]InspectedPin, 0, len(state.Pins))
	for _, p := range state.Pins {
		obj, err := rt.Kernel.InspectPin(p.Path)
		if err != nil {
			rt.Logger.WarnContext(ctx, "failed to inspect pin", "path", p.Path, "error", err)
			obj = kernel.PinnedObject{Path: p.Path, Kind: kernel.PinKindUnknown}
		}
		pins = append(pins, InspectedPin{Object: p.Object, Artifact: p.Name, Pinned: obj})
	}

	if len(pins) == 0 && c.Format() == OutputFormatTable {
		return cli.PrintOutf("Nothing pinned for %s\n", SysnameOf(c.Device))
	}

	output, err := FormatInspectedPins(pins, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
