package cli

import (
	"context"
	"fmt"

	"github.com/frobware/go-hidbpf"
)

// ListCmd lists recorded loads.
type ListCmd struct {
	OutputFlags
	Device string `arg:"" optional:"" name:"devpath" help:"Only list loads of this device (sysfs path or sysname)."`
}

// Run executes the list command.
func (c *ListCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	var recs []hidbpf.LoadRecord
	if c.Device != "" {
		recs, err = rt.Loader.ListDevice(ctx, SysnameOf(c.Device))
	} else {
		recs, err = rt.Loader.List(ctx)
	}
	if err != nil {
		return err
	}

	if len(recs) == 0 && c.Format() == OutputFormatTable {
		return cli.PrintOut("No loads recorded\n")
	}

	output, err := FormatLoadRecords(recs, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
