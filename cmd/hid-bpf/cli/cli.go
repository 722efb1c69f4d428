// Package cli provides the Kong-based command-line interface for
// hid-bpf.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-hidbpf/config"
	"github.com/frobware/go-hidbpf/lock"
	"github.com/frobware/go-hidbpf/logging"
)

// CLI is the root command structure for hid-bpf.
type CLI struct {
	Config string `name:"config" help:"Config file path." default:"${default_config_path}"`
	Log    string `name:"log" help:"Log spec (e.g., 'warn,loader=debug'). Overrides ${log_env}."`

	Add     AddCmd     `cmd:"" help:"Load HID-BPF objects for a device."`
	Remove  RemoveCmd  `cmd:"" help:"Remove every pin and record of a device."`
	List    ListCmd    `cmd:"" help:"List recorded loads."`
	Inspect InspectCmd `cmd:"" help:"Show what is pinned for a device."`

	// Out receives command output; nil means os.Stdout.
	Out io.Writer `kong:"-"`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("hid-bpf"),
		kong.Description("Load and attach HID-BPF programs to HID devices."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.TypeMapper(reflect.TypeOf(KeyValue{}), keyValueMapper()),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
			"log_env":             logging.EnvVar,
		},
	}
}

// LoadConfig loads the configuration from the config file path.
func (c *CLI) LoadConfig() (config.Config, error) {
	return config.Load(c.Config)
}

// Logger creates a logger for CLI commands. The level defaults to
// warn; --log, then HIDBPF_LOG, then the config file override it.
func (c *CLI) Logger(cfg config.Config) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Options{
		CLISpec:      c.Log,
		EnvSpec:      os.Getenv(logging.EnvVar),
		ConfigSpec:   cfg.Logging.ToSpec(),
		DefaultLevel: logging.LevelWarn,
		Format:       format,
		Output:       os.Stderr,
	})
}

// RunWithLock runs fn under the writer lock at lockPath.
func (c *CLI) RunWithLock(ctx context.Context, lockPath string, fn func(context.Context) error) error {
	return lock.Run(ctx, lockPath, fn)
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// WriteOut writes b to the command output. A short write is an error.
func (c *CLI) WriteOut(b []byte) error {
	n, err := c.out().Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// PrintOut writes s to the command output.
func (c *CLI) PrintOut(s string) error {
	return c.WriteOut([]byte(s))
}

// PrintOutf formats to the command output.
func (c *CLI) PrintOutf(format string, args ...any) error {
	return c.PrintOut(fmt.Sprintf(format, args...))
}
