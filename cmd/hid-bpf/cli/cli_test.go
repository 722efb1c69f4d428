package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/cmd/hid-bpf/cli"
	"github.com/frobware/go-hidbpf/kernel"
)

func parse(t *testing.T, args ...string) (*cli.CLI, *kong.Context) {
	t.Helper()
	var c cli.CLI
	parser, err := kong.New(&c, append(cli.KongOptions(), kong.Exit(func(int) { t.Fatal("unexpected exit") }))...)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &c, kctx
}

func TestParse_Add(t *testing.T) {
	c, kctx := parse(t, "--log", "debug", "add", "0003:045E:07A5.000B", "a.bpf.o", "b.bpf.o",
		"-p", "HID_NAME=Mouse", "--property", "MODEL=x=y")

	assert.True(t, strings.HasPrefix(kctx.Command(), "add "), kctx.Command())
	assert.Equal(t, "debug", c.Log)
	assert.Equal(t, "/etc/hid-bpf/hid-bpf.toml", c.Config)
	assert.Equal(t, "0003:045E:07A5.000B", c.Add.Device)
	assert.Equal(t, []string{"a.bpf.o", "b.bpf.o"}, c.Add.Objects)
	assert.Equal(t, []cli.KeyValue{{Key: "HID_NAME", Value: "Mouse"}, {Key: "MODEL", Value: "x=y"}}, c.Add.Properties)
}

func TestParse_ListOutput(t *testing.T) {
	c, _ := parse(t, "list", "-o", "json")
	assert.Equal(t, cli.OutputFormatJSON, c.List.Format())

	c, _ = parse(t, "list")
	assert.Equal(t, cli.OutputFormatTable, c.List.Format())
}

func TestParse_RejectsBadProperty(t *testing.T) {
	var c cli.CLI
	parser, err := kong.New(&c, cli.KongOptions()...)
	require.NoError(t, err)
	_, err = parser.Parse([]string{"add", "dev", "a.o", "-p", "noequals"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected NAME=VALUE")
}

func TestFormatArtifactSet(t *testing.T) {
	set := hidbpf.ArtifactSet{
		Attached: []string{"/p/dev/obj/hid_fix"},
		Maps:     []string{"/p/dev/obj/state"},
	}
	assert.Equal(t, "/p/dev/obj/hid_fix\n/p/dev/obj/state\n", cli.FormatArtifactSet(set))
}

func TestFormatLoadRecords(t *testing.T) {
	recs := []hidbpf.LoadRecord{{
		ID:         "id-1",
		Sysname:    "0003:045E:07A5.000B",
		DeviceID:   11,
		ObjectPath: "/lib/mouse.bpf.o",
		ObjectName: "mouse.bpf",
		Artifacts: hidbpf.ArtifactSet{
			Strategy: hidbpf.StrategyTracing,
			Attached: []string{"/a", "/b"},
			Maps:     []string{"/m"},
		},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}

	table, err := cli.FormatLoadRecords(recs, &cli.OutputFlags{Output: cli.OutputFormatTable})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(table), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "SYSNAME"))
	assert.Equal(t, []string{"0003:045E:07A5.000B", "11", "mouse.bpf", "tracing", "2", "1"}, strings.Fields(lines[1])[:6])

	out, err := cli.FormatLoadRecords(recs, &cli.OutputFlags{Output: cli.OutputFormatJSON})
	require.NoError(t, err)
	var decoded []hidbpf.LoadRecord
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "id-1", decoded[0].ID)
	assert.Equal(t, hidbpf.StrategyTracing, decoded[0].Artifacts.Strategy)
}

func TestFormatInspectedPins(t *testing.T) {
	pins := []cli.InspectedPin{
		{Object: "mouse_bpf", Artifact: "hid_fix", Pinned: kernel.PinnedObject{Path: "/p", Kind: kernel.PinKindLink, ID: 7, Type: "Tracing"}},
		{Object: "mouse_bpf", Artifact: "junk", Pinned: kernel.PinnedObject{Path: "/q", Kind: kernel.PinKindUnknown}},
	}
	out, err := cli.FormatInspectedPins(pins, &cli.OutputFlags{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"mouse_bpf", "hid_fix", "link", "7", "Tracing", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"mouse_bpf", "junk", "unknown", "-", "-", "-"}, strings.Fields(lines[2]))
}

// testCLI returns a CLI whose config keeps every path under a
// temporary directory.
func testCLI(t *testing.T) (*cli.CLI, *bytes.Buffer, string) {
	t.Helper()
	t.Setenv("HIDBPF_LOG", "error")

	dir := t.TempDir()
	pinRoot := filepath.Join(dir, "pins")
	cfg := `
[paths]
pin_root = "` + pinRoot + `"
bpffs = "` + filepath.Join(dir, "bpffs") + `"
runtime = "` + filepath.Join(dir, "run") + `"
attach_object = "` + filepath.Join(dir, "attach.bpf.o") + `"

[loader]
mount_bpffs = false
`
	path := filepath.Join(dir, "hid-bpf.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	var out bytes.Buffer
	return &cli.CLI{Config: path, Out: &out}, &out, pinRoot
}

func TestListCmd_Empty(t *testing.T) {
	c, out, _ := testCLI(t)

	require.NoError(t, (&cli.ListCmd{}).Run(c, context.Background()))
	assert.Equal(t, "No loads recorded\n", out.String())

	out.Reset()
	require.NoError(t, (&cli.ListCmd{OutputFlags: cli.OutputFlags{Output: cli.OutputFormatJSON}}).Run(c, context.Background()))
	assert.Equal(t, "[]\n", out.String())
}

func TestRemoveCmd_RemovesPins(t *testing.T) {
	c, out, pinRoot := testCLI(t)

	objDir := filepath.Join(pinRoot, "0003_045E_07A5_000B", "mouse_bpf")
	require.NoError(t, os.MkdirAll(objDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(objDir, "hid_fix"), nil, 0o600))
	other := filepath.Join(pinRoot, "0003_045E_07A5_000C")
	require.NoError(t, os.MkdirAll(other, 0o755))

	cmd := &cli.RemoveCmd{Device: "/sys/bus/hid/devices/0003:045E:07A5.000B"}
	require.NoError(t, cmd.Run(c, context.Background()))
	assert.Equal(t, "Removed 0003:045E:07A5.000B\n", out.String())

	assert.NoDirExists(t, filepath.Join(pinRoot, "0003_045E_07A5_000B"))
	assert.DirExists(t, other)
}

func TestInspectCmd_ReportsUnknownPins(t *testing.T) {
	c, out, pinRoot := testCLI(t)

	objDir := filepath.Join(pinRoot, "0003_045E_07A5_000B", "mouse_bpf")
	require.NoError(t, os.MkdirAll(objDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(objDir, "hid_fix"), nil, 0o600))

	cmd := &cli.InspectCmd{Device: "0003:045E:07A5.000B", OutputFlags: cli.OutputFlags{Output: cli.OutputFormatJSON}}
	require.NoError(t, cmd.Run(c, context.Background()))

	var pins []cli.InspectedPin
	require.NoError(t, json.Unmarshal(out.Bytes(), &pins))
	require.Len(t, pins, 1)
	assert.Equal(t, "mouse_bpf", pins[0].Object)
	assert.Equal(t, "hid_fix", pins[0].Artifact)
	assert.Equal(t, kernel.PinKindUnknown, pins[0].Pinned.Kind)
}

func TestInspectCmd_NothingPinned(t *testing.T) {
	c, out, _ := testCLI(t)
	require.NoError(t, (&cli.InspectCmd{Device: "0003:045E:07A5.000B"}).Run(c, context.Background()))
	assert.Equal(t, "Nothing pinned for 0003:045E:07A5.000B\n", out.String())
}
