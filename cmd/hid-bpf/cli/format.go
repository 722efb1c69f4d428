package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/kernel"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
)

// OutputFlags provides output formatting flags.
type OutputFlags struct {
	Output OutputFormat `short:"o" help:"Output format: table or json." enum:"table,json" default:"table"`
}

// Format returns the selected format.
func (f *OutputFlags) Format() OutputFormat {
	if f.Output == OutputFormatJSON {
		return OutputFormatJSON
	}
	return OutputFormatTable
}

// InspectedPin is one pinned artifact of a device with what the kernel
// reports for it.
type InspectedPin struct {
	Object   string              `json:"object"`
	Artifact string              `json:"artifact"`
	Pinned   kernel.PinnedObject `json:"pinned"`
}

// FormatArtifactSet lists the pinned paths of one load, one per line.
func FormatArtifactSet(set hidbpf.ArtifactSet) string {
	var b strings.Builder
	for _, p := range set.Paths() {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatLoadRecords formats ledger records according to flags.
func FormatLoadRecords(recs []hidbpf.LoadRecord, flags *OutputFlags) (string, error) {
	if flags.Format() == OutputFormatJSON {
		if recs == nil {
			recs = []hidbpf.LoadRecord{}
		}
		return formatJSON(recs)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYSNAME\tID\tOBJECT\tSTRATEGY\tATTACHED\tMAPS\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\n",
			r.Sysname, r.DeviceID, r.ObjectName, r.Artifacts.Strategy,
			len(r.Artifacts.Attached), len(r.Artifacts.Maps),
			r.CreatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
	return b.String(), nil
}

// FormatInspectedPins formats inspected pins according to flags.
func FormatInspectedPins(pins []InspectedPin, flags *OutputFlags) (string, error) {
	if flags.Format() == OutputFormatJSON {
		if pins == nil {
			pins = []InspectedPin{}
		}
		return formatJSON(pins)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OBJECT\tARTIFACT\tKIND\tID\tTYPE\tNAME")
	for _, p := range pins {
		id := "-"
		if p.Pinned.ID != 0 {
			id = fmt.Sprint(p.Pinned.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Object, p.Artifact, p.Pinned.Kind, id, dash(p.Pinned.Type), dash(p.Pinned.Name))
	}
	w.Flush()
	return b.String(), nil
}

func formatJSON(v any) (string, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output) + "\n", nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
