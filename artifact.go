package hidbpf

import "time"

// Strategy names the attach strategy used for an object.
type Strategy string

const (
	StrategyTracing   Strategy = "tracing"
	StrategyStructOps Strategy = "struct_ops"
)

func (s Strategy) String() string { return string(s) }

// ArtifactSet is what one successful device/object load leaves pinned.
// Attached holds the attachment pins (tracing links or struct_ops
// links) in attach order; Maps holds the pinned user maps.
type ArtifactSet struct {
	Dir      string   `json:"dir"`
	Strategy Strategy `json:"strategy"`
	Attached []string `json:"attached"`
	Maps     []string `json:"maps,omitempty"`
}

// Paths returns every pinned path, attachments first.
func (s ArtifactSet) Paths() []string {
	paths := make([]string, 0, len(s.Attached)+len(s.Maps))
	paths = append(paths, s.Attached...)
	return append(paths, s.Maps...)
}

// LoadRecord is the ledger entry persisted for a successful load.
type LoadRecord struct {
	ID         string      `json:"id"`
	Sysname    string      `json:"sysname"`
	DeviceID   uint32      `json:"device_id"`
	ObjectPath string      `json:"object_path"`
	ObjectName string      `json:"object_name"`
	Artifacts  ArtifactSet `json:"artifacts"`
	CreatedAt  time.Time   `json:"created_at"`
}
