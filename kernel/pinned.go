package kernel

// PinKind is what a bpffs pin turned out to be when opened.
type PinKind string

const (
	PinKindLink    PinKind = "link"
	PinKindMap     PinKind = "map"
	PinKindProgram PinKind = "program"
	PinKindUnknown PinKind = "unknown"
)

// PinnedObject describes one pinned kernel object found on bpffs.
type PinnedObject struct {
	Path string  `json:"path"`
	Kind PinKind `json:"kind"`
	ID   uint32  `json:"id,omitempty"`
	Name string  `json:"name,omitempty"`
	Type string  `json:"type,omitempty"`
}
