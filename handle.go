package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/dag"
)

// Handle names one version of a logical resource. Handles are returned by
// the create, import, read and write calls and are only valid until the
// next Clear. The zero Handle is invalid.
type Handle struct {
	frame    uint64
	resource int
	node     dag.NodeID
}

// IsValid reports whether h was returned by a Graph. It does not check that
// h belongs to the current frame.
func (h Handle) IsValid() bool { return h.frame != 0 }

// String implements fmt.Stringer.
func (h Handle) String() string {
	if !h.IsValid() {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(r%d@n%d)", h.resource, h.node)
}
