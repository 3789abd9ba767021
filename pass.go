package framegraph

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/dag"
	"github.com/gogpu/framegraph/device"
)

// PassKind selects how a pass is scheduled.
type PassKind uint8

// Pass kinds.
const (
	// KindGraphics may declare color and depth attachments; the graph opens
	// a render pass around its callback.
	KindGraphics PassKind = iota

	// KindCompute runs dispatches on the primary queue.
	KindCompute

	// KindAsyncCompute runs on the async-compute queue. Cross-queue
	// dependencies are synchronized with fences.
	KindAsyncCompute

	// KindCopy runs transfers on the primary queue.
	KindCopy
)

// String implements fmt.Stringer.
func (k PassKind) String() string {
	switch k {
	case KindGraphics:
		return "graphics"
	case KindCompute:
		return "compute"
	case KindAsyncCompute:
		return "async-compute"
	case KindCopy:
		return "copy"
	}
	return fmt.Sprintf("PassKind(%d)", k)
}

// Attachment holds the load/store behaviour of a color attachment.
type Attachment struct {
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearValue gputypes.Color
}

// DepthAttachment holds the load/store behaviour of a depth/stencil
// attachment. A ReadOnly attachment is declared as a read.
type DepthAttachment struct {
	ReadOnly          bool
	DepthLoadOp       gputypes.LoadOp
	DepthStoreOp      gputypes.StoreOp
	DepthClearValue   float32
	StencilLoadOp     gputypes.LoadOp
	StencilStoreOp    gputypes.StoreOp
	StencilClearValue uint32
}

type edgeKind uint8

const (
	edgeRead edgeKind = iota
	// edgeWrite runs from the version being replaced to the writing pass.
	edgeWrite
	// edgeProduce runs from the writing pass to the new version.
	edgeProduce
)

// edge is the payload carried by the dag. Read and write edges start at a
// version node and end at a pass; produce edges start at a pass.
type edge struct {
	from, to dag.NodeID
	kind     edgeKind
	resource int
	access   device.Access
	sub      device.Subresource

	// prev is the version a produce edge replaces.
	prev dag.NodeID
}

func (e edge) From() dag.NodeID { return e.from }
func (e edge) To() dag.NodeID   { return e.to }

type colorBinding struct {
	resource int
	index    int
	sub      device.Subresource
	Attachment
}

type depthBinding struct {
	resource int
	sub      device.Subresource
	DepthAttachment
}

// Pass is one scheduled unit of GPU work.
type Pass struct {
	name  string
	kind  PassKind
	index int
	node  *dag.Node
	queue device.QueueKind

	exec func(*ExecContext)

	colors []colorBinding
	depth  *depthBinding
	writes []edge

	// Resolved by Compile.
	crossing []device.Barrier
	aliasing []device.Barrier
	barriers []device.Barrier

	// waitValue is the value of the other queue's fence this pass waits for
	// before it runs; signalValue is the value its own queue's fence is
	// signalled to after it runs. Zero means none.
	waitValue   uint64
	signalValue uint64
}

// Name returns the name given to AddPass.
func (p *Pass) Name() string { return p.name }

// Kind returns the declared kind.
func (p *Pass) Kind() PassKind { return p.kind }

// Index returns the declaration index within the frame.
func (p *Pass) Index() int { return p.index }

// Queue returns the queue the pass is scheduled on. It differs from the
// declared kind only when async compute is disabled.
func (p *Pass) Queue() device.QueueKind { return p.queue }

// Culled reports whether the pass was removed by the last Compile.
func (p *Pass) Culled() bool { return p.node.Culled() }

// Barriers returns the state transitions replayed before the callback, in
// order: queue-crossing transitions, aliasing barriers, then ordinary
// transitions.
func (p *Pass) Barriers() []device.Barrier {
	out := make([]device.Barrier, 0, len(p.crossing)+len(p.aliasing)+len(p.barriers))
	out = append(out, p.crossing...)
	out = append(out, p.aliasing...)
	return append(out, p.barriers...)
}

// Wait returns the fence value of the other queue this pass waits for, or
// zero.
func (p *Pass) Wait() uint64 { return p.waitValue }

// Signal returns the fence value this pass signals on its own queue, or
// zero.
func (p *Pass) Signal() uint64 { return p.signalValue }

// HasAttachments reports whether a render pass is opened around the
// callback.
func (p *Pass) HasAttachments() bool { return len(p.colors) > 0 || p.depth != nil }

func (p *Pass) reset() {
	p.crossing = p.crossing[:0]
	p.aliasing = p.aliasing[:0]
	p.barriers = p.barriers[:0]
	p.waitValue, p.signalValue = 0, 0
}

// PassOf is a Pass together with its typed data.
type PassOf[D any] struct {
	*Pass

	// Data is filled by the setup function and handed to the execute
	// function. It is recycled on Clear.
	Data *D
}
