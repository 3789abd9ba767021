package device

// CommandBuffer is an open command list for one queue. Implementations carry
// whatever recording state they need; the frame graph only passes it back to
// the Device and to pass callbacks.
type CommandBuffer interface {
	// Queue returns the queue the command buffer will be submitted to.
	Queue() QueueKind
}

// Device is the capability surface the frame graph consumes.
//
// All methods are called from the goroutine that owns the frame. Creation
// failures are returned as errors; the frame graph propagates them and never
// retries.
type Device interface {
	// CreateTexture creates a texture. A nil placement requests dedicated
	// memory; otherwise the texture aliases the given heap range.
	CreateTexture(desc *TextureDesc, at *Placement) (ResourceID, error)

	// CreateBuffer creates a buffer, placed like CreateTexture.
	CreateBuffer(desc *BufferDesc, at *Placement) (ResourceID, error)

	// DestroyResource releases a texture or buffer.
	DestroyResource(id ResourceID)

	// TextureAllocation returns the byte size and alignment a placed
	// texture needs.
	TextureAllocation(desc *TextureDesc) (size, align uint64)

	// BufferAllocation returns the byte size and alignment a placed buffer
	// needs.
	BufferAllocation(desc *BufferDesc) (size, align uint64)

	// CreateHeap reserves a block of device memory.
	CreateHeap(size uint64, label string) (HeapID, error)

	// DestroyHeap releases a heap. Every resource placed in it must have been
	// destroyed first.
	DestroyHeap(id HeapID)

	// CreateShaderView creates a descriptor for res.
	CreateShaderView(res ResourceID, view ViewDesc) (ViewID, error)

	// DestroyShaderView releases a descriptor.
	DestroyShaderView(id ViewID)

	// CreateFence creates a timeline fence starting at zero.
	CreateFence(label string) (FenceID, error)

	// DestroyFence releases a fence.
	DestroyFence(id FenceID)

	// OpenCommandBuffer begins recording a new command buffer for q.
	OpenCommandBuffer(q QueueKind) (CommandBuffer, error)

	// EmitResourceBarrier records a barrier.
	EmitResourceBarrier(cmd CommandBuffer, b Barrier)

	// BeginRenderPass opens a render pass scope. depth may be nil.
	BeginRenderPass(cmd CommandBuffer, colors []ColorTarget, depth *DepthTarget)

	// EndRenderPass closes the scope opened by BeginRenderPass.
	EndRenderPass(cmd CommandBuffer)

	// SubmitAndSignal closes cmd, submits it and, when fence is non-zero,
	// signals fence to value once the work completes on the GPU.
	SubmitAndSignal(cmd CommandBuffer, fence FenceID, value uint64) error

	// WaitOnFence makes the GPU wait, before executing cmd, until fence
	// reaches value. The CPU does not block.
	WaitOnFence(cmd CommandBuffer, fence FenceID, value uint64)

	// CurrentFrameIndex returns a monotonically increasing frame counter.
	CurrentFrameIndex() uint64
}
