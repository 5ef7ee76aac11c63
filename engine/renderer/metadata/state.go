package metadata

/**
 * @brief The state a GPU resource is in. States are bit flags; read-only states
 * may be combined.
 */
type ResourceState uint32

const (
	ResourceStateUndefined               ResourceState = 0
	ResourceStateVertexAndConstantBuffer ResourceState = 0x1
	ResourceStateIndexBuffer             ResourceState = 0x2
	ResourceStateRenderTarget            ResourceState = 0x4
	ResourceStateUnorderedAccess         ResourceState = 0x8
	ResourceStateDepthWrite              ResourceState = 0x10
	ResourceStateDepthRead               ResourceState = 0x20
	ResourceStateNonPixelShaderResource  ResourceState = 0x40
	ResourceStatePixelShaderResource     ResourceState = 0x80
	ResourceStateShaderResource          ResourceState = ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource
	ResourceStateStreamOut               ResourceState = 0x100
	ResourceStateIndirectArgument        ResourceState = 0x200
	ResourceStateCopyDest                ResourceState = 0x400
	ResourceStateCopySource              ResourceState = 0x800
	ResourceStateGenericRead             ResourceState = ResourceStateVertexAndConstantBuffer | ResourceStateIndexBuffer | ResourceStateShaderResource | ResourceStateIndirectArgument | ResourceStateCopySource
	ResourceStatePresent                 ResourceState = 0x1000
	ResourceStateCommon                  ResourceState = 0x2000
)

// IsCopyState reports whether the state is one a transfer queue may own.
func (s ResourceState) IsCopyState() bool {
	return s == ResourceStateUndefined || s == ResourceStateCommon ||
		s == ResourceStateCopyDest || s == ResourceStateCopySource
}

func (s ResourceState) Has(flag ResourceState) bool {
	return s&flag == flag
}

/** @brief The kind of hardware queue a command buffer is submitted to. */
type QueueType int

const (
	QueueTypeGraphics QueueType = iota
	QueueTypeTransfer
	QueueTypeCompute
	QueueTypeMax
)

func (q QueueType) String() string {
	switch q {
	case QueueTypeGraphics:
		return "graphics"
	case QueueTypeTransfer:
		return "transfer"
	case QueueTypeCompute:
		return "compute"
	}
	return "unknown"
}

/** @brief Where a resource lives and how the CPU may access it. */
type MemoryUsage int

const (
	MemoryUsageUnknown MemoryUsage = iota
	/** @brief Device local memory, not CPU visible on discrete GPUs. */
	MemoryUsageGPUOnly
	/** @brief Host memory, always CPU visible. Staging buffers use this. */
	MemoryUsageCPUOnly
	/** @brief CPU writes, GPU reads. Dynamic uniform and upload buffers. */
	MemoryUsageCPUToGPU
	/** @brief GPU writes, CPU reads. Readback buffers. */
	MemoryUsageGPUToCPU
)

// IsCPUVisible reports whether memory of this usage is always host mapped.
func (m MemoryUsage) IsCPUVisible() bool {
	return m == MemoryUsageCPUOnly || m == MemoryUsageCPUToGPU || m == MemoryUsageGPUToCPU
}
