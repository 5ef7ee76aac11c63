package metadata

type BufferFlag uint32

const (
	BufferFlagNone BufferFlag = 0x0
	/** @brief Keep the buffer mapped for its whole lifetime. */
	BufferFlagPersistentMap BufferFlag = 0x1
	/** @brief The buffer is owned by the caller and must not be destroyed with its parent. */
	BufferFlagNoDestroy BufferFlag = 0x2
)

type DescriptorType uint32

const (
	DescriptorTypeUndefined      DescriptorType = 0x0
	DescriptorTypeUniformBuffer  DescriptorType = 0x1
	DescriptorTypeRWBuffer       DescriptorType = 0x2
	DescriptorTypeVertexBuffer   DescriptorType = 0x4
	DescriptorTypeIndexBuffer    DescriptorType = 0x8
	DescriptorTypeTexture        DescriptorType = 0x10
	DescriptorTypeRWTexture      DescriptorType = 0x20
	DescriptorTypeTextureCube    DescriptorType = 0x40
	DescriptorTypeIndirectBuffer DescriptorType = 0x80
)

/**
 * @brief Describes a GPU buffer to be created.
 */
type BufferDesc struct {
	/** @brief Debug name of the buffer. */
	Name string
	/** @brief The size of the buffer in bytes. */
	Size uint64
	/** @brief Required alignment of the buffer start. Zero means device default. */
	Alignment uint32
	/** @brief Where the buffer lives. */
	MemoryUsage MemoryUsage
	Flags       BufferFlag
	/** @brief How the buffer is going to be bound. */
	Descriptors DescriptorType
	/** @brief The state the buffer is expected to be in once loaded. */
	StartState ResourceState
	/** @brief The GPU the buffer belongs to. */
	NodeIndex uint32
}
