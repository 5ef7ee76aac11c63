// Package gpu is the device abstraction the resource loader records and submits
// copy work against. Backends live in sibling packages.
package gpu

import (
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Device properties that change how uploads are laid out and synchronized.
 * Resolved once when the backend is selected.
 */
type Capabilities struct {
	/** @brief CPU and GPU share memory; every buffer is CPU mapped. */
	UnifiedMemory bool
	/**
	 * @brief Transfer queues may only perform copy state transitions. Any other
	 * transition must be recorded on a graphics queue after the copy.
	 */
	StrictQueueTypeBarriers bool
	/** @brief Row pitch alignment of buffer<->texture copies, in bytes. */
	UploadBufferTextureRowAlignment uint32
	/** @brief Alignment of each texture subresource inside a buffer, in bytes. */
	UploadBufferTextureAlignment uint32
	/** @brief Alignment of buffer to buffer copy offsets, in bytes. */
	UploadBufferAlignment uint32
}

const (
	DefaultUploadBufferTextureRowAlignment = 256
	DefaultUploadBufferTextureAlignment    = 512
	DefaultUploadBufferAlignment           = 16
)

// WithDefaults fills unset alignments with the common defaults.
func (c Capabilities) WithDefaults() Capabilities {
	if c.UploadBufferTextureRowAlignment == 0 {
		c.UploadBufferTextureRowAlignment = DefaultUploadBufferTextureRowAlignment
	}
	if c.UploadBufferTextureAlignment == 0 {
		c.UploadBufferTextureAlignment = DefaultUploadBufferTextureAlignment
	}
	if c.UploadBufferAlignment == 0 {
		c.UploadBufferAlignment = DefaultUploadBufferAlignment
	}
	return c
}

/**
 * @brief One GPU (node). All objects created from a device belong to its node.
 */
type Device interface {
	NodeIndex() uint32
	Capabilities() Capabilities
	Name() string

	NewQueue(queueType metadata.QueueType) (Queue, error)
	NewCmdPool(queue Queue) (CmdPool, error)
	NewFence() (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewBuffer(desc *metadata.BufferDesc) (Buffer, error)
	NewTexture(desc *metadata.TextureDesc) (Texture, error)

	/** @brief Blocks until every queue of the device is idle. */
	WaitIdle() error
	Destroy() error
}

type SubmitDesc struct {
	Cmds             []CmdBuffer
	WaitSemaphores   []Semaphore
	SignalSemaphores []Semaphore
	/** @brief Optional. Signalled once every command buffer finished executing. */
	Fence Fence
}

/**
 * @brief A hardware queue. Submissions to one queue execute in order.
 */
type Queue interface {
	Type() metadata.QueueType
	Family() uint32
	Submit(desc *SubmitDesc) error
	WaitIdle() error
	Destroy()
}

type CmdPool interface {
	NewCmd() (CmdBuffer, error)
	/** @brief Resets every command buffer allocated from the pool. */
	Reset() error
	Destroy()
}

type BufferCopy struct {
	Src       Buffer
	SrcOffset uint64
	Dst       Buffer
	DstOffset uint64
	Size      uint64
}

/**
 * @brief Copies one whole subresource between a buffer and a texture. Rows are
 * RowPitch bytes apart and depth slices SlicePitch bytes apart in the buffer.
 */
type BufferTextureCopy struct {
	Buffer       Buffer
	BufferOffset uint64
	RowPitch     uint32
	SlicePitch   uint32
	Texture      Texture
	MipLevel     uint32
	ArrayLayer   uint32
}

type BufferBarrier struct {
	Buffer       Buffer
	CurrentState metadata.ResourceState
	NewState     metadata.ResourceState
	/** @brief Acquire ownership from QueueType. */
	Acquire bool
	/** @brief Release ownership to QueueType. */
	Release   bool
	QueueType metadata.QueueType
}

type TextureBarrier struct {
	Texture      Texture
	CurrentState metadata.ResourceState
	NewState     metadata.ResourceState
	Acquire      bool
	Release      bool
	QueueType    metadata.QueueType
	/** @brief Only transition MipLevel/ArrayLayer instead of the whole texture. */
	Subresource bool
	MipLevel    uint32
	ArrayLayer  uint32
}

/**
 * @brief Records commands. Recording functions never fail; errors surface on End or Submit.
 */
type CmdBuffer interface {
	Begin() error
	End() error
	CopyBuffer(copy *BufferCopy)
	CopyBufferToTexture(copy *BufferTextureCopy)
	CopyTextureToBuffer(copy *BufferTextureCopy)
	ResourceBarrier(buffers []BufferBarrier, textures []TextureBarrier)
	Queue() Queue
	Destroy()
}

type FenceStatus int

const (
	FenceStatusNotSubmitted FenceStatus = iota
	FenceStatusIncomplete
	FenceStatusComplete
)

type Fence interface {
	Status() FenceStatus
	/**
	 * @brief Blocks until the fence signals, then returns it to the not submitted state.
	 * Waiting on a fence that was never submitted returns immediately.
	 */
	Wait() error
	Destroy()
}

/** @brief GPU to GPU synchronization between queue submissions. */
type Semaphore interface {
	Destroy()
}

type Buffer interface {
	Desc() *metadata.BufferDesc
	Size() uint64
	NodeIndex() uint32
	/** @brief The persistent CPU mapping, or nil when the buffer is not mapped. */
	Mapped() []byte
	Map() ([]byte, error)
	Unmap()
	Destroy() error
}

type Texture interface {
	Desc() *metadata.TextureDesc
	NodeIndex() uint32
	Destroy() error
}
