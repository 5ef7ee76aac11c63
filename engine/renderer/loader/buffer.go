package loader

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Describes a buffer upload.
 */
type BufferLoadDesc struct {
	/** @brief The destination. Created from Desc when nil and set before AddBuffer returns. */
	Buffer gpu.Buffer
	Desc   *metadata.BufferDesc
	/** @brief Bytes to upload. Owned by the caller until the token completes. */
	Data []byte
	/** @brief Zero the destination range when no Data or SrcBuffer is given. */
	ForceReset bool
	DstOffset  uint64
	/** @brief Copy from this buffer instead of Data. Used for GPU to CPU readback. */
	SrcBuffer gpu.Buffer
	SrcOffset uint64
	/** @brief Bytes to copy. Zero copies everything that fits. */
	Size uint64
}

// DefaultBufferState is the state a buffer is used in after its first upload.
func DefaultBufferState(desc *metadata.BufferDesc) metadata.ResourceState {
	if desc.StartState != metadata.ResourceStateUndefined {
		return desc.StartState
	}
	if desc.MemoryUsage == metadata.MemoryUsageGPUToCPU {
		return metadata.ResourceStateCopyDest
	}
	var state metadata.ResourceState
	if desc.Descriptors&(metadata.DescriptorTypeVertexBuffer|metadata.DescriptorTypeUniformBuffer) != 0 {
		state |= metadata.ResourceStateVertexAndConstantBuffer
	}
	if desc.Descriptors&metadata.DescriptorTypeIndexBuffer != 0 {
		state |= metadata.ResourceStateIndexBuffer
	}
	if desc.Descriptors&metadata.DescriptorTypeIndirectBuffer != 0 {
		state |= metadata.ResourceStateIndirectArgument
	}
	if desc.Descriptors&metadata.DescriptorTypeRWBuffer != 0 {
		state = metadata.ResourceStateUnorderedAccess
	}
	if state == metadata.ResourceStateUndefined {
		state = metadata.ResourceStateCommon
	}
	return state
}

func (l *ResourceLoader) createBuffer(desc *metadata.BufferDesc) (gpu.Buffer, error) {
	node, err := l.node(desc.NodeIndex)
	if err != nil {
		return nil, err
	}
	created := *desc
	if created.Name == "" {
		created.Name = "buffer-" + uuid.NewString()
	}
	return node.device.NewBuffer(&created)
}

/**
 * @brief Creates and/or fills a buffer. Mapped destinations are written immediately
 * without a token; everything else is copied by the worker.
 */
func (l *ResourceLoader) AddBuffer(desc *BufferLoadDesc, token *SyncToken) error {
	if desc.Buffer == nil {
		if desc.Desc == nil {
			return fmt.Errorf("buffer load without buffer or description: %w", ErrInvalidRequest)
		}
		buf, err := l.createBuffer(desc.Desc)
		if err != nil {
			core.LogError("failed to create buffer `%s`: %s", desc.Desc.Name, err)
			return err
		}
		desc.Buffer = buf
	}
	dst := desc.Buffer
	if desc.Data == nil && desc.SrcBuffer == nil && !desc.ForceReset {
		return nil
	}
	if desc.DstOffset > dst.Size() {
		return fmt.Errorf("offset %d past the end of buffer `%s`: %w", desc.DstOffset, dst.Desc().Name, ErrInvalidRequest)
	}

	size := desc.Size
	if size == 0 {
		size = dst.Size() - desc.DstOffset
		switch {
		case desc.SrcBuffer != nil:
			size = min(size, desc.SrcBuffer.Size()-min(desc.SrcOffset, desc.SrcBuffer.Size()))
		case desc.Data != nil:
			size = min(size, uint64(len(desc.Data)))
		}
	}
	if desc.DstOffset+size > dst.Size() {
		return fmt.Errorf("%d bytes at offset %d overflow buffer `%s` of %d bytes: %w", size, desc.DstOffset, dst.Desc().Name, dst.Size(), ErrInvalidRequest)
	}
	if desc.Data != nil && uint64(len(desc.Data)) < size {
		return fmt.Errorf("%d bytes of data for a %d byte upload: %w", len(desc.Data), size, ErrInvalidRequest)
	}
	if size == 0 {
		return nil
	}

	req := &bufferRequest{
		buffer:     dst,
		dstOffset:  desc.DstOffset,
		size:       size,
		data:       desc.Data,
		zero:       desc.Data == nil,
		startState: DefaultBufferState(dst.Desc()),
	}

	if src := desc.SrcBuffer; src != nil {
		if src.NodeIndex() != dst.NodeIndex() {
			return fmt.Errorf("copy from `%s` (node %d) to `%s` (node %d): %w", src.Desc().Name, src.NodeIndex(), dst.Desc().Name, dst.NodeIndex(), ErrNodeMismatch)
		}
		if desc.SrcOffset+size > src.Size() {
			return fmt.Errorf("%d bytes at offset %d overflow source buffer `%s`: %w", size, desc.SrcOffset, src.Desc().Name, ErrInvalidRequest)
		}
		if aliases(src, desc.SrcOffset, dst, desc.DstOffset) {
			return nil
		}
		req.srcBuffer = src
		req.srcOffset = desc.SrcOffset
		req.data = nil
		req.zero = false
	} else if mapped := dst.Mapped(); mapped != nil {
		region := mapped[desc.DstOffset : desc.DstOffset+size]
		if req.zero {
			clear(region)
		} else {
			copy(region, desc.Data[:size])
		}
		return nil
	}

	node, err := l.node(dst.NodeIndex())
	if err != nil {
		return err
	}
	if token == nil && desc.Data != nil {
		core.LogWarn("buffer `%s` upload of caller owned data without a token, the data may not be released safely", dst.Desc().Name)
	}
	return l.enqueue(node, req, token)
}

// aliases reports whether both ranges are the same CPU visible memory.
func aliases(src gpu.Buffer, srcOffset uint64, dst gpu.Buffer, dstOffset uint64) bool {
	s, d := src.Mapped(), dst.Mapped()
	if s == nil || d == nil || srcOffset >= uint64(len(s)) || dstOffset >= uint64(len(d)) {
		return false
	}
	return &s[srcOffset] == &d[dstOffset]
}

func (l *ResourceLoader) loadBuffer(node *nodeState, req *bufferRequest) error {
	engine := node.copyEngine
	src, srcOffset := req.srcBuffer, req.srcOffset
	if src == nil {
		alloc, err := engine.allocate(req.size, node.caps.UploadBufferAlignment)
		if err != nil {
			return err
		}
		if req.zero {
			clear(alloc.Data)
		} else {
			copy(alloc.Data, req.data[:req.size])
		}
		req.data = nil
		src, srcOffset = alloc.Buffer, alloc.Offset
	}

	cmd, err := engine.acquireCmd()
	if err != nil {
		return err
	}
	cmd.CopyBuffer(&gpu.BufferCopy{
		Src:       src,
		SrcOffset: srcOffset,
		Dst:       req.buffer,
		DstOffset: req.dstOffset,
		Size:      req.size,
	})
	if node.caps.StrictQueueTypeBarriers {
		post, err := engine.acquirePostCopyCmd()
		if err != nil {
			return err
		}
		post.ResourceBarrier([]gpu.BufferBarrier{{
			Buffer:       req.buffer,
			CurrentState: metadata.ResourceStateCopyDest,
			NewState:     req.startState,
		}}, nil)
	}
	return nil
}
