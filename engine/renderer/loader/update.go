package loader

import (
	"fmt"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Scoped CPU write into a buffer. BeginUpdateResource fills MappedData,
 * the caller writes it, EndUpdateResource makes the write visible to the GPU.
 */
type BufferUpdateDesc struct {
	Buffer    gpu.Buffer
	DstOffset uint64
	/** @brief Bytes to update. Zero updates the rest of the buffer. */
	Size uint64
	/** @brief Valid between Begin and End. */
	MappedData []byte

	node  *nodeState
	alloc stagingAlloc
}

/**
 * @brief Scoped CPU write into one texture subresource. Writes always go through
 * staging memory; rows are DstRowStride bytes apart in MappedData.
 */
type TextureUpdateDesc struct {
	Texture    gpu.Texture
	MipLevel   uint32
	ArrayLayer uint32
	/** @brief The state the subresource is in. It is returned to this state after the copy. */
	CurrentState metadata.ResourceState

	/** @brief Valid between Begin and End. */
	MappedData     []byte
	SrcRowStride   uint32
	DstRowStride   uint32
	DstSliceStride uint32
	RowCount       uint32
	Depth          uint32

	node  *nodeState
	alloc stagingAlloc
}

// Row returns the writable bytes of row r of depth slice z.
func (d *TextureUpdateDesc) Row(z, r uint32) []byte {
	offset := uint64(z)*uint64(d.DstSliceStride) + uint64(r)*uint64(d.DstRowStride)
	return d.MappedData[offset : offset+uint64(d.SrcRowStride)]
}

/**
 * @brief The result of flushing a node's upload engine.
 */
type FlushResult struct {
	/** @brief Signalled once the flushed updates completed. Nil if nothing was flushed. */
	Fence gpu.Fence
	/** @brief To be waited by the next submission that consumes the updates. May be nil. */
	Semaphore gpu.Semaphore
}

/**
 * @brief Starts a *BufferUpdateDesc or *TextureUpdateDesc. Staged updates hold the
 * node upload engine until EndUpdateResource; do not flush in between.
 */
func (l *ResourceLoader) BeginUpdateResource(desc interface{}) error {
	switch d := desc.(type) {
	case *BufferUpdateDesc:
		return l.beginBufferUpdate(d)
	case *TextureUpdateDesc:
		return l.beginTextureUpdate(d)
	}
	return fmt.Errorf("begin update %T: %w", desc, ErrUnknownResource)
}

func (l *ResourceLoader) EndUpdateResource(desc interface{}) error {
	switch d := desc.(type) {
	case *BufferUpdateDesc:
		return l.endBufferUpdate(d)
	case *TextureUpdateDesc:
		return l.endTextureUpdate(d)
	}
	return fmt.Errorf("end update %T: %w", desc, ErrUnknownResource)
}

func (l *ResourceLoader) beginBufferUpdate(d *BufferUpdateDesc) error {
	buf := d.Buffer
	if buf == nil {
		return fmt.Errorf("buffer update without a buffer: %w", ErrInvalidRequest)
	}
	size := d.Size
	if size == 0 && d.DstOffset < buf.Size() {
		size = buf.Size() - d.DstOffset
	}
	if size == 0 || d.DstOffset+size > buf.Size() {
		return fmt.Errorf("update of %d bytes at offset %d of buffer `%s` (%d bytes): %w", size, d.DstOffset, buf.Desc().Name, buf.Size(), ErrInvalidRequest)
	}
	d.Size = size

	if mapped := buf.Mapped(); mapped != nil {
		d.node = nil
		d.MappedData = mapped[d.DstOffset : d.DstOffset+size]
		return nil
	}

	node, err := l.node(buf.NodeIndex())
	if err != nil {
		return err
	}
	node.uploadMutex.Lock()
	if node.uploadEngine == nil {
		node.uploadMutex.Unlock()
		return ErrLoaderShutdown
	}
	alloc, err := node.uploadEngine.allocate(size, node.caps.UploadBufferAlignment)
	if err != nil {
		node.uploadMutex.Unlock()
		return err
	}
	d.node = node
	d.alloc = alloc
	d.MappedData = alloc.Data
	return nil
}

func (l *ResourceLoader) endBufferUpdate(d *BufferUpdateDesc) error {
	d.MappedData = nil
	node := d.node
	if node == nil {
		return nil
	}
	d.node = nil
	defer node.uploadMutex.Unlock()

	engine := node.uploadEngine
	cmd, err := engine.acquireCmd()
	if err != nil {
		return err
	}
	cmd.CopyBuffer(&gpu.BufferCopy{
		Src:       d.alloc.Buffer,
		SrcOffset: d.alloc.Offset,
		Dst:       d.Buffer,
		DstOffset: d.DstOffset,
		Size:      d.Size,
	})
	if node.caps.StrictQueueTypeBarriers {
		post, err := engine.acquirePostCopyCmd()
		if err != nil {
			return err
		}
		post.ResourceBarrier([]gpu.BufferBarrier{{
			Buffer:       d.Buffer,
			CurrentState: metadata.ResourceStateCopyDest,
			NewState:     DefaultBufferState(d.Buffer.Desc()),
		}}, nil)
	}
	d.alloc = stagingAlloc{}
	return nil
}

func (l *ResourceLoader) beginTextureUpdate(d *TextureUpdateDesc) error {
	tex := d.Texture
	if tex == nil {
		return fmt.Errorf("texture update without a texture: %w", ErrInvalidRequest)
	}
	desc := tex.Desc()
	if d.MipLevel >= desc.MipLevels || d.ArrayLayer >= desc.ArraySize {
		return fmt.Errorf("update of mip %d layer %d of texture `%s`: %w", d.MipLevel, d.ArrayLayer, desc.Name, ErrInvalidRequest)
	}
	node, err := l.node(tex.NodeIndex())
	if err != nil {
		return err
	}

	fp := SubresourceFootprint(node.caps, desc, d.MipLevel)
	node.uploadMutex.Lock()
	if node.uploadEngine == nil {
		node.uploadMutex.Unlock()
		return ErrLoaderShutdown
	}
	alloc, err := node.uploadEngine.allocate(fp.Size, node.caps.UploadBufferTextureAlignment)
	if err != nil {
		node.uploadMutex.Unlock()
		return err
	}
	d.node = node
	d.alloc = alloc
	d.MappedData = alloc.Data
	d.SrcRowStride = fp.RowBytes
	d.DstRowStride = fp.RowPitch
	d.DstSliceStride = fp.SlicePitch
	d.RowCount = fp.Rows
	d.Depth = fp.Depth
	return nil
}

func (l *ResourceLoader) endTextureUpdate(d *TextureUpdateDesc) error {
	d.MappedData = nil
	node := d.node
	if node == nil {
		return fmt.Errorf("texture update ended without begin: %w", ErrInvalidRequest)
	}
	d.node = nil
	defer node.uploadMutex.Unlock()

	engine := node.uploadEngine
	cmd, err := engine.acquireCmd()
	if err != nil {
		return err
	}
	finalState := d.CurrentState
	if finalState == metadata.ResourceStateUndefined {
		finalState = DefaultTextureState(d.Texture.Desc())
	}
	// defined contents are owned by the graphics queue, which must have released them
	acquire := d.CurrentState != metadata.ResourceStateUndefined && node.caps.StrictQueueTypeBarriers
	cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{
		Texture:      d.Texture,
		CurrentState: d.CurrentState,
		NewState:     metadata.ResourceStateCopyDest,
		Acquire:      acquire,
		QueueType:    metadata.QueueTypeGraphics,
		Subresource:  true,
		MipLevel:     d.MipLevel,
		ArrayLayer:   d.ArrayLayer,
	}})
	cmd.CopyBufferToTexture(&gpu.BufferTextureCopy{
		Buffer:       d.alloc.Buffer,
		BufferOffset: d.alloc.Offset,
		RowPitch:     d.DstRowStride,
		SlicePitch:   d.DstSliceStride,
		Texture:      d.Texture,
		MipLevel:     d.MipLevel,
		ArrayLayer:   d.ArrayLayer,
	})
	if err := engine.transitionTexture(gpu.TextureBarrier{
		Texture:      d.Texture,
		CurrentState: metadata.ResourceStateCopyDest,
		NewState:     finalState,
		Subresource:  true,
		MipLevel:     d.MipLevel,
		ArrayLayer:   d.ArrayLayer,
	}); err != nil {
		return err
	}
	d.alloc = stagingAlloc{}
	return nil
}

/**
 * @brief Submits the updates recorded by EndUpdateResource on a node and moves its
 * upload engine to the next set, waiting for that set if the GPU still uses it.
 * Called once per frame.
 */
func (l *ResourceLoader) FlushResourceUpdates(nodeIndex uint32) (FlushResult, error) {
	node, err := l.node(nodeIndex)
	if err != nil {
		return FlushResult{}, err
	}
	node.uploadMutex.Lock()
	defer node.uploadMutex.Unlock()

	var result FlushResult
	engine := node.uploadEngine
	if engine == nil {
		return result, ErrLoaderShutdown
	}
	if engine.isRecording() {
		if err := engine.flush(); err != nil {
			return result, err
		}
		result.Fence = engine.active().fence
		if err := engine.advance(); err != nil {
			return result, err
		}
	}
	result.Semaphore = engine.consumeSemaphore()
	return result, nil
}

/**
 * @brief Submits the updates recorded on a node and blocks until the GPU ran them.
 * The signalled semaphore stays pending and is handed out by the next FlushResourceUpdates.
 * Use it when an update must land before any frame is drawn.
 */
func (l *ResourceLoader) WaitForResourceUpdates(nodeIndex uint32) error {
	node, err := l.node(nodeIndex)
	if err != nil {
		return err
	}
	node.uploadMutex.Lock()
	defer node.uploadMutex.Unlock()

	engine := node.uploadEngine
	if engine == nil {
		return ErrLoaderShutdown
	}
	if !engine.isRecording() {
		return nil
	}
	set := engine.active()
	if err := engine.flush(); err != nil {
		return err
	}
	if err := engine.advance(); err != nil {
		return err
	}
	return engine.resetSet(set)
}
