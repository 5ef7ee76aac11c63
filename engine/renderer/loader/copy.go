package loader

import (
	"fmt"

	"github.com/thefork190/TheFork-sub000/engine/math"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Copies one texture subresource into a buffer. The buffer receives the
 * subresource laid out as SubresourceFootprint describes.
 */
type TextureCopyDesc struct {
	Texture      gpu.Texture
	MipLevel     uint32
	ArrayLayer   uint32
	Buffer       gpu.Buffer
	BufferOffset uint64
	/** @brief The state the texture is in on QueueType. Restored after the copy. */
	TextureState metadata.ResourceState
	/** @brief The queue that owns the texture. */
	QueueType metadata.QueueType
	/** @brief Optional. Waited before the copy executes. */
	WaitSemaphore gpu.Semaphore
}

// CopyResource queues a texture to buffer readback.
func (l *ResourceLoader) CopyResource(desc *TextureCopyDesc, token *SyncToken) error {
	tex, buf := desc.Texture, desc.Buffer
	if tex == nil || buf == nil {
		return fmt.Errorf("texture copy needs a texture and a buffer: %w", ErrInvalidRequest)
	}
	if tex.NodeIndex() != buf.NodeIndex() {
		return fmt.Errorf("copy from texture `%s` (node %d) to buffer `%s` (node %d): %w", tex.Desc().Name, tex.NodeIndex(), buf.Desc().Name, buf.NodeIndex(), ErrNodeMismatch)
	}
	texDesc := tex.Desc()
	if desc.MipLevel >= texDesc.MipLevels || desc.ArrayLayer >= texDesc.ArraySize {
		return fmt.Errorf("copy of mip %d layer %d of texture `%s`: %w", desc.MipLevel, desc.ArrayLayer, texDesc.Name, ErrInvalidRequest)
	}
	node, err := l.node(tex.NodeIndex())
	if err != nil {
		return err
	}
	fp := SubresourceFootprint(node.caps, texDesc, desc.MipLevel)
	if !math.IsAligned(desc.BufferOffset, uint64(node.caps.UploadBufferTextureAlignment)) {
		return fmt.Errorf("readback offset %d is not aligned to %d: %w", desc.BufferOffset, node.caps.UploadBufferTextureAlignment, ErrInvalidRequest)
	}
	if desc.BufferOffset+fp.Size > buf.Size() {
		return fmt.Errorf("readback of %d bytes at offset %d overflows buffer `%s`: %w", fp.Size, desc.BufferOffset, buf.Desc().Name, ErrInvalidRequest)
	}
	return l.enqueue(node, &textureCopyRequest{desc: *desc}, token)
}

// AddTextureBarrier queues a state transition of a whole texture.
func (l *ResourceLoader) AddTextureBarrier(texture gpu.Texture, current, next metadata.ResourceState, token *SyncToken) error {
	if texture == nil {
		return fmt.Errorf("barrier without a texture: %w", ErrInvalidRequest)
	}
	node, err := l.node(texture.NodeIndex())
	if err != nil {
		return err
	}
	return l.enqueue(node, &textureBarrierRequest{texture: texture, current: current, next: next}, token)
}

func (l *ResourceLoader) issueTextureBarrier(node *nodeState, req *textureBarrierRequest) error {
	if req.current.IsCopyState() {
		return node.copyEngine.transitionTexture(gpu.TextureBarrier{
			Texture:      req.texture,
			CurrentState: req.current,
			NewState:     req.next,
		})
	}
	cmd, err := node.copyEngine.barrierCmd(req.next)
	if err != nil {
		return err
	}
	cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{
		Texture:      req.texture,
		CurrentState: req.current,
		NewState:     req.next,
	}})
	return nil
}

func (l *ResourceLoader) copyTexture(node *nodeState, req *textureCopyRequest) error {
	desc := &req.desc
	engine := node.copyEngine
	cmd, err := engine.acquireCmd()
	if err != nil {
		return err
	}
	if desc.WaitSemaphore != nil {
		engine.addWaitSemaphore(desc.WaitSemaphore)
	}
	state := desc.TextureState
	if state == metadata.ResourceStateUndefined {
		state = DefaultTextureState(desc.Texture.Desc())
	}
	fp := SubresourceFootprint(node.caps, desc.Texture.Desc(), desc.MipLevel)

	cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{
		Texture:      desc.Texture,
		CurrentState: state,
		NewState:     metadata.ResourceStateCopySource,
		Acquire:      true,
		QueueType:    desc.QueueType,
		Subresource:  true,
		MipLevel:     desc.MipLevel,
		ArrayLayer:   desc.ArrayLayer,
	}})
	cmd.CopyTextureToBuffer(&gpu.BufferTextureCopy{
		Buffer:       desc.Buffer,
		BufferOffset: desc.BufferOffset,
		RowPitch:     fp.RowPitch,
		SlicePitch:   fp.SlicePitch,
		Texture:      desc.Texture,
		MipLevel:     desc.MipLevel,
		ArrayLayer:   desc.ArrayLayer,
	})
	cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{
		Texture:      desc.Texture,
		CurrentState: metadata.ResourceStateCopySource,
		NewState:     state,
		Release:      true,
		QueueType:    desc.QueueType,
		Subresource:  true,
		MipLevel:     desc.MipLevel,
		ArrayLayer:   desc.ArrayLayer,
	}})
	return nil
}
