package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Describes a texture load.
 *
 * File loads (FileName set) create the texture on the worker and store it in
 * *Texture; read it once the token completed. Without FileName, Desc creates the
 * texture immediately and ForceReset zero fills every subresource of *Texture.
 */
type TextureLoadDesc struct {
	Texture *gpu.Texture
	/** @brief Creation description. For file loads, non zero StartState, Descriptors and Name override the file's. */
	Desc       *metadata.TextureDesc
	FileName   string
	ForceReset bool
	/** @brief The GPU a file backed texture is created on. */
	NodeIndex uint32
}

// DefaultTextureState is the state a texture is left in after its upload.
func DefaultTextureState(desc *metadata.TextureDesc) metadata.ResourceState {
	if desc.StartState != metadata.ResourceStateUndefined {
		return desc.StartState
	}
	return metadata.ResourceStateShaderResource
}

func (l *ResourceLoader) AddTexture(desc *TextureLoadDesc, token *SyncToken) error {
	if desc.Texture == nil {
		return fmt.Errorf("texture load without an output texture: %w", ErrInvalidRequest)
	}

	if desc.FileName != "" {
		if l.fsys == nil {
			return fmt.Errorf("texture `%s` load without a file system: %w", desc.FileName, ErrInvalidRequest)
		}
		node, err := l.node(desc.NodeIndex)
		if err != nil {
			return err
		}
		return l.enqueue(node, &textureRequest{
			out:       desc.Texture,
			fileName:  desc.FileName,
			override:  desc.Desc,
			nodeIndex: desc.NodeIndex,
		}, token)
	}

	if *desc.Texture == nil {
		if desc.Desc == nil {
			return fmt.Errorf("texture load without file name, texture or description: %w", ErrInvalidRequest)
		}
		node, err := l.node(desc.Desc.NodeIndex)
		if err != nil {
			return err
		}
		created := desc.Desc.Normalized()
		if created.Name == "" {
			created.Name = "texture-" + uuid.NewString()
		}
		tex, err := node.device.NewTexture(&created)
		if err != nil {
			core.LogError("failed to create texture `%s`: %s", created.Name, err)
			return err
		}
		*desc.Texture = tex
	}
	if !desc.ForceReset {
		return nil
	}

	tex := *desc.Texture
	node, err := l.node(tex.NodeIndex())
	if err != nil {
		return err
	}
	return l.enqueue(node, &textureRequest{
		out:       desc.Texture,
		texture:   tex,
		nodeIndex: tex.NodeIndex(),
		zero:      true,
	}, token)
}

// openTexture opens the file of a request and creates its texture.
func (l *ResourceLoader) openTexture(node *nodeState, req *textureRequest) error {
	f, err := l.fsys.Open(req.fileName)
	if err != nil {
		return err
	}
	reader, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
		req.closer = func() error { return nil }
	} else {
		req.closer = f.Close
	}

	container, err := loaders.OpenTexture(reader, req.fileName)
	if err != nil {
		return err
	}
	desc := container.Desc
	desc.NodeIndex = req.nodeIndex
	if o := req.override; o != nil {
		if o.StartState != metadata.ResourceStateUndefined {
			desc.StartState = o.StartState
		}
		if o.Descriptors != metadata.DescriptorTypeUndefined {
			desc.Descriptors = o.Descriptors
		}
		if o.Name != "" {
			desc.Name = o.Name
		}
		desc.Flags |= o.Flags
	}
	tex, err := node.device.NewTexture(&desc)
	if err != nil {
		return err
	}
	req.container = container
	req.texture = tex
	*req.out = tex
	return nil
}

func (l *ResourceLoader) closeTexture(req *textureRequest) {
	if req.closer != nil {
		if err := req.closer(); err != nil {
			core.LogWarn("closing `%s`: %s", req.fileName, err)
		}
		req.closer = nil
	}
	req.container = nil
}

func (l *ResourceLoader) loadTexture(node *nodeState, req *textureRequest) error {
	err := l.streamTexture(node, req)
	if !errors.Is(err, ErrStagingBufferFull) {
		l.closeTexture(req)
	}
	return err
}

/**
 * @brief Uploads every subresource of the request, resuming where a previous
 * attempt ran out of staging memory.
 */
func (l *ResourceLoader) streamTexture(node *nodeState, req *textureRequest) error {
	if req.texture == nil {
		if err := l.openTexture(node, req); err != nil {
			return err
		}
	}
	engine := node.copyEngine
	desc := req.texture.Desc()
	order := loaders.SubresourceOrderLayersMajor
	if req.container != nil {
		order = req.container.Order
	}
	count := desc.MipLevels * desc.ArraySize

	for req.next < count {
		mip, layer := order.Subresource(req.next, desc.MipLevels, desc.ArraySize)
		fp := SubresourceFootprint(node.caps, desc, mip)
		alloc, err := engine.allocate(fp.Size, node.caps.UploadBufferTextureAlignment)
		if err != nil {
			return err
		}
		cmd, err := engine.acquireCmd()
		if err != nil {
			return err
		}
		if !req.barrierIssued {
			cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{
				Texture:      req.texture,
				CurrentState: metadata.ResourceStateUndefined,
				NewState:     metadata.ResourceStateCopyDest,
			}})
			req.barrierIssued = true
		}

		if req.container != nil {
			if err := readSubresource(req.container, mip, layer, fp, alloc.Data); err != nil {
				return fmt.Errorf("mip %d layer %d: %w", mip, layer, err)
			}
		} else {
			clear(alloc.Data)
		}
		cmd.CopyBufferToTexture(&gpu.BufferTextureCopy{
			Buffer:       alloc.Buffer,
			BufferOffset: alloc.Offset,
			RowPitch:     fp.RowPitch,
			SlicePitch:   fp.SlicePitch,
			Texture:      req.texture,
			MipLevel:     mip,
			ArrayLayer:   layer,
		})
		req.next++
	}

	return engine.transitionTexture(gpu.TextureBarrier{
		Texture:      req.texture,
		CurrentState: metadata.ResourceStateCopyDest,
		NewState:     DefaultTextureState(desc),
	})
}

// readSubresource streams one subresource from the container into staging memory laid out as fp.
func readSubresource(c *loaders.TextureContainer, mip, layer uint32, fp Footprint, dst []byte) error {
	if c.MipSizePrefix && layer == 0 {
		if _, err := c.Reader.Seek(4, io.SeekCurrent); err != nil {
			return err
		}
	}
	width, _, _ := c.Desc.MipExtent(mip)
	skip := int64(c.SourceRowPitch(width) - fp.RowBytes)
	for z := uint32(0); z < fp.Depth; z++ {
		for r := uint32(0); r < fp.Rows; r++ {
			offset := fp.RowOffset(z, r)
			if _, err := io.ReadFull(c.Reader, dst[offset:offset+uint64(fp.RowBytes)]); err != nil {
				return err
			}
			if skip > 0 {
				if _, err := c.Reader.Seek(skip, io.SeekCurrent); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
