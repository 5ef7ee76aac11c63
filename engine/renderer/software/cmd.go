package software

import (
	"fmt"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type CmdPool struct {
	queue *Queue
	cmds  []*CmdBuffer
}

func (p *CmdPool) NewCmd() (gpu.CmdBuffer, error) {
	cmd := &CmdBuffer{pool: p}
	p.cmds = append(p.cmds, cmd)
	return cmd, nil
}

func (p *CmdPool) Reset() error {
	for _, cmd := range p.cmds {
		cmd.ops = nil
		cmd.state = cmdStateInitial
	}
	return nil
}

func (p *CmdPool) Destroy() {
	p.cmds = nil
}

type cmdState int

const (
	cmdStateInitial cmdState = iota
	cmdStateRecording
	cmdStateExecutable
)

type op func(q *Queue) error

type CmdBuffer struct {
	pool  *CmdPool
	state cmdState
	ops   []op
}

func (c *CmdBuffer) Queue() gpu.Queue {
	return c.pool.queue
}

func (c *CmdBuffer) Begin() error {
	if c.state == cmdStateRecording {
		return fmt.Errorf("command buffer already recording: %w", gpu.ErrInvalidDesc)
	}
	c.ops = c.ops[:0]
	c.state = cmdStateRecording
	return nil
}

func (c *CmdBuffer) End() error {
	if c.state != cmdStateRecording {
		return gpu.ErrCmdNotRecording
	}
	c.state = cmdStateExecutable
	return nil
}

func (c *CmdBuffer) Destroy() {
	c.ops = nil
}

func (c *CmdBuffer) record(o op) {
	if c.state != cmdStateRecording {
		c.pool.queue.device.validationError("recording into a command buffer that is not recording")
		return
	}
	c.ops = append(c.ops, o)
}

func (c *CmdBuffer) CopyBuffer(copy *gpu.BufferCopy) {
	args := *copy
	c.record(func(q *Queue) error {
		src, dst := args.Src.(*Buffer), args.Dst.(*Buffer)
		if src.isDestroyed() || dst.isDestroyed() {
			return invalid("copy between destroyed buffers `%s` -> `%s`", src.desc.Name, dst.desc.Name)
		}
		if args.SrcOffset+args.Size > uint64(len(src.data)) || args.DstOffset+args.Size > uint64(len(dst.data)) {
			return invalid("buffer copy of %d bytes out of range (`%s`+%d -> `%s`+%d)", args.Size, src.desc.Name, args.SrcOffset, dst.desc.Name, args.DstOffset)
		}
		copyBytes(dst.data[args.DstOffset:args.DstOffset+args.Size], src.data[args.SrcOffset:args.SrcOffset+args.Size])
		q.device.counters.bytesCopied.Add(args.Size)
		return nil
	})
}

// copyBytes tolerates src and dst aliasing the same memory.
func copyBytes(dst, src []byte) {
	if len(dst) > 0 && &dst[0] == &src[0] {
		return
	}
	copy(dst, src)
}

func (c *CmdBuffer) CopyBufferToTexture(copy *gpu.BufferTextureCopy) {
	args := *copy
	c.record(func(q *Queue) error {
		return q.copyBufferTexture(&args, true)
	})
}

func (c *CmdBuffer) CopyTextureToBuffer(copy *gpu.BufferTextureCopy) {
	args := *copy
	c.record(func(q *Queue) error {
		return q.copyBufferTexture(&args, false)
	})
}

func (q *Queue) copyBufferTexture(args *gpu.BufferTextureCopy, toTexture bool) error {
	buf := args.Buffer.(*Buffer)
	tex := args.Texture.(*Texture)
	caps := q.device.caps
	if buf.isDestroyed() || tex.isDestroyed() {
		return invalid("copy with destroyed resource `%s`/`%s`", buf.desc.Name, tex.desc.Name)
	}
	if args.MipLevel >= tex.desc.MipLevels || args.ArrayLayer >= tex.desc.ArraySize {
		return invalid("subresource mip %d layer %d out of range for `%s`", args.MipLevel, args.ArrayLayer, tex.desc.Name)
	}
	w, h, d := tex.desc.MipExtent(args.MipLevel)
	rowBytes := tex.desc.Format.RowBytes(w)
	rows := tex.desc.Format.NumRows(h)
	if args.RowPitch < rowBytes || args.RowPitch%caps.UploadBufferTextureRowAlignment != 0 {
		return invalid("row pitch %d of `%s` mip %d is not aligned to %d (row is %d bytes)", args.RowPitch, tex.desc.Name, args.MipLevel, caps.UploadBufferTextureRowAlignment, rowBytes)
	}
	if args.BufferOffset%uint64(caps.UploadBufferTextureAlignment) != 0 {
		return invalid("subresource offset %d of `%s` is not aligned to %d", args.BufferOffset, tex.desc.Name, caps.UploadBufferTextureAlignment)
	}
	if d > 1 && args.SlicePitch < args.RowPitch*rows {
		return invalid("slice pitch %d of `%s` is smaller than %d rows", args.SlicePitch, tex.desc.Name, rows)
	}
	end := args.BufferOffset + uint64(args.SlicePitch)*uint64(d-1) + uint64(args.RowPitch)*uint64(rows-1) + uint64(rowBytes)
	if end > uint64(len(buf.data)) {
		return invalid("subresource copy of `%s` reads past the end of `%s`", tex.desc.Name, buf.desc.Name)
	}

	tex.mutex.Lock()
	defer tex.mutex.Unlock()
	sub := tex.subresourceIndex(args.MipLevel, args.ArrayLayer)
	want := metadata.ResourceStateCopySource
	if toTexture {
		want = metadata.ResourceStateCopyDest
	}
	if tex.states[sub] != want {
		return invalid("copy %s `%s` mip %d layer %d in state 0x%x, expected 0x%x", direction(toTexture), tex.desc.Name, args.MipLevel, args.ArrayLayer, tex.states[sub], want)
	}
	data := tex.data[sub]
	for z := uint32(0); z < d; z++ {
		for r := uint32(0); r < rows; r++ {
			bufOff := args.BufferOffset + uint64(z)*uint64(args.SlicePitch) + uint64(r)*uint64(args.RowPitch)
			texOff := (uint64(z)*uint64(rows) + uint64(r)) * uint64(rowBytes)
			if toTexture {
				copy(data[texOff:texOff+uint64(rowBytes)], buf.data[bufOff:bufOff+uint64(rowBytes)])
			} else {
				copy(buf.data[bufOff:bufOff+uint64(rowBytes)], data[texOff:texOff+uint64(rowBytes)])
			}
		}
	}
	q.device.counters.bytesCopied.Add(uint64(len(data)))
	return nil
}

func direction(toTexture bool) string {
	if toTexture {
		return "into"
	}
	return "out of"
}

func (c *CmdBuffer) ResourceBarrier(buffers []gpu.BufferBarrier, textures []gpu.TextureBarrier) {
	bufferBarriers := append([]gpu.BufferBarrier(nil), buffers...)
	textureBarriers := append([]gpu.TextureBarrier(nil), textures...)
	c.record(func(q *Queue) error {
		strict := q.device.caps.StrictQueueTypeBarriers && q.queueType == metadata.QueueTypeTransfer
		q.device.counters.barriers[q.queueType].Add(uint64(len(bufferBarriers) + len(textureBarriers)))
		for _, b := range bufferBarriers {
			if strict && !b.Acquire && !b.Release && !b.NewState.IsCopyState() {
				q.device.validationError("buffer `%s` transition to 0x%x on a transfer queue", b.Buffer.Desc().Name, b.NewState)
			}
		}
		for _, b := range textureBarriers {
			tex := b.Texture.(*Texture)
			if strict && !b.Acquire && !b.Release && !b.NewState.IsCopyState() {
				q.device.validationError("texture `%s` transition to 0x%x on a transfer queue", tex.desc.Name, b.NewState)
			}
			tex.transition(q.device, &b)
		}
		return nil
	})
}
