package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type fixture struct {
	device *Device
	queue  gpu.Queue
	pool   gpu.CmdPool
	cmd    gpu.CmdBuffer
	fence  gpu.Fence
}

func newFixture(t *testing.T, config Config, queueType metadata.QueueType) *fixture {
	t.Helper()
	d := NewDevice(config)
	q, err := d.NewQueue(queueType)
	require.NoError(t, err)
	pool, err := d.NewCmdPool(q)
	require.NoError(t, err)
	cmd, err := pool.NewCmd()
	require.NoError(t, err)
	fence, err := d.NewFence()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Destroy() })
	return &fixture{device: d, queue: q, pool: pool, cmd: cmd, fence: fence}
}

func (f *fixture) submit(t *testing.T) {
	t.Helper()
	require.NoError(t, f.cmd.End())
	require.NoError(t, f.queue.Submit(&gpu.SubmitDesc{Cmds: []gpu.CmdBuffer{f.cmd}, Fence: f.fence}))
	require.NoError(t, f.fence.Wait())
	require.NoError(t, f.pool.Reset())
}

func TestBufferCopy(t *testing.T) {
	f := newFixture(t, Config{}, metadata.QueueTypeTransfer)
	staging, err := f.device.NewBuffer(&metadata.BufferDesc{Name: "staging", Size: 64, MemoryUsage: metadata.MemoryUsageCPUOnly})
	require.NoError(t, err)
	dst, err := f.device.NewBuffer(&metadata.BufferDesc{Name: "dst", Size: 64, MemoryUsage: metadata.MemoryUsageGPUOnly})
	require.NoError(t, err)
	assert.NotNil(t, staging.Mapped())
	assert.Nil(t, dst.Mapped())

	copy(staging.Mapped()[8:], []byte("payload"))
	require.NoError(t, f.cmd.Begin())
	f.cmd.CopyBuffer(&gpu.BufferCopy{Src: staging, SrcOffset: 8, Dst: dst, DstOffset: 16, Size: 7})
	assert.Equal(t, gpu.FenceStatusNotSubmitted, f.fence.Status())
	f.submit(t)

	assert.Equal(t, []byte("payload"), dst.(*Buffer).Contents()[16:23])
	assert.Equal(t, gpu.FenceStatusNotSubmitted, f.fence.Status())
	assert.Empty(t, f.device.ValidationErrors())

	stats := f.device.Stats()
	assert.Equal(t, uint64(2), stats.LiveBuffers())
	assert.Equal(t, uint64(1), stats.Submissions[metadata.QueueTypeTransfer])
	assert.Equal(t, uint64(7), stats.BytesCopied)
}

func TestUnifiedMemoryMapsEverything(t *testing.T) {
	d := NewDevice(Config{UnifiedMemory: true})
	defer d.Destroy()
	b, err := d.NewBuffer(&metadata.BufferDesc{Size: 16, MemoryUsage: metadata.MemoryUsageGPUOnly})
	require.NoError(t, err)
	assert.Len(t, b.Mapped(), 16)
	assert.True(t, d.Capabilities().UnifiedMemory)
}

func TestTextureUploadAndReadback(t *testing.T) {
	f := newFixture(t, Config{TextureRowAlignment: 16, TextureAlignment: 32}, metadata.QueueTypeTransfer)
	tex, err := f.device.NewTexture(&metadata.TextureDesc{Name: "tex", Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8})
	require.NoError(t, err)
	staging, err := f.device.NewBuffer(&metadata.BufferDesc{Size: 64, MemoryUsage: metadata.MemoryUsageCPUOnly})
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		staging.Mapped()[i] = byte(i + 1)
		staging.Mapped()[16+i] = byte(i + 11)
	}

	require.NoError(t, f.cmd.Begin())
	f.cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{Texture: tex, CurrentState: metadata.ResourceStateUndefined, NewState: metadata.ResourceStateCopyDest}})
	f.cmd.CopyBufferToTexture(&gpu.BufferTextureCopy{Buffer: staging, RowPitch: 16, SlicePitch: 32, Texture: tex})
	f.cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{Texture: tex, CurrentState: metadata.ResourceStateCopyDest, NewState: metadata.ResourceStateCopySource}})
	f.cmd.CopyTextureToBuffer(&gpu.BufferTextureCopy{Buffer: staging, BufferOffset: 32, RowPitch: 16, SlicePitch: 32, Texture: tex})
	f.submit(t)

	sw := tex.(*Texture)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 11, 12, 13, 14, 15, 16, 17, 18}, sw.Subresource(0, 0))
	assert.Equal(t, staging.Mapped()[0:8], staging.Mapped()[32:40])
	assert.Equal(t, metadata.ResourceStateCopySource, sw.State(0, 0))
	assert.Empty(t, f.device.ValidationErrors())
}

func TestValidation(t *testing.T) {
	f := newFixture(t, Config{StrictQueueTypeBarriers: true, TextureRowAlignment: 16}, metadata.QueueTypeTransfer)
	tex, err := f.device.NewTexture(&metadata.TextureDesc{Name: "tex", Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8})
	require.NoError(t, err)
	staging, err := f.device.NewBuffer(&metadata.BufferDesc{Name: "staging", Size: 64, MemoryUsage: metadata.MemoryUsageCPUOnly})
	require.NoError(t, err)

	require.NoError(t, f.cmd.Begin())
	// not in copy dest yet
	f.cmd.CopyBufferToTexture(&gpu.BufferTextureCopy{Buffer: staging, RowPitch: 16, Texture: tex})
	// non-copy transition on a strict transfer queue
	f.cmd.ResourceBarrier(nil, []gpu.TextureBarrier{{Texture: tex, NewState: metadata.ResourceStateShaderResource}})
	// misaligned pitch
	f.cmd.CopyBufferToTexture(&gpu.BufferTextureCopy{Buffer: staging, RowPitch: 8, Texture: tex})
	f.submit(t)
	assert.Len(t, f.device.ValidationErrors(), 3)

	// unended command buffers are rejected
	require.NoError(t, f.cmd.Begin())
	assert.ErrorIs(t, f.queue.Submit(&gpu.SubmitDesc{Cmds: []gpu.CmdBuffer{f.cmd}}), gpu.ErrCmdNotRecording)

	require.NoError(t, staging.Destroy())
	assert.ErrorIs(t, staging.Destroy(), gpu.ErrAlreadyDestroyed)
	assert.Len(t, f.device.ValidationErrors(), 5)
}

func TestSemaphoreOrdersQueues(t *testing.T) {
	d := NewDevice(Config{})
	defer d.Destroy()
	transfer, err := d.NewQueue(metadata.QueueTypeTransfer)
	require.NoError(t, err)
	graphics, err := d.NewQueue(metadata.QueueTypeGraphics)
	require.NoError(t, err)
	sem, err := d.NewSemaphore()
	require.NoError(t, err)
	fence, err := d.NewFence()
	require.NoError(t, err)

	// the graphics submission is queued first but has to wait for the transfer one
	require.NoError(t, graphics.Submit(&gpu.SubmitDesc{WaitSemaphores: []gpu.Semaphore{sem}, Fence: fence}))
	assert.Equal(t, gpu.FenceStatusIncomplete, fence.Status())
	assert.ErrorIs(t, graphics.Submit(&gpu.SubmitDesc{Fence: fence}), gpu.ErrFencePending)

	require.NoError(t, transfer.Submit(&gpu.SubmitDesc{SignalSemaphores: []gpu.Semaphore{sem}}))
	require.NoError(t, fence.Wait())
	assert.Equal(t, uint64(0), sem.(*Semaphore).Pending())
	require.NoError(t, d.WaitIdle())
}
