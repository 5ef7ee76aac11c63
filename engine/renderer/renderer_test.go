package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
	"github.com/thefork190/TheFork-sub000/engine/renderer/software"
)

func newSoftwareRenderer(t *testing.T, gpuCount uint32) *Renderer {
	t.Helper()
	cfg := loader.DefaultConfig()
	cfg.BufferSize = 64 << 10
	r, err := New(Config{
		AppName:  "test",
		Type:     Software,
		GPUCount: gpuCount,
		Loader:   cfg,
	})
	require.NoError(t, err)
	return r
}

func TestParseRendererType(t *testing.T) {
	for in, want := range map[string]RendererType{
		"":         Software,
		"software": Software,
		"Vulkan":   Vulkan,
	} {
		got, err := ParseRendererType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseRendererType("metal")
	assert.Error(t, err)
}

func TestUnknownRendererType(t *testing.T) {
	_, err := New(Config{Type: "metal"})
	assert.ErrorIs(t, err, gpu.ErrBackendUnavailable)
}

func TestSoftwareRendererNodes(t *testing.T) {
	r := newSoftwareRenderer(t, 2)
	require.Len(t, r.Devices(), 2)
	assert.Equal(t, uint32(2), r.Loader().NodeCount())
	for i, d := range r.Devices() {
		assert.Equal(t, uint32(i), d.NodeIndex())
	}
	assert.Equal(t, "test-software-1", r.Devices()[1].Name())
	require.NoError(t, r.Shutdown())
}

func TestDrawFrameConsumesLoaderWork(t *testing.T) {
	r := newSoftwareRenderer(t, 2)
	l := r.Loader()
	device := r.Devices()[1].(*software.Device)

	desc := &loader.BufferLoadDesc{
		Desc: &metadata.BufferDesc{
			Size:        256,
			MemoryUsage: metadata.MemoryUsageGPUOnly,
			Descriptors: metadata.DescriptorTypeVertexBuffer,
			NodeIndex:   1,
		},
		Data: make([]byte, 256),
	}
	var token loader.SyncToken
	require.NoError(t, l.AddResource(desc, &token))
	l.WaitForToken(token)

	update := &loader.BufferUpdateDesc{Buffer: desc.Buffer, Size: 4}
	require.NoError(t, l.BeginUpdateResource(update))
	copy(update.MappedData, []byte{1, 2, 3, 4})
	require.NoError(t, l.EndUpdateResource(update))

	before := device.Stats().Submissions[metadata.QueueTypeGraphics]
	require.NoError(t, r.DrawFrame(1.0/60.0))
	assert.Equal(t, uint64(1), r.FrameNumber())
	assert.Equal(t, before+1, device.Stats().Submissions[metadata.QueueTypeGraphics])
	assert.Nil(t, l.LastSemaphoreSubmitted(1))

	readback := &loader.BufferLoadDesc{
		Desc: &metadata.BufferDesc{
			Size:        4,
			MemoryUsage: metadata.MemoryUsageGPUToCPU,
			NodeIndex:   1,
		},
		SrcBuffer: desc.Buffer,
	}
	require.NoError(t, l.AddResource(readback, &token))
	l.WaitForToken(token)
	assert.Equal(t, []byte{1, 2, 3, 4}, readback.Buffer.Mapped()[:4])

	require.NoError(t, r.DrawFrame(1.0/60.0))
	assert.Equal(t, uint64(2), r.FrameNumber())

	require.NoError(t, l.RemoveResource(readback.Buffer))
	require.NoError(t, l.RemoveResource(desc.Buffer))
	require.NoError(t, r.Shutdown())
	assert.Empty(t, device.ValidationErrors())
	assert.Zero(t, device.Stats().LiveBuffers())
}
