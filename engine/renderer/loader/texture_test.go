package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
	"github.com/thefork190/TheFork-sub000/engine/renderer/software"
)

// subresourceData returns tightly packed contents indexed by layer*MipLevels+mip.
func subresourceData(desc metadata.TextureDesc) [][]byte {
	desc = desc.Normalized()
	out := make([][]byte, desc.MipLevels*desc.ArraySize)
	for layer := uint32(0); layer < desc.ArraySize; layer++ {
		for mip := uint32(0); mip < desc.MipLevels; mip++ {
			w, h, d := desc.MipExtent(mip)
			size := desc.Format.RowBytes(w) * desc.Format.NumRows(h) * d
			out[layer*desc.MipLevels+mip] = pattern(int(size), byte(layer*40+mip*3))
		}
	}
	return out
}

func encode(t *testing.T, write func(*bytes.Buffer) error) *fstest.MapFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, write(&buf))
	return &fstest.MapFile{Data: buf.Bytes()}
}

func assertTextureContents(t *testing.T, tex gpu.Texture, subresources [][]byte) {
	t.Helper()
	sw := tex.(*software.Texture)
	desc := tex.Desc()
	for layer := uint32(0); layer < desc.ArraySize; layer++ {
		for mip := uint32(0); mip < desc.MipLevels; mip++ {
			assert.Equal(t, subresources[layer*desc.MipLevels+mip], sw.Subresource(mip, layer), "mip %d layer %d", mip, layer)
			assert.Equal(t, DefaultTextureState(desc), sw.State(mip, layer))
		}
	}
}

func TestTextureFileLoads(t *testing.T) {
	ddsDesc := metadata.TextureDesc{Width: 20, Height: 12, ArraySize: 2, MipLevels: 3, Format: metadata.TextureFormatRGBA8}
	bcDesc := metadata.TextureDesc{Width: 16, Height: 16, ArraySize: 6, MipLevels: 2, Format: metadata.TextureFormatBC1, Flags: metadata.TextureFlagCube}
	ktxDesc := metadata.TextureDesc{Width: 3, Height: 5, ArraySize: 2, MipLevels: 2, Format: metadata.TextureFormatR8}

	fsys := fstest.MapFS{
		"textures/array.dds": encode(t, func(b *bytes.Buffer) error { return loaders.WriteDDS(b, ddsDesc, subresourceData(ddsDesc)) }),
		"textures/cube.dds":  encode(t, func(b *bytes.Buffer) error { return loaders.WriteDDS(b, bcDesc, subresourceData(bcDesc)) }),
		"textures/mask.ktx":  encode(t, func(b *bytes.Buffer) error { return loaders.WriteKTX(b, ktxDesc, subresourceData(ktxDesc)) }),
	}
	files := []struct {
		name string
		desc metadata.TextureDesc
	}{
		{"textures/array.dds", ddsDesc},
		{"textures/cube.dds", bcDesc},
		{"textures/mask.ktx", ktxDesc},
	}

	for _, kind := range deviceKinds {
		t.Run(kind.name, func(t *testing.T) {
			l, _ := newTestLoader(t, kind.config, DefaultConfig(), fsys)
			for _, f := range files {
				var tex gpu.Texture
				var token SyncToken
				require.NoError(t, l.AddResource(&TextureLoadDesc{Texture: &tex, FileName: f.name}, &token))
				l.WaitForToken(token)
				require.NoError(t, l.TokenError(token), f.name)
				require.NotNil(t, tex, f.name)

				desc := tex.Desc()
				assert.Equal(t, f.name, desc.Name)
				assert.Equal(t, f.desc.Format, desc.Format)
				assert.Equal(t, f.desc.ArraySize, desc.ArraySize)
				assert.Equal(t, f.desc.MipLevels, desc.MipLevels)
				assert.Equal(t, metadata.ResourceStateShaderResource, desc.StartState)
				assertTextureContents(t, tex, subresourceData(f.desc))
				require.NoError(t, l.RemoveResource(tex))
			}
		})
	}
}

func TestTextureStreamingResumesAcrossTicks(t *testing.T) {
	// every layer needs more staging memory than one set holds
	desc := metadata.TextureDesc{Width: 20, Height: 12, ArraySize: 3, MipLevels: 3, Format: metadata.TextureFormatRGBA8}
	fsys := fstest.MapFS{
		"big.dds": encode(t, func(b *bytes.Buffer) error { return loaders.WriteDDS(b, desc, subresourceData(desc)) }),
	}
	l, _ := newTestLoader(t, software.Config{}, Config{BufferSize: 4096, BufferCount: 2}, fsys)

	var tex gpu.Texture
	var token SyncToken
	require.NoError(t, l.AddResource(&TextureLoadDesc{Texture: &tex, FileName: "big.dds"}, &token))
	l.WaitForToken(token)
	require.NoError(t, l.TokenError(token))

	assertTextureContents(t, tex, subresourceData(desc))
	assert.Greater(t, l.Stats().Ticks, uint64(desc.ArraySize))
	assert.Zero(t, l.Stats().TempBuffersAllocated)
}

func TestTextureFromImageWithOverrides(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 50), G: uint8(y * 80), B: 200, A: 255})
		}
	}
	fsys := fstest.MapFS{
		"ui/icon.png": encode(t, func(b *bytes.Buffer) error { return png.Encode(b, img) }),
	}
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), fsys)

	var tex gpu.Texture
	var token SyncToken
	require.NoError(t, l.AddResource(&TextureLoadDesc{
		Texture:  &tex,
		FileName: "ui/icon.png",
		Desc: &metadata.TextureDesc{
			Name:       "icon",
			StartState: metadata.ResourceStatePixelShaderResource,
			Flags:      metadata.TextureFlagSRGB,
		},
	}, &token))
	l.WaitForToken(token)
	require.NoError(t, l.TokenError(token))

	desc := tex.Desc()
	assert.Equal(t, "icon", desc.Name)
	assert.Equal(t, metadata.TextureFormatRGBA8, desc.Format)
	assert.NotZero(t, desc.Flags&metadata.TextureFlagSRGB)
	assert.Equal(t, uint32(5), desc.Width)
	assert.Equal(t, uint32(3), desc.Height)

	sw := tex.(*software.Texture)
	assert.Equal(t, metadata.ResourceStatePixelShaderResource, sw.State(0, 0))
	pixels := sw.Subresource(0, 0)
	require.Len(t, pixels, 5*3*4)
	assert.Equal(t, []byte{100, 80, 200, 255}, pixels[(1*5+2)*4:(1*5+3)*4])
}

func TestInvalidTextureFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.dds": &fstest.MapFile{Data: []byte("DDS not really a texture")},
		"noise.bin":  &fstest.MapFile{Data: []byte{1, 2, 3}},
	}
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), fsys)

	for _, name := range []string{"broken.dds", "noise.bin"} {
		var tex gpu.Texture
		var token SyncToken
		require.NoError(t, l.AddResource(&TextureLoadDesc{Texture: &tex, FileName: name}, &token))
		l.WaitForToken(token)
		err := l.TokenError(token)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
		assert.ErrorIs(t, err, loaders.ErrInvalidContainer, name)
		assert.Nil(t, tex)
	}

	var missing gpu.Texture
	var token SyncToken
	require.NoError(t, l.AddResource(&TextureLoadDesc{Texture: &missing, FileName: "nope.ktx"}, &token))
	l.WaitForToken(token)
	assert.ErrorIs(t, l.TokenError(token), fs.ErrNotExist)
	assert.Equal(t, uint64(3), l.Stats().InvalidRequests)
}

func TestTextureLoadValidation(t *testing.T) {
	l, _ := newTestLoader(t, software.Config{}, DefaultConfig(), nil)
	var tex gpu.Texture
	assert.ErrorIs(t, l.AddTexture(&TextureLoadDesc{}, nil), ErrInvalidRequest)
	assert.ErrorIs(t, l.AddTexture(&TextureLoadDesc{Texture: &tex, FileName: "a.dds"}, nil), ErrInvalidRequest)
	assert.ErrorIs(t, l.AddTexture(&TextureLoadDesc{Texture: &tex}, nil), ErrInvalidRequest)
	err := l.AddTexture(&TextureLoadDesc{Texture: &tex, Desc: &metadata.TextureDesc{Width: 4, Height: 4}}, nil)
	assert.ErrorIs(t, err, gpu.ErrUnsupportedFormat)
	assert.Nil(t, tex)
}
