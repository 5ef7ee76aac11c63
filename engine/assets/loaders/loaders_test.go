package loaders

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

func testSubresources(desc metadata.TextureDesc) [][]byte {
	desc = desc.Normalized()
	out := make([][]byte, desc.MipLevels*desc.ArraySize)
	for layer := uint32(0); layer < desc.ArraySize; layer++ {
		for mip := uint32(0); mip < desc.MipLevels; mip++ {
			w, h, d := desc.MipExtent(mip)
			data := make([]byte, desc.Format.RowBytes(w)*desc.Format.NumRows(h)*d)
			for i := range data {
				data[i] = byte(int(layer)*31 + int(mip)*7 + i)
			}
			out[layer*desc.MipLevels+mip] = data
		}
	}
	return out
}

// readSubresources reads every subresource of c back into layer*MipLevels+mip order.
func readSubresources(t *testing.T, c *TextureContainer) [][]byte {
	desc := c.Desc
	out := make([][]byte, c.SubresourceCount())
	for i := uint32(0); i < c.SubresourceCount(); i++ {
		mip, layer := c.Order.Subresource(i, desc.MipLevels, desc.ArraySize)
		if c.MipSizePrefix && layer == 0 {
			_, err := c.Reader.Seek(4, io.SeekCurrent)
			require.NoError(t, err)
		}
		w, h, d := desc.MipExtent(mip)
		rowBytes := desc.Format.RowBytes(w)
		pitch := c.SourceRowPitch(w)
		rows := desc.Format.NumRows(h) * d
		data := make([]byte, 0, rowBytes*rows)
		row := make([]byte, pitch)
		for r := uint32(0); r < rows; r++ {
			_, err := io.ReadFull(c.Reader, row)
			require.NoError(t, err)
			data = append(data, row[:rowBytes]...)
		}
		out[layer*desc.MipLevels+mip] = data
	}
	return out
}

func TestDDSRoundTrip(t *testing.T) {
	desc := metadata.TextureDesc{Width: 16, Height: 8, ArraySize: 6, MipLevels: 3, Format: metadata.TextureFormatBC1, Flags: metadata.TextureFlagCube}
	subs := testSubresources(desc)
	var buf bytes.Buffer
	require.NoError(t, WriteDDS(&buf, desc, subs))

	c, err := OpenTexture(bytes.NewReader(buf.Bytes()), "cube.dds")
	require.NoError(t, err)
	assert.Equal(t, "dds", c.Kind)
	assert.Equal(t, SubresourceOrderLayersMajor, c.Order)
	assert.Equal(t, metadata.TextureFormatBC1, c.Desc.Format)
	assert.Equal(t, uint32(6), c.Desc.ArraySize)
	assert.Equal(t, uint32(3), c.Desc.MipLevels)
	assert.NotZero(t, c.Desc.Flags&metadata.TextureFlagCube)
	assert.Equal(t, metadata.ResourceStateShaderResource, c.Desc.StartState)
	assert.Equal(t, "cube.dds", c.Desc.Name)
	assert.Equal(t, subs, readSubresources(t, c))
}

func TestKTXRoundTripPadsRows(t *testing.T) {
	// 3 texel wide R8 rows are padded to 4 bytes in the file
	desc := metadata.TextureDesc{Width: 3, Height: 5, ArraySize: 2, MipLevels: 2, Format: metadata.TextureFormatR8}
	subs := testSubresources(desc)
	var buf bytes.Buffer
	require.NoError(t, WriteKTX(&buf, desc, subs))

	c, err := OpenTexture(bytes.NewReader(buf.Bytes()), "array.ktx")
	require.NoError(t, err)
	assert.Equal(t, "ktx", c.Kind)
	assert.True(t, c.MipSizePrefix)
	assert.Equal(t, SubresourceOrderMipsMajor, c.Order)
	assert.Equal(t, uint32(4), c.SourceRowPitch(3))
	assert.Equal(t, subs, readSubresources(t, c))
}

func TestSubresourceOrder(t *testing.T) {
	mip, layer := SubresourceOrderLayersMajor.Subresource(4, 3, 2)
	assert.Equal(t, []uint32{1, 1}, []uint32{mip, layer})
	mip, layer = SubresourceOrderMipsMajor.Subresource(3, 3, 2)
	assert.Equal(t, []uint32{1, 1}, []uint32{mip, layer})
}

func TestDecodePNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	c, err := OpenTexture(bytes.NewReader(buf.Bytes()), "pixel.png")
	require.NoError(t, err)
	assert.Equal(t, "png", c.Kind)
	assert.Equal(t, metadata.TextureFormatRGBA8, c.Desc.Format)
	pixels, err := io.ReadAll(c.Reader)
	require.NoError(t, err)
	require.Len(t, pixels, 16)
	assert.Equal(t, []byte{255, 0, 0, 255}, pixels[0:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, pixels[12:16])
}

func TestInvalidContainers(t *testing.T) {
	_, err := OpenTexture(bytes.NewReader([]byte("not an image at all")), "junk.bin")
	assert.ErrorIs(t, err, ErrInvalidContainer)

	var buf bytes.Buffer
	require.NoError(t, WriteDDS(&buf, metadata.TextureDesc{Width: 4, Height: 4, Format: metadata.TextureFormatRGBA8}, [][]byte{make([]byte, 64)}))
	_, err = OpenTexture(bytes.NewReader(buf.Bytes()[:60]), "short.dds")
	assert.ErrorIs(t, err, ErrInvalidContainer)

	err = WriteKTX(io.Discard, metadata.TextureDesc{Width: 4, Height: 4, Format: metadata.TextureFormatUndefined}, [][]byte{nil})
	assert.ErrorIs(t, err, ErrInvalidContainer)
}

func TestGeometryRoundTrip(t *testing.T) {
	g := &GeometryData{
		Streams:     [][]byte{bytes.Repeat([]byte{1, 2, 3, 4}, 9), bytes.Repeat([]byte{9, 8}, 6)},
		Strides:     []uint32{12, 4},
		Indices:     []byte{0, 0, 1, 0, 2, 0},
		IndexType:   metadata.IndexTypeUint16,
		VertexCount: 3,
		IndexCount:  3,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteGeometry(&buf, g))

	got, err := ReadGeometry(&buf)
	require.NoError(t, err)
	assert.Equal(t, g, got)

	_, err = ReadGeometry(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}))
	assert.ErrorIs(t, err, ErrInvalidContainer)

	g.Strides = []uint32{12}
	assert.ErrorIs(t, WriteGeometry(io.Discard, g), ErrInvalidContainer)
}

func TestReadBinary(t *testing.T) {
	words, err := ReadBinary(bytes.NewReader([]byte{1, 0, 0, 0, 0, 1, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 256}, words)

	_, err = ReadBinary(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInvalidContainer)
}
