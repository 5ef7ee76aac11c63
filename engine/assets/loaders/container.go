package loaders

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

var ErrInvalidContainer = errors.New("invalid or unsupported container")

/** @brief The order in which a container stores its subresources. */
type SubresourceOrder int

const (
	/** @brief Every mip of layer 0, then every mip of layer 1 ... (DDS). */
	SubresourceOrderLayersMajor SubresourceOrder = iota
	/** @brief Every layer of mip 0, then every layer of mip 1 ... (KTX). */
	SubresourceOrderMipsMajor
)

// Subresource maps the index-th stored subresource to its mip level and array layer.
func (o SubresourceOrder) Subresource(index, mipLevels, arraySize uint32) (mip, layer uint32) {
	if o == SubresourceOrderMipsMajor {
		return index / arraySize, index % arraySize
	}
	return index % mipLevels, index / mipLevels
}

/**
 * @brief A parsed texture container positioned at its pixel data.
 * Subresources follow each other in Order. Rows of the source data are padded to
 * RowAlignment bytes and depth slices follow each other without extra padding.
 */
type TextureContainer struct {
	Desc   metadata.TextureDesc
	Reader io.ReadSeeker
	/** @brief Byte offset of the first subresource. */
	DataOffset int64
	Order      SubresourceOrder
	/** @brief Each mip level is preceded by a 4 byte size field that must be skipped. */
	MipSizePrefix bool
	RowAlignment  uint32
	Kind          string
}

// SourceRowPitch is the distance between two rows of the given width in the container.
func (c *TextureContainer) SourceRowPitch(width uint32) uint32 {
	rowBytes := c.Desc.Format.RowBytes(width)
	if c.RowAlignment <= 1 {
		return rowBytes
	}
	return (rowBytes + c.RowAlignment - 1) / c.RowAlignment * c.RowAlignment
}

// SubresourceCount is the number of subresources stored in the container.
func (c *TextureContainer) SubresourceCount() uint32 {
	return c.Desc.MipLevels * c.Desc.ArraySize
}

var (
	ddsMagic = []byte("DDS ")
	ktxMagic = []byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}
)

/**
 * @brief Sniffs the container format of r and parses its header. DDS and KTX
 * are streamed from r; any other image format is decoded to RGBA8 in memory.
 * @param r The stream to read. It is left positioned at DataOffset.
 * @param name Used for error messages and as the texture debug name.
 */
func OpenTexture(r io.ReadSeeker, name string) (*TextureContainer, error) {
	var magic [12]byte
	n, err := io.ReadFull(r, magic[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("reading `%s`: %w", name, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var c *TextureContainer
	switch {
	case n >= len(ddsMagic) && bytes.Equal(magic[:len(ddsMagic)], ddsMagic):
		c, err = parseDDS(r)
	case n == len(ktxMagic) && bytes.Equal(magic[:], ktxMagic):
		c, err = parseKTX(r)
	default:
		c, err = decodeImage(r)
	}
	if err != nil {
		return nil, fmt.Errorf("texture `%s`: %w", name, err)
	}
	c.Desc.Name = name
	c.Desc.StartState = metadata.ResourceStateShaderResource
	c.Desc.Descriptors |= metadata.DescriptorTypeTexture
	if c.Desc.Flags&metadata.TextureFlagCube != 0 {
		c.Desc.Descriptors |= metadata.DescriptorTypeTextureCube
	}
	if c.Desc.Format.Info().SRGB {
		c.Desc.Flags |= metadata.TextureFlagSRGB
	}
	if _, err := r.Seek(c.DataOffset, io.SeekStart); err != nil {
		return nil, err
	}
	return c, nil
}

func validateDesc(desc *metadata.TextureDesc) error {
	if !desc.Format.IsValid() {
		return fmt.Errorf("unknown pixel format: %w", ErrInvalidContainer)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("empty extent %dx%d: %w", desc.Width, desc.Height, ErrInvalidContainer)
	}
	maxMips := uint32(1)
	for d := max(desc.Width, desc.Height, desc.Depth); d > 1; d >>= 1 {
		maxMips++
	}
	if desc.MipLevels > maxMips {
		return fmt.Errorf("%d mip levels for a %dx%d image: %w", desc.MipLevels, desc.Width, desc.Height, ErrInvalidContainer)
	}
	return nil
}
