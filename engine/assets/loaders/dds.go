package loaders

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

const (
	ddsHeaderSize     = 124
	ddsPixelFlagAlpha = 0x1
	ddsPixelFlagFour  = 0x4
	ddsPixelFlagRGB   = 0x40
	ddsPixelFlagLum   = 0x20000

	ddsFlagCaps        = 0x1
	ddsFlagHeight      = 0x2
	ddsFlagWidth       = 0x4
	ddsFlagPitch       = 0x8
	ddsFlagPixelFormat = 0x1000
	ddsFlagMipCount    = 0x20000
	ddsFlagLinearSize  = 0x80000
	ddsFlagDepth       = 0x800000

	ddsCapsTexture = 0x1000
	ddsCapsComplex = 0x8
	ddsCapsMipmap  = 0x400000
	ddsCaps2Cube   = 0xFE00
	ddsCaps2Volume = 0x200000

	ddsDX10MiscCube       = 0x4
	ddsDX10Dimension2D    = 3
	ddsDX10Dimension3D    = 4
	ddsFourCCDX10  uint32 = 'D' | 'X'<<8 | '1'<<16 | '0'<<24
)

type ddsPixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      uint32
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

type ddsHeader struct {
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       ddsPixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

type ddsHeaderDX10 struct {
	DXGIFormat        uint32
	ResourceDimension uint32
	MiscFlag          uint32
	ArraySize         uint32
	MiscFlags2        uint32
}

func fourCC(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

var ddsFourCCFormats = map[uint32]metadata.TextureFormat{
	fourCC("DXT1"): metadata.TextureFormatBC1,
	fourCC("DXT2"): metadata.TextureFormatBC2,
	fourCC("DXT3"): metadata.TextureFormatBC2,
	fourCC("DXT4"): metadata.TextureFormatBC3,
	fourCC("DXT5"): metadata.TextureFormatBC3,
	fourCC("ATI1"): metadata.TextureFormatBC4,
	fourCC("BC4U"): metadata.TextureFormatBC4,
	fourCC("ATI2"): metadata.TextureFormatBC5,
	fourCC("BC5U"): metadata.TextureFormatBC5,
	111:            metadata.TextureFormatR16F,
	113:            metadata.TextureFormatRGBA16F,
	114:            metadata.TextureFormatR32F,
	116:            metadata.TextureFormatRGBA32F,
}

var dxgiFormats = map[uint32]metadata.TextureFormat{
	2:  metadata.TextureFormatRGBA32F,
	10: metadata.TextureFormatRGBA16F,
	28: metadata.TextureFormatRGBA8,
	29: metadata.TextureFormatRGBA8SRGB,
	41: metadata.TextureFormatR32F,
	49: metadata.TextureFormatRG8,
	54: metadata.TextureFormatR16F,
	61: metadata.TextureFormatR8,
	71: metadata.TextureFormatBC1,
	72: metadata.TextureFormatBC1SRGB,
	74: metadata.TextureFormatBC2,
	77: metadata.TextureFormatBC3,
	78: metadata.TextureFormatBC3SRGB,
	80: metadata.TextureFormatBC4,
	83: metadata.TextureFormatBC5,
	87: metadata.TextureFormatBGRA8,
	91: metadata.TextureFormatBGRA8SRGB,
	98: metadata.TextureFormatBC7,
	99: metadata.TextureFormatBC7SRGB,
}

func legacyDDSFormat(pf *ddsPixelFormat) metadata.TextureFormat {
	switch {
	case pf.Flags&ddsPixelFlagFour != 0:
		return ddsFourCCFormats[pf.FourCC]
	case pf.Flags&ddsPixelFlagRGB != 0 && pf.RGBBitCount == 32:
		if pf.RBitMask == 0xff && pf.GBitMask == 0xff00 && pf.BBitMask == 0xff0000 {
			return metadata.TextureFormatRGBA8
		}
		if pf.RBitMask == 0xff0000 && pf.GBitMask == 0xff00 && pf.BBitMask == 0xff {
			return metadata.TextureFormatBGRA8
		}
	case pf.Flags&ddsPixelFlagLum != 0 && pf.RGBBitCount == 8:
		return metadata.TextureFormatR8
	case pf.Flags&ddsPixelFlagLum != 0 && pf.RGBBitCount == 16 && pf.Flags&ddsPixelFlagAlpha != 0:
		return metadata.TextureFormatRG8
	}
	return metadata.TextureFormatUndefined
}

func parseDDS(r io.ReadSeeker) (*TextureContainer, error) {
	var magic uint32
	var header ddsHeader
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("dds header: %w", ErrInvalidContainer)
	}
	if header.Size != ddsHeaderSize || header.PixelFormat.Size != 32 {
		return nil, fmt.Errorf("dds header size %d: %w", header.Size, ErrInvalidContainer)
	}

	desc := metadata.TextureDesc{
		Width:     header.Width,
		Height:    header.Height,
		Depth:     1,
		ArraySize: 1,
		MipLevels: max(header.MipMapCount, 1),
	}
	offset := int64(4 + ddsHeaderSize)

	if header.PixelFormat.Flags&ddsPixelFlagFour != 0 && header.PixelFormat.FourCC == ddsFourCCDX10 {
		var dx10 ddsHeaderDX10
		if err := binary.Read(r, binary.LittleEndian, &dx10); err != nil {
			return nil, fmt.Errorf("dds dx10 header: %w", ErrInvalidContainer)
		}
		offset += 20
		desc.Format = dxgiFormats[dx10.DXGIFormat]
		desc.ArraySize = max(dx10.ArraySize, 1)
		if dx10.MiscFlag&ddsDX10MiscCube != 0 {
			desc.ArraySize *= 6
			desc.Flags |= metadata.TextureFlagCube
		}
		if dx10.ResourceDimension == ddsDX10Dimension3D {
			desc.Depth = max(header.Depth, 1)
		}
	} else {
		desc.Format = legacyDDSFormat(&header.PixelFormat)
		if header.Caps2&ddsCaps2Cube != 0 {
			desc.ArraySize = 6
			desc.Flags |= metadata.TextureFlagCube
		}
		if header.Caps2&ddsCaps2Volume != 0 {
			desc.Depth = max(header.Depth, 1)
		}
	}
	if err := validateDesc(&desc); err != nil {
		return nil, err
	}
	return &TextureContainer{
		Desc:         desc,
		Reader:       r,
		DataOffset:   offset,
		Order:        SubresourceOrderLayersMajor,
		RowAlignment: 1,
		Kind:         "dds",
	}, nil
}

func dxgiFormatOf(f metadata.TextureFormat) (uint32, bool) {
	for k, v := range dxgiFormats {
		if v == f {
			return k, true
		}
	}
	return 0, false
}

/**
 * @brief Writes a DDS file with a DX10 header.
 * @param subresources Tightly packed pixel data indexed by layer*MipLevels+mip.
 */
func WriteDDS(w io.Writer, desc metadata.TextureDesc, subresources [][]byte) error {
	desc = desc.Normalized()
	dxgi, ok := dxgiFormatOf(desc.Format)
	if !ok {
		return fmt.Errorf("format %s has no dds encoding: %w", desc.Format, ErrInvalidContainer)
	}
	if uint32(len(subresources)) != desc.MipLevels*desc.ArraySize {
		return fmt.Errorf("%d subresources for %d mips x %d layers: %w", len(subresources), desc.MipLevels, desc.ArraySize, ErrInvalidContainer)
	}
	header := ddsHeader{
		Size:              ddsHeaderSize,
		Flags:             ddsFlagCaps | ddsFlagHeight | ddsFlagWidth | ddsFlagPixelFormat | ddsFlagMipCount,
		Height:            desc.Height,
		Width:             desc.Width,
		PitchOrLinearSize: desc.Format.RowBytes(desc.Width),
		Depth:             desc.Depth,
		MipMapCount:       desc.MipLevels,
		PixelFormat:       ddsPixelFormat{Size: 32, Flags: ddsPixelFlagFour, FourCC: ddsFourCCDX10},
		Caps:              ddsCapsTexture,
	}
	if desc.MipLevels > 1 {
		header.Caps |= ddsCapsComplex | ddsCapsMipmap
	}
	dx10 := ddsHeaderDX10{
		DXGIFormat:        dxgi,
		ResourceDimension: ddsDX10Dimension2D,
		ArraySize:         desc.ArraySize,
	}
	if desc.Depth > 1 {
		header.Flags |= ddsFlagDepth
		header.Caps2 |= ddsCaps2Volume
		dx10.ResourceDimension = ddsDX10Dimension3D
	}
	if desc.Flags&metadata.TextureFlagCube != 0 {
		dx10.MiscFlag |= ddsDX10MiscCube
		dx10.ArraySize = desc.ArraySize / 6
		header.Caps2 |= ddsCaps2Cube
	}
	for _, v := range []interface{}{fourCC("DDS "), &header, &dx10} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, data := range subresources {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}
