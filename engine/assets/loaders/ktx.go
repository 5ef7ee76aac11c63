package loaders

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

const (
	ktxEndianness     = 0x04030201
	ktxHeaderSize     = 64
	ktxRowAlignment   = 4
	glUnsignedByte    = 0x1401
	glHalfFloat       = 0x140B
	glFloat           = 0x1406
	glRed             = 0x1903
	glRG              = 0x8227
	glRGBA            = 0x1908
	glBGRA            = 0x80E1
	glSRGBAlpha       = 0x8C42
)

type ktxHeader struct {
	Identifier            [12]byte
	Endianness            uint32
	GLType                uint32
	GLTypeSize            uint32
	GLFormat              uint32
	GLInternalFormat      uint32
	GLBaseInternalFormat  uint32
	PixelWidth            uint32
	PixelHeight           uint32
	PixelDepth            uint32
	NumberOfArrayElements uint32
	NumberOfFaces         uint32
	NumberOfMipmapLevels  uint32
	BytesOfKeyValueData   uint32
}

var ktxFormats = map[uint32]metadata.TextureFormat{
	0x8229: metadata.TextureFormatR8,
	0x822B: metadata.TextureFormatRG8,
	0x8058: metadata.TextureFormatRGBA8,
	0x8C43: metadata.TextureFormatRGBA8SRGB,
	0x93A1: metadata.TextureFormatBGRA8,
	0x822D: metadata.TextureFormatR16F,
	0x881A: metadata.TextureFormatRGBA16F,
	0x822E: metadata.TextureFormatR32F,
	0x8814: metadata.TextureFormatRGBA32F,
	0x83F0: metadata.TextureFormatBC1,
	0x83F1: metadata.TextureFormatBC1,
	0x8C4D: metadata.TextureFormatBC1SRGB,
	0x83F2: metadata.TextureFormatBC2,
	0x83F3: metadata.TextureFormatBC3,
	0x8C4F: metadata.TextureFormatBC3SRGB,
	0x8DBB: metadata.TextureFormatBC4,
	0x8DBD: metadata.TextureFormatBC5,
	0x8E8C: metadata.TextureFormatBC7,
	0x8E8D: metadata.TextureFormatBC7SRGB,
	0x9274: metadata.TextureFormatETC2RGB8,
	0x9278: metadata.TextureFormatETC2RGBA8,
	0x93B0: metadata.TextureFormatASTC4x4,
}

func parseKTX(r io.ReadSeeker) (*TextureContainer, error) {
	var header ktxHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("ktx header: %w", ErrInvalidContainer)
	}
	if header.Endianness != ktxEndianness {
		return nil, fmt.Errorf("big endian ktx: %w", ErrInvalidContainer)
	}
	if header.NumberOfFaces != 1 && header.NumberOfFaces != 6 {
		return nil, fmt.Errorf("ktx with %d faces: %w", header.NumberOfFaces, ErrInvalidContainer)
	}

	desc := metadata.TextureDesc{
		Format:    ktxFormats[header.GLInternalFormat],
		Width:     header.PixelWidth,
		Height:    max(header.PixelHeight, 1),
		Depth:     max(header.PixelDepth, 1),
		ArraySize: max(header.NumberOfArrayElements, 1) * header.NumberOfFaces,
		MipLevels: max(header.NumberOfMipmapLevels, 1),
	}
	if header.NumberOfFaces == 6 {
		desc.Flags |= metadata.TextureFlagCube
	}
	if err := validateDesc(&desc); err != nil {
		return nil, err
	}
	return &TextureContainer{
		Desc:          desc,
		Reader:        r,
		DataOffset:    ktxHeaderSize + int64(header.BytesOfKeyValueData),
		Order:         SubresourceOrderMipsMajor,
		MipSizePrefix: true,
		RowAlignment:  ktxRowAlignment,
		Kind:          "ktx",
	}, nil
}

func ktxGLFormats(f metadata.TextureFormat) (internal, format, glType, typeSize uint32, ok bool) {
	for k, v := range ktxFormats {
		if v == f {
			internal = k
			ok = true
			break
		}
	}
	if !ok {
		return
	}
	typeSize = 1
	switch f {
	case metadata.TextureFormatR8:
		format, glType = glRed, glUnsignedByte
	case metadata.TextureFormatRG8:
		format, glType = glRG, glUnsignedByte
	case metadata.TextureFormatRGBA8:
		format, glType = glRGBA, glUnsignedByte
	case metadata.TextureFormatRGBA8SRGB:
		format, glType = glSRGBAlpha, glUnsignedByte
	case metadata.TextureFormatBGRA8:
		format, glType = glBGRA, glUnsignedByte
	case metadata.TextureFormatR16F:
		format, glType, typeSize = glRed, glHalfFloat, 2
	case metadata.TextureFormatRGBA16F:
		format, glType, typeSize = glRGBA, glHalfFloat, 2
	case metadata.TextureFormatR32F:
		format, glType, typeSize = glRed, glFloat, 4
	case metadata.TextureFormatRGBA32F:
		format, glType, typeSize = glRGBA, glFloat, 4
	}
	return
}

/**
 * @brief Writes a KTX 1.1 file. Rows are padded to 4 bytes and each mip level is
 * preceded by its size.
 * @param subresources Tightly packed pixel data indexed by layer*MipLevels+mip.
 */
func WriteKTX(w io.Writer, desc metadata.TextureDesc, subresources [][]byte) error {
	desc = desc.Normalized()
	internal, format, glType, typeSize, ok := ktxGLFormats(desc.Format)
	if !ok {
		return fmt.Errorf("format %s has no ktx encoding: %w", desc.Format, ErrInvalidContainer)
	}
	if uint32(len(subresources)) != desc.MipLevels*desc.ArraySize {
		return fmt.Errorf("%d subresources for %d mips x %d layers: %w", len(subresources), desc.MipLevels, desc.ArraySize, ErrInvalidContainer)
	}
	faces := uint32(1)
	elements := desc.ArraySize
	if desc.Flags&metadata.TextureFlagCube != 0 {
		faces = 6
		elements = desc.ArraySize / 6
	}
	if elements == 1 {
		elements = 0
	}
	header := ktxHeader{
		Endianness:            ktxEndianness,
		GLType:                glType,
		GLTypeSize:            typeSize,
		GLFormat:              format,
		GLInternalFormat:      internal,
		GLBaseInternalFormat:  format,
		PixelWidth:            desc.Width,
		PixelHeight:           desc.Height,
		NumberOfArrayElements: elements,
		NumberOfFaces:         faces,
		NumberOfMipmapLevels:  desc.MipLevels,
	}
	if desc.Depth > 1 {
		header.PixelDepth = desc.Depth
	}
	copy(header.Identifier[:], ktxMagic)
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}

	pad := make([]byte, ktxRowAlignment)
	for mip := uint32(0); mip < desc.MipLevels; mip++ {
		width, height, depth := desc.MipExtent(mip)
		rowBytes := desc.Format.RowBytes(width)
		rows := desc.Format.NumRows(height) * depth
		rowPad := (ktxRowAlignment - rowBytes%ktxRowAlignment) % ktxRowAlignment
		imageSize := (rowBytes + rowPad) * rows
		if err := binary.Write(w, binary.LittleEndian, imageSize); err != nil {
			return err
		}
		for layer := uint32(0); layer < desc.ArraySize; layer++ {
			data := subresources[layer*desc.MipLevels+mip]
			if uint32(len(data)) != rowBytes*rows {
				return fmt.Errorf("mip %d layer %d holds %d bytes, expected %d: %w", mip, layer, len(data), rowBytes*rows, ErrInvalidContainer)
			}
			for row := uint32(0); row < rows; row++ {
				if _, err := w.Write(data[row*rowBytes : (row+1)*rowBytes]); err != nil {
					return err
				}
				if _, err := w.Write(pad[:rowPad]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
