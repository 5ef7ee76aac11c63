package metadata

type TextureFlag uint32

const (
	TextureFlagNone TextureFlag = 0x0
	/** @brief The texture is a cubemap; ArraySize counts faces. */
	TextureFlagCube TextureFlag = 0x1
	/** @brief The texture can be written (rendered) to. */
	TextureFlagIsWriteable TextureFlag = 0x2
	/** @brief Data is in the sRGB colour space. */
	TextureFlagSRGB TextureFlag = 0x4
)

/**
 * @brief Describes a GPU texture to be created.
 */
type TextureDesc struct {
	/** @brief Debug name of the texture. */
	Name string
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief The texture Depth, 1 for 2d textures. */
	Depth uint32
	/** @brief The number of array layers (faces for cubemaps). */
	ArraySize uint32
	/** @brief The number of mip levels. */
	MipLevels uint32
	Format    TextureFormat
	Flags     TextureFlag
	/** @brief How the texture is going to be bound. */
	Descriptors DescriptorType
	/** @brief The state the texture is expected to be in once loaded. */
	StartState ResourceState
	/** @brief The GPU the texture belongs to. */
	NodeIndex uint32
}

// MipExtent returns the dimensions of the given mip level.
func (d *TextureDesc) MipExtent(mip uint32) (width, height, depth uint32) {
	width = max(d.Width>>mip, 1)
	height = max(d.Height>>mip, 1)
	depth = max(d.Depth>>mip, 1)
	return
}

// Normalized returns a copy with zero counts replaced by one.
func (d TextureDesc) Normalized() TextureDesc {
	d.Depth = max(d.Depth, 1)
	d.ArraySize = max(d.ArraySize, 1)
	d.MipLevels = max(d.MipLevels, 1)
	return d
}

/** @brief Pixel formats understood by the loader and the backends. */
type TextureFormat uint32

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatR8
	TextureFormatRG8
	TextureFormatRGBA8
	TextureFormatRGBA8SRGB
	TextureFormatBGRA8
	TextureFormatBGRA8SRGB
	TextureFormatR16F
	TextureFormatRGBA16F
	TextureFormatR32F
	TextureFormatRGBA32F
	TextureFormatBC1
	TextureFormatBC1SRGB
	TextureFormatBC2
	TextureFormatBC3
	TextureFormatBC3SRGB
	TextureFormatBC4
	TextureFormatBC5
	TextureFormatBC7
	TextureFormatBC7SRGB
	TextureFormatETC2RGB8
	TextureFormatETC2RGBA8
	TextureFormatASTC4x4
	TextureFormatCount
)

/** @brief Layout of one texel block of a format. */
type FormatInfo struct {
	Name          string
	BlockWidth    uint32
	BlockHeight   uint32
	BytesPerBlock uint32
	Compressed    bool
	SRGB          bool
}

var formatInfos = [TextureFormatCount]FormatInfo{
	TextureFormatUndefined: {Name: "undefined"},
	TextureFormatR8:        {"R8", 1, 1, 1, false, false},
	TextureFormatRG8:       {"RG8", 1, 1, 2, false, false},
	TextureFormatRGBA8:     {"RGBA8", 1, 1, 4, false, false},
	TextureFormatRGBA8SRGB: {"RGBA8_SRGB", 1, 1, 4, false, true},
	TextureFormatBGRA8:     {"BGRA8", 1, 1, 4, false, false},
	TextureFormatBGRA8SRGB: {"BGRA8_SRGB", 1, 1, 4, false, true},
	TextureFormatR16F:      {"R16F", 1, 1, 2, false, false},
	TextureFormatRGBA16F:   {"RGBA16F", 1, 1, 8, false, false},
	TextureFormatR32F:      {"R32F", 1, 1, 4, false, false},
	TextureFormatRGBA32F:   {"RGBA32F", 1, 1, 16, false, false},
	TextureFormatBC1:       {"BC1", 4, 4, 8, true, false},
	TextureFormatBC1SRGB:   {"BC1_SRGB", 4, 4, 8, true, true},
	TextureFormatBC2:       {"BC2", 4, 4, 16, true, false},
	TextureFormatBC3:       {"BC3", 4, 4, 16, true, false},
	TextureFormatBC3SRGB:   {"BC3_SRGB", 4, 4, 16, true, true},
	TextureFormatBC4:       {"BC4", 4, 4, 8, true, false},
	TextureFormatBC5:       {"BC5", 4, 4, 16, true, false},
	TextureFormatBC7:       {"BC7", 4, 4, 16, true, false},
	TextureFormatBC7SRGB:   {"BC7_SRGB", 4, 4, 16, true, true},
	TextureFormatETC2RGB8:  {"ETC2_RGB8", 4, 4, 8, true, false},
	TextureFormatETC2RGBA8: {"ETC2_RGBA8", 4, 4, 16, true, false},
	TextureFormatASTC4x4:   {"ASTC_4x4", 4, 4, 16, true, false},
}

// Info returns the block layout of the format. Unknown formats report a zero block size.
func (f TextureFormat) Info() FormatInfo {
	if f >= TextureFormatCount {
		return formatInfos[TextureFormatUndefined]
	}
	return formatInfos[f]
}

func (f TextureFormat) String() string {
	return f.Info().Name
}

func (f TextureFormat) IsValid() bool {
	return f > TextureFormatUndefined && f < TextureFormatCount
}

// RowBytes is the tightly packed size of one row of blocks.
func (f TextureFormat) RowBytes(width uint32) uint32 {
	info := f.Info()
	if info.BytesPerBlock == 0 {
		return 0
	}
	return (width + info.BlockWidth - 1) / info.BlockWidth * info.BytesPerBlock
}

// NumRows is the number of block rows in an image of the given height.
func (f TextureFormat) NumRows(height uint32) uint32 {
	info := f.Info()
	if info.BlockHeight == 0 {
		return 0
	}
	return (height + info.BlockHeight - 1) / info.BlockHeight
}
