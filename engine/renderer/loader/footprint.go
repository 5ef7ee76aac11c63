package loader

import (
	"github.com/thefork190/TheFork-sub000/engine/math"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief Layout of one texture subresource inside an upload or readback buffer.
 */
type Footprint struct {
	/** @brief Tightly packed size of one row of texel blocks. */
	RowBytes uint32
	/** @brief Number of block rows in one depth slice. */
	Rows  uint32
	Depth uint32
	/** @brief RowBytes rounded up to the device row alignment. */
	RowPitch uint32
	/** @brief RowPitch*Rows rounded up to the device subresource alignment. */
	SlicePitch uint32
	/** @brief Bytes the subresource occupies in the buffer. */
	Size uint64
}

// SubresourceFootprint computes the buffer layout of the given mip level of desc on a device.
func SubresourceFootprint(caps gpu.Capabilities, desc *metadata.TextureDesc, mip uint32) Footprint {
	width, height, depth := desc.MipExtent(mip)
	fp := Footprint{
		RowBytes: desc.Format.RowBytes(width),
		Rows:     desc.Format.NumRows(height),
		Depth:    depth,
	}
	fp.RowPitch = math.AlignUp(fp.RowBytes, caps.UploadBufferTextureRowAlignment)
	fp.SlicePitch = math.AlignUp(fp.RowPitch*fp.Rows, caps.UploadBufferTextureAlignment)
	fp.Size = uint64(fp.SlicePitch) * uint64(fp.Depth)
	return fp
}

// RowOffset is the byte offset of row r of depth slice z.
func (f Footprint) RowOffset(z, r uint32) uint64 {
	return uint64(z)*uint64(f.SlicePitch) + uint64(r)*uint64(f.RowPitch)
}
