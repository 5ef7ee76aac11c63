//go:build !headless

package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type VulkanCommandPool struct {
	device *VulkanDevice
	queue  *VulkanQueue
	Handle vk.CommandPool
}

func (d *VulkanDevice) NewCmdPool(queue gpu.Queue) (gpu.CmdPool, error) {
	q := queue.(*VulkanQueue)
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: q.family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	pool := &VulkanCommandPool{device: d, queue: q}
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolCreateInfo, d.instance.Allocator, &pool.Handle); res != vk.Success {
		err := vkError("failed to create command pool", res)
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}

func (p *VulkanCommandPool) NewCmd() (gpu.CmdBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.Handle,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(p.device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := vkError("failed to allocate command buffer", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanCommandBuffer{pool: p, Handle: handles[0], State: COMMAND_BUFFER_STATE_READY}, nil
}

func (p *VulkanCommandPool) Reset() error {
	return vkError("vkResetCommandPool", vk.ResetCommandPool(p.device.LogicalDevice, p.Handle, 0))
}

func (p *VulkanCommandPool) Destroy() {
	vk.DestroyCommandPool(p.device.LogicalDevice, p.Handle, p.device.instance.Allocator)
}

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	pool   *VulkanCommandPool
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func (v *VulkanCommandBuffer) Queue() gpu.Queue {
	return v.pool.queue
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		err := vkError("failed to begin command buffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := vkError("failed to end command buffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) Destroy() {
	vk.FreeCommandBuffers(v.pool.device.LogicalDevice, v.pool.Handle, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) CopyBuffer(c *gpu.BufferCopy) {
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(c.SrcOffset),
		DstOffset: vk.DeviceSize(c.DstOffset),
		Size:      vk.DeviceSize(c.Size),
	}
	vk.CmdCopyBuffer(v.Handle, c.Src.(*VulkanBuffer).Handle, c.Dst.(*VulkanBuffer).Handle, 1, []vk.BufferCopy{region})
}

// subresourceRegions builds one region per depth slice, slice pitch need not be a
// multiple of the row pitch.
func subresourceRegions(c *gpu.BufferTextureCopy) []vk.BufferImageCopy {
	desc := c.Texture.Desc()
	info := desc.Format.Info()
	w, h, d := desc.MipExtent(c.MipLevel)
	rowLength := c.RowPitch / info.BytesPerBlock * info.BlockWidth
	regions := make([]vk.BufferImageCopy, 0, d)
	for z := uint32(0); z < d; z++ {
		regions = append(regions, vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(c.BufferOffset + uint64(z)*uint64(c.SlicePitch)),
			BufferRowLength:   rowLength,
			BufferImageHeight: 0,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       c.MipLevel,
				BaseArrayLayer: c.ArrayLayer,
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: int32(z)},
			ImageExtent: vk.Extent3D{Width: w, Height: h, Depth: 1},
		})
	}
	return regions
}

func (v *VulkanCommandBuffer) CopyBufferToTexture(c *gpu.BufferTextureCopy) {
	regions := subresourceRegions(c)
	vk.CmdCopyBufferToImage(v.Handle, c.Buffer.(*VulkanBuffer).Handle, c.Texture.(*VulkanTexture).Handle,
		vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)
}

func (v *VulkanCommandBuffer) CopyTextureToBuffer(c *gpu.BufferTextureCopy) {
	regions := subresourceRegions(c)
	vk.CmdCopyImageToBuffer(v.Handle, c.Texture.(*VulkanTexture).Handle, vk.ImageLayoutTransferSrcOptimal,
		c.Buffer.(*VulkanBuffer).Handle, uint32(len(regions)), regions)
}

// ownership maps the acquire/release half of a barrier to queue family indices.
// Release hands the resource from the recording queue's family to other,
// acquire takes it from other.
func (v *VulkanCommandBuffer) ownership(acquire, release bool, other metadata.QueueType, concurrent bool) (src, dst uint32) {
	if concurrent || (!acquire && !release) {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	own := v.pool.queue.family
	foreign, err := v.pool.device.familyOf(other)
	if err != nil || foreign == own {
		return vk.QueueFamilyIgnored, vk.QueueFamilyIgnored
	}
	if acquire {
		return foreign, own
	}
	return own, foreign
}

// ResourceBarrier records state transitions. Images are owned by one queue family
// at a time, so barriers flagged Acquire or Release carry a queue family ownership
// transfer. Buffers shared concurrently between families only transition access.
func (v *VulkanCommandBuffer) ResourceBarrier(buffers []gpu.BufferBarrier, textures []gpu.TextureBarrier) {
	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, b := range buffers {
		buffer := b.Buffer.(*VulkanBuffer)
		src, dst := v.ownership(b.Acquire, b.Release, b.QueueType, buffer.concurrent)
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       toAccessFlags(b.CurrentState),
			DstAccessMask:       toAccessFlags(b.NewState),
			SrcQueueFamilyIndex: src,
			DstQueueFamilyIndex: dst,
			Buffer:              buffer.Handle,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(textures))
	for _, t := range textures {
		desc := t.Texture.Desc()
		subresource := vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     desc.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     desc.ArraySize,
		}
		if t.Subresource {
			subresource.BaseMipLevel = t.MipLevel
			subresource.LevelCount = 1
			subresource.BaseArrayLayer = t.ArrayLayer
			subresource.LayerCount = 1
		}
		src, dst := v.ownership(t.Acquire, t.Release, t.QueueType, false)
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       toAccessFlags(t.CurrentState),
			DstAccessMask:       toAccessFlags(t.NewState),
			OldLayout:           toImageLayout(t.CurrentState),
			NewLayout:           toImageLayout(t.NewState),
			SrcQueueFamilyIndex: src,
			DstQueueFamilyIndex: dst,
			Image:               t.Texture.(*VulkanTexture).Handle,
			SubresourceRange:    subresource,
		})
	}
	if len(bufferBarriers) == 0 && len(imageBarriers) == 0 {
		return
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	vk.CmdPipelineBarrier(v.Handle, stages, stages, 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}
