//go:build !headless

package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type VulkanTexture struct {
	device *VulkanDevice
	desc   metadata.TextureDesc
	Handle vk.Image
	Memory vk.DeviceMemory
}

func (d *VulkanDevice) NewTexture(desc *metadata.TextureDesc) (gpu.Texture, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture extent must be greater than zero: %w", gpu.ErrInvalidDesc)
	}
	format, err := toVkFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	t := &VulkanTexture{device: d, desc: desc.Normalized()}

	imageType := vk.ImageType2d
	if t.desc.Depth > 1 {
		imageType = vk.ImageType3d
	}
	usage := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit
	if t.desc.Descriptors&metadata.DescriptorTypeRWTexture != 0 {
		usage |= vk.ImageUsageStorageBit
	}
	var flags vk.ImageCreateFlagBits
	if t.desc.Flags&metadata.TextureFlagCube != 0 {
		flags |= vk.ImageCreateCubeCompatibleBit
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     vk.ImageCreateFlags(flags),
		ImageType: imageType,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  t.desc.Width,
			Height: t.desc.Height,
			Depth:  t.desc.Depth,
		},
		MipLevels:     t.desc.MipLevels,
		ArrayLayers:   t.desc.ArraySize,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if res := vk.CreateImage(d.LogicalDevice, &createInfo, d.instance.Allocator, &t.Handle); res != vk.Success {
		err := vkError(fmt.Sprintf("failed to create image `%s`", t.desc.Name), res)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, t.Handle, &requirements)
	requirements.Deref()
	index := d.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if index < 0 {
		vk.DestroyImage(d.LogicalDevice, t.Handle, d.instance.Allocator)
		return nil, fmt.Errorf("no memory type for image `%s`: %w", t.desc.Name, gpu.ErrOutOfMemory)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if res := vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.instance.Allocator, &t.Memory); res != vk.Success {
		vk.DestroyImage(d.LogicalDevice, t.Handle, d.instance.Allocator)
		err := vkError(fmt.Sprintf("failed to allocate memory for image `%s`", t.desc.Name), res)
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindImageMemory(d.LogicalDevice, t.Handle, t.Memory, 0); res != vk.Success {
		_ = t.Destroy()
		return nil, vkError("vkBindImageMemory", res)
	}
	return t, nil
}

func (t *VulkanTexture) Desc() *metadata.TextureDesc {
	return &t.desc
}

func (t *VulkanTexture) NodeIndex() uint32 {
	return t.device.nodeIndex
}

func (t *VulkanTexture) Destroy() error {
	if t.Handle == nil {
		return gpu.ErrAlreadyDestroyed
	}
	vk.DestroyImage(t.device.LogicalDevice, t.Handle, t.device.instance.Allocator)
	vk.FreeMemory(t.device.LogicalDevice, t.Memory, t.device.instance.Allocator)
	t.Handle = nil
	t.Memory = nil
	return nil
}
