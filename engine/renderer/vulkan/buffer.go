//go:build !headless

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type VulkanBuffer struct {
	device *VulkanDevice
	desc   metadata.BufferDesc
	Handle vk.Buffer
	Memory vk.DeviceMemory
	mapped []byte
	// host visible memory stays mapped for the lifetime of the buffer
	hostVisible bool
	// shared by the graphics and transfer families without ownership transfers
	concurrent bool
}

func bufferUsage(desc *metadata.BufferDesc) vk.BufferUsageFlags {
	usage := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	if desc.Descriptors&metadata.DescriptorTypeUniformBuffer != 0 {
		usage |= vk.BufferUsageUniformBufferBit
	}
	if desc.Descriptors&metadata.DescriptorTypeRWBuffer != 0 {
		usage |= vk.BufferUsageStorageBufferBit
	}
	if desc.Descriptors&metadata.DescriptorTypeVertexBuffer != 0 {
		usage |= vk.BufferUsageVertexBufferBit
	}
	if desc.Descriptors&metadata.DescriptorTypeIndexBuffer != 0 {
		usage |= vk.BufferUsageIndexBufferBit
	}
	if desc.Descriptors&metadata.DescriptorTypeIndirectBuffer != 0 {
		usage |= vk.BufferUsageIndirectBufferBit
	}
	return vk.BufferUsageFlags(usage)
}

func (d *VulkanDevice) NewBuffer(desc *metadata.BufferDesc) (gpu.Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, fmt.Errorf("buffer size must be greater than zero: %w", gpu.ErrInvalidDesc)
	}
	b := &VulkanBuffer{device: d, desc: *desc}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc),
		SharingMode: vk.SharingModeExclusive,
	}
	if families := d.sharedFamilies(); families != nil {
		createInfo.SharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(families))
		createInfo.PQueueFamilyIndices = families
		b.concurrent = true
	}
	if res := vk.CreateBuffer(d.LogicalDevice, &createInfo, d.instance.Allocator, &b.Handle); res != vk.Success {
		err := vkError(fmt.Sprintf("failed to create buffer `%s`", desc.Name), res)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, b.Handle, &requirements)
	requirements.Deref()

	b.hostVisible = d.caps.UnifiedMemory || desc.MemoryUsage.IsCPUVisible()
	properties := vk.MemoryPropertyDeviceLocalBit
	if b.hostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
		if desc.MemoryUsage == metadata.MemoryUsageGPUToCPU {
			properties |= vk.MemoryPropertyHostCachedBit
		}
	}
	index := d.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
	if index < 0 && properties&vk.MemoryPropertyHostCachedBit != 0 {
		index = d.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	}
	if index < 0 {
		vk.DestroyBuffer(d.LogicalDevice, b.Handle, d.instance.Allocator)
		return nil, fmt.Errorf("no memory type for buffer `%s`: %w", desc.Name, gpu.ErrOutOfMemory)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if res := vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.instance.Allocator, &b.Memory); res != vk.Success {
		vk.DestroyBuffer(d.LogicalDevice, b.Handle, d.instance.Allocator)
		err := vkError(fmt.Sprintf("failed to allocate memory for buffer `%s`", desc.Name), res)
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindBufferMemory(d.LogicalDevice, b.Handle, b.Memory, 0); res != vk.Success {
		b.release()
		return nil, vkError("vkBindBufferMemory", res)
	}
	if b.hostVisible {
		if _, err := b.Map(); err != nil {
			b.release()
			return nil, err
		}
	}
	return b, nil
}

func (b *VulkanBuffer) Desc() *metadata.BufferDesc {
	return &b.desc
}

func (b *VulkanBuffer) Size() uint64 {
	return b.desc.Size
}

func (b *VulkanBuffer) NodeIndex() uint32 {
	return b.device.nodeIndex
}

func (b *VulkanBuffer) Mapped() []byte {
	return b.mapped
}

func (b *VulkanBuffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}
	if !b.hostVisible {
		return nil, fmt.Errorf("buffer `%s` lives in device memory: %w", b.desc.Name, gpu.ErrInvalidDesc)
	}
	var data unsafe.Pointer
	if res := vk.MapMemory(b.device.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.desc.Size), 0, &data); res != vk.Success {
		err := vkError(fmt.Sprintf("failed to map buffer `%s`", b.desc.Name), res)
		core.LogError(err.Error())
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(data), b.desc.Size)
	return b.mapped, nil
}

func (b *VulkanBuffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.device.LogicalDevice, b.Memory)
	b.mapped = nil
}

func (b *VulkanBuffer) Destroy() error {
	if b.Handle == nil {
		return gpu.ErrAlreadyDestroyed
	}
	b.Unmap()
	b.release()
	return nil
}

func (b *VulkanBuffer) release() {
	vk.DestroyBuffer(b.device.LogicalDevice, b.Handle, b.device.instance.Allocator)
	vk.FreeMemory(b.device.LogicalDevice, b.Memory, b.device.instance.Allocator)
	b.Handle = nil
	b.Memory = nil
}
