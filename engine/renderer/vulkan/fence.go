//go:build !headless

package vulkan

import (
	"math"
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
)

type VulkanFence struct {
	device    *VulkanDevice
	Handle    vk.Fence
	submitted atomic.Bool
}

func (d *VulkanDevice) NewFence() (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var pFence vk.Fence
	if res := vk.CreateFence(d.LogicalDevice, &fenceCreateInfo, d.instance.Allocator, &pFence); res != vk.Success {
		err := vkError("failed to create fence", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanFence{device: d, Handle: pFence}, nil
}

func (vf *VulkanFence) Status() gpu.FenceStatus {
	if !vf.submitted.Load() {
		return gpu.FenceStatusNotSubmitted
	}
	if vk.GetFenceStatus(vf.device.LogicalDevice, vf.Handle) == vk.Success {
		return gpu.FenceStatusComplete
	}
	return gpu.FenceStatusIncomplete
}

func (vf *VulkanFence) Wait() error {
	if !vf.submitted.Load() {
		return nil
	}
	result := vk.WaitForFences(vf.device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, math.MaxUint64)
	switch result {
	case vk.Success:
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return vkError("vkWaitForFences", result)
	default:
		err := vkError("vkWaitForFences", result)
		core.LogError(err.Error())
		return err
	}
	if res := vk.ResetFences(vf.device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		err := vkError("failed to reset fence", res)
		core.LogError(err.Error())
		return err
	}
	vf.submitted.Store(false)
	return nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != nil {
		vk.DestroyFence(vf.device.LogicalDevice, vf.Handle, vf.device.instance.Allocator)
		vf.Handle = nil
	}
	vf.submitted.Store(false)
}

type VulkanSemaphore struct {
	device *VulkanDevice
	Handle vk.Semaphore
}

func (d *VulkanDevice) NewSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var s vk.Semaphore
	if res := vk.CreateSemaphore(d.LogicalDevice, &semaphoreCreateInfo, d.instance.Allocator, &s); res != vk.Success {
		err := vkError("failed to create semaphore", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanSemaphore{device: d, Handle: s}, nil
}

func (vs *VulkanSemaphore) Destroy() {
	if vs.Handle != vk.NullSemaphore {
		vk.DestroySemaphore(vs.device.LogicalDevice, vs.Handle, vs.device.instance.Allocator)
		vs.Handle = vk.NullSemaphore
	}
}
