//go:build !headless

package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type VulkanQueue struct {
	device    *VulkanDevice
	Handle    vk.Queue
	family    uint32
	queueType metadata.QueueType
	// shared by every VulkanQueue of the same family
	mutex *sync.Mutex
}

func (q *VulkanQueue) Type() metadata.QueueType {
	return q.queueType
}

func (q *VulkanQueue) Family() uint32 {
	return q.family
}

func (q *VulkanQueue) Submit(desc *gpu.SubmitDesc) error {
	cmds := make([]vk.CommandBuffer, 0, len(desc.Cmds))
	for _, c := range desc.Cmds {
		cmds = append(cmds, c.(*VulkanCommandBuffer).Handle)
	}
	waits := []vk.Semaphore{}
	waitStages := []vk.PipelineStageFlags{}
	for _, s := range desc.WaitSemaphores {
		if s == nil {
			continue
		}
		waits = append(waits, s.(*VulkanSemaphore).Handle)
		waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
	}
	signals := []vk.Semaphore{}
	for _, s := range desc.SignalSemaphores {
		if s == nil {
			continue
		}
		signals = append(signals, s.(*VulkanSemaphore).Handle)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}

	var fence vk.Fence
	var vf *VulkanFence
	if desc.Fence != nil {
		vf = desc.Fence.(*VulkanFence)
		if vf.submitted.Load() {
			return gpu.ErrFencePending
		}
		fence = vf.Handle
	}

	q.mutex.Lock()
	res := vk.QueueSubmit(q.Handle, 1, []vk.SubmitInfo{submitInfo}, fence)
	q.mutex.Unlock()
	if res != vk.Success {
		err := vkError("failed to submit to "+q.queueType.String()+" queue", res)
		core.LogError(err.Error())
		return err
	}
	if vf != nil {
		vf.submitted.Store(true)
	}
	return nil
}

func (q *VulkanQueue) WaitIdle() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if res := vk.QueueWaitIdle(q.Handle); res != vk.Success {
		err := vkError("queue failed to wait in idle mode", res)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// Queues are owned by the device.
func (q *VulkanQueue) Destroy() {}
