//go:build !headless

package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

/**
 * @brief One Vulkan GPU (node). Implements gpu.Device.
 */
type VulkanDevice struct {
	instance  *Instance
	nodeIndex uint32
	name      string

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	QueueInfo      VulkanPhysicalDeviceQueueFamilyInfo

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	caps gpu.Capabilities

	// vkQueueSubmit needs external synchronization per VkQueue
	queueMutex   sync.Mutex
	familyLocks  map[uint32]*sync.Mutex
	familyQueues map[uint32]vk.Queue
}

// SelectPhysicalDevices returns up to count devices exposing a graphics queue.
func SelectPhysicalDevices(inst *Instance, count uint32) ([]vk.PhysicalDevice, error) {
	all, err := inst.PhysicalDevices()
	if err != nil {
		return nil, err
	}
	selected := []vk.PhysicalDevice{}
	for _, pd := range all {
		if uint32(len(selected)) == count {
			break
		}
		info := queryQueueFamilies(pd)
		if info.GraphicsFamilyIndex < 0 || info.TransferFamilyIndex < 0 {
			core.LogInfo("Device has no graphics queue. Skipping.")
			continue
		}
		selected = append(selected, pd)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no physical devices were found which meet the requirements")
	}
	return selected, nil
}

func queryQueueFamilies(device vk.PhysicalDevice) VulkanPhysicalDeviceQueueFamilyInfo {
	info := VulkanPhysicalDeviceQueueFamilyInfo{-1, -1, -1}

	var queueFamilyCount uint32 = 0
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	minTransferScore := 255
	for i := 0; i < int(queueFamilyCount); i++ {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		currentTransferScore := 0

		if flags&vk.QueueGraphicsBit > 0 {
			if info.GraphicsFamilyIndex < 0 {
				info.GraphicsFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		if flags&vk.QueueComputeBit > 0 {
			if info.ComputeFamilyIndex < 0 {
				info.ComputeFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		// Graphics and compute families implicitly support transfers.
		if flags&(vk.QueueTransferBit|vk.QueueGraphicsBit|vk.QueueComputeBit) > 0 {
			// Take the index if it is the current lowest. This increases the
			// likelihood that it is a dedicated transfer queue.
			if currentTransferScore < minTransferScore {
				minTransferScore = currentTransferScore
				info.TransferFamilyIndex = int32(i)
			}
		}
	}
	return info
}

func NewVulkanDevice(inst *Instance, physicalDevice vk.PhysicalDevice, nodeIndex uint32) (*VulkanDevice, error) {
	d := &VulkanDevice{
		instance:       inst,
		nodeIndex:      nodeIndex,
		PhysicalDevice: physicalDevice,
		QueueInfo:      queryQueueFamilies(physicalDevice),
		familyLocks:    map[uint32]*sync.Mutex{},
		familyQueues:   map[uint32]vk.Queue{},
	}
	vk.GetPhysicalDeviceProperties(physicalDevice, &d.Properties)
	d.Properties.Deref()
	d.Properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(physicalDevice, &d.Features)
	d.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &d.Memory)
	d.Memory.Deref()

	end := FindFirstZeroInByteArray(d.Properties.DeviceName[:])
	d.name = string(d.Properties.DeviceName[:end])
	core.LogInfo("Selected device: '%s' for node %d.", d.name, nodeIndex)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version.Major(vk.Version(d.Properties.ApiVersion)),
		vk.Version.Minor(vk.Version(d.Properties.ApiVersion)),
		vk.Version.Patch(vk.Version(d.Properties.ApiVersion)),
	)

	families := []uint32{uint32(d.QueueInfo.GraphicsFamilyIndex)}
	if d.QueueInfo.TransferFamilyIndex != d.QueueInfo.GraphicsFamilyIndex {
		families = append(families, uint32(d.QueueInfo.TransferFamilyIndex))
	}
	if d.QueueInfo.ComputeFamilyIndex >= 0 && d.QueueInfo.ComputeFamilyIndex != d.QueueInfo.GraphicsFamilyIndex && d.QueueInfo.ComputeFamilyIndex != d.QueueInfo.TransferFamilyIndex {
		families = append(families, uint32(d.QueueInfo.ComputeFamilyIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{}
	if hasDeviceExtension(physicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	if res := vk.CreateDevice(physicalDevice, &deviceCreateInfo, inst.Allocator, &d.LogicalDevice); res != vk.Success {
		err := vkError("failed to create logical device", res)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Logical device created.")

	for _, family := range families {
		var q vk.Queue
		vk.GetDeviceQueue(d.LogicalDevice, family, 0, &q)
		d.familyQueues[family] = q
		d.familyLocks[family] = &sync.Mutex{}
	}

	limits := d.Properties.Limits
	d.caps = gpu.Capabilities{
		UnifiedMemory:                   d.Properties.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu,
		StrictQueueTypeBarriers:         d.QueueInfo.TransferFamilyIndex != d.QueueInfo.GraphicsFamilyIndex,
		UploadBufferTextureRowAlignment: max(uint32(limits.OptimalBufferCopyRowPitchAlignment), 16),
		UploadBufferTextureAlignment:    max(uint32(limits.OptimalBufferCopyOffsetAlignment), 16),
		UploadBufferAlignment:           max(uint32(limits.NonCoherentAtomSize), 4),
	}.WithDefaults()
	return d, nil
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if string(available[i].ExtensionName[:end]) == name {
			return true
		}
	}
	return false
}

func (d *VulkanDevice) NodeIndex() uint32 {
	return d.nodeIndex
}

func (d *VulkanDevice) Capabilities() gpu.Capabilities {
	return d.caps
}

func (d *VulkanDevice) Name() string {
	return d.name
}

func (d *VulkanDevice) familyOf(queueType metadata.QueueType) (uint32, error) {
	switch queueType {
	case metadata.QueueTypeGraphics:
		return uint32(d.QueueInfo.GraphicsFamilyIndex), nil
	case metadata.QueueTypeTransfer:
		return uint32(d.QueueInfo.TransferFamilyIndex), nil
	case metadata.QueueTypeCompute:
		if d.QueueInfo.ComputeFamilyIndex >= 0 {
			return uint32(d.QueueInfo.ComputeFamilyIndex), nil
		}
	}
	return 0, gpu.ErrQueueTypeMissing
}

// sharedFamilies lists the families resources are shared between.
func (d *VulkanDevice) sharedFamilies() []uint32 {
	if d.QueueInfo.TransferFamilyIndex == d.QueueInfo.GraphicsFamilyIndex {
		return nil
	}
	return []uint32{uint32(d.QueueInfo.GraphicsFamilyIndex), uint32(d.QueueInfo.TransferFamilyIndex)}
}

func (d *VulkanDevice) NewQueue(queueType metadata.QueueType) (gpu.Queue, error) {
	family, err := d.familyOf(queueType)
	if err != nil {
		return nil, err
	}
	d.queueMutex.Lock()
	defer d.queueMutex.Unlock()
	return &VulkanQueue{
		device:    d,
		Handle:    d.familyQueues[family],
		family:    family,
		queueType: queueType,
		mutex:     d.familyLocks[family],
	}, nil
}

func (d *VulkanDevice) WaitIdle() error {
	return vkError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
}

func (d *VulkanDevice) Destroy() error {
	if d.LogicalDevice == nil {
		return gpu.ErrAlreadyDestroyed
	}
	vk.DeviceWaitIdle(d.LogicalDevice)
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.LogicalDevice, d.instance.Allocator)
	d.LogicalDevice = nil
	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
	return nil
}

func (d *VulkanDevice) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		d.Memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(d.Memory.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
