//go:build !headless

package renderer

import (
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/vulkan"
)

func newVulkanDevices(config Config) ([]gpu.Device, func(), error) {
	inst, err := vulkan.NewInstance(config.AppName, config.Debug)
	if err != nil {
		return nil, nil, err
	}
	physicalDevices, err := vulkan.SelectPhysicalDevices(inst, config.GPUCount)
	if err != nil {
		inst.Destroy()
		return nil, nil, err
	}
	devices := make([]gpu.Device, 0, len(physicalDevices))
	for i, pd := range physicalDevices {
		d, err := vulkan.NewVulkanDevice(inst, pd, uint32(i))
		if err != nil {
			for _, created := range devices {
				_ = created.Destroy()
			}
			inst.Destroy()
			return nil, nil, err
		}
		devices = append(devices, d)
	}
	return devices, inst.Destroy, nil
}
