//go:build headless

package renderer

import (
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
)

func newVulkanDevices(config Config) ([]gpu.Device, func(), error) {
	return nil, nil, gpu.ErrBackendUnavailable
}
