// Package renderer owns the GPU devices of the engine and the resource loader that
// streams data to them.
package renderer

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/loader"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
	"github.com/thefork190/TheFork-sub000/engine/renderer/software"
)

type RendererType string

const (
	Software RendererType = "software"
	Vulkan   RendererType = "vulkan"
)

// ParseRendererType maps a configuration string to a renderer type.
func ParseRendererType(s string) (RendererType, error) {
	switch RendererType(strings.ToLower(s)) {
	case Software, "":
		return Software, nil
	case Vulkan:
		return Vulkan, nil
	}
	return "", fmt.Errorf("unknown renderer `%s`", s)
}

type Config struct {
	AppName string
	Type    RendererType
	/** @brief Number of GPUs (nodes) to drive. */
	GPUCount uint32
	/** @brief Enable backend validation layers, if the backend has any. */
	Debug bool
	/** @brief Template for software devices; Name and NodeIndex are set per node. */
	Software software.Config
	Loader   loader.Config
	/** @brief File system file backed loads are read from. */
	FS fs.FS
}

// One graphics queue per node, used to consume the loader's work each frame.
type frameState struct {
	queue gpu.Queue
	fence gpu.Fence
}

type Renderer struct {
	config Config

	devices        []gpu.Device
	destroyBackend func()
	loader         *loader.ResourceLoader
	frames         []*frameState

	frameNumber uint64
}

/**
 * @brief Creates the devices of the selected backend and the resource loader driving them.
 */
func New(config Config) (*Renderer, error) {
	if config.GPUCount == 0 {
		config.GPUCount = 1
	}
	r := &Renderer{config: config}

	var err error
	switch config.Type {
	case Software, "":
		r.devices = newSoftwareDevices(config)
		r.destroyBackend = func() {}
	case Vulkan:
		r.devices, r.destroyBackend, err = newVulkanDevices(config)
		if err != nil {
			core.LogError("failed to create the vulkan backend: %s", err)
			return nil, err
		}
	default:
		return nil, fmt.Errorf("renderer type `%s`: %w", config.Type, gpu.ErrBackendUnavailable)
	}

	r.loader, err = loader.New(r.devices, config.FS, &config.Loader)
	if err != nil {
		r.destroyDevices()
		return nil, err
	}

	for _, device := range r.devices {
		frame, err := newFrameState(device)
		if err != nil {
			r.loader.Shutdown()
			r.destroyDevices()
			return nil, err
		}
		r.frames = append(r.frames, frame)
	}
	core.LogInfo("%s renderer initialized with %d node(s)", config.Type, len(r.devices))
	return r, nil
}

func newSoftwareDevices(config Config) []gpu.Device {
	devices := make([]gpu.Device, 0, config.GPUCount)
	for i := uint32(0); i < config.GPUCount; i++ {
		c := config.Software
		c.NodeIndex = i
		c.Name = fmt.Sprintf("%s-software-%d", config.AppName, i)
		devices = append(devices, software.NewDevice(c))
	}
	return devices
}

func newFrameState(device gpu.Device) (*frameState, error) {
	queue, err := device.NewQueue(metadata.QueueTypeGraphics)
	if err != nil {
		return nil, err
	}
	fence, err := device.NewFence()
	if err != nil {
		return nil, err
	}
	return &frameState{queue: queue, fence: fence}, nil
}

func (r *Renderer) Loader() *loader.ResourceLoader {
	return r.loader
}

func (r *Renderer) Devices() []gpu.Device {
	return r.devices
}

func (r *Renderer) FrameNumber() uint64 {
	return r.frameNumber
}

/**
 * @brief Flushes the resource updates of every node and submits a frame that waits
 * on them and on the last loader submission. Returns once the frame finished on
 * every GPU.
 */
func (r *Renderer) DrawFrame(deltaTime float64) error {
	for i, frame := range r.frames {
		node := uint32(i)
		result, err := r.loader.FlushResourceUpdates(node)
		if err != nil {
			core.LogError("failed to flush resource updates of node %d: %s", node, err)
			return err
		}
		waits := []gpu.Semaphore{result.Semaphore, r.loader.LastSemaphoreSubmitted(node)}
		if err := frame.queue.Submit(&gpu.SubmitDesc{
			WaitSemaphores: waits,
			Fence:          frame.fence,
		}); err != nil {
			core.LogError("failed to submit frame %d on node %d: %s", r.frameNumber, node, err)
			return err
		}
	}
	for _, frame := range r.frames {
		if err := frame.fence.Wait(); err != nil {
			return err
		}
	}
	r.frameNumber++
	return nil
}

func (r *Renderer) Shutdown() error {
	r.loader.Shutdown()
	for _, frame := range r.frames {
		frame.fence.Destroy()
	}
	r.frames = nil
	return r.destroyDevices()
}

func (r *Renderer) destroyDevices() error {
	var errs []error
	for _, device := range r.devices {
		if err := device.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
		if err := device.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	r.devices = nil
	if r.destroyBackend != nil {
		r.destroyBackend()
	}
	return errors.Join(errs...)
}
