// Package software is a gpu.Device that executes command buffers on the CPU. Each queue
// runs its submissions on its own goroutine, so fences, semaphores and resource states
// behave like they would on real hardware.
package software

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type Config struct {
	Name string
	/** @brief The node (GPU index) of the device. */
	NodeIndex uint32
	/** @brief Map every buffer, like an integrated GPU. */
	UnifiedMemory bool
	/** @brief Forbid non-copy state transitions on transfer queues. */
	StrictQueueTypeBarriers bool
	TextureRowAlignment     uint32
	TextureAlignment        uint32
	BufferAlignment         uint32
	/** @brief Artificial latency added before each submission executes. */
	ExecutionDelay time.Duration
}

/** @brief Counters collected by a device over its lifetime. */
type Stats struct {
	BuffersCreated    uint64
	BuffersDestroyed  uint64
	TexturesCreated   uint64
	TexturesDestroyed uint64
	Submissions       [metadata.QueueTypeMax]uint64
	Barriers          [metadata.QueueTypeMax]uint64
	BytesCopied       uint64
}

func (s Stats) LiveBuffers() uint64 {
	return s.BuffersCreated - s.BuffersDestroyed
}

func (s Stats) LiveTextures() uint64 {
	return s.TexturesCreated - s.TexturesDestroyed
}

type counters struct {
	buffersCreated    atomic.Uint64
	buffersDestroyed  atomic.Uint64
	texturesCreated   atomic.Uint64
	texturesDestroyed atomic.Uint64
	submissions       [metadata.QueueTypeMax]atomic.Uint64
	barriers          [metadata.QueueTypeMax]atomic.Uint64
	bytesCopied       atomic.Uint64
}

type Device struct {
	config Config
	caps   gpu.Capabilities

	mutex     sync.Mutex
	queues    []*Queue
	destroyed bool

	validationMutex  sync.Mutex
	validationErrors []string

	counters counters
}

func NewDevice(config Config) *Device {
	if config.Name == "" {
		config.Name = fmt.Sprintf("software-gpu-%d", config.NodeIndex)
	}
	caps := gpu.Capabilities{
		UnifiedMemory:                   config.UnifiedMemory,
		StrictQueueTypeBarriers:         config.StrictQueueTypeBarriers,
		UploadBufferTextureRowAlignment: config.TextureRowAlignment,
		UploadBufferTextureAlignment:    config.TextureAlignment,
		UploadBufferAlignment:           config.BufferAlignment,
	}.WithDefaults()
	core.LogDebug("software device `%s` created (node %d, uma=%t, strict=%t)", config.Name, config.NodeIndex, config.UnifiedMemory, config.StrictQueueTypeBarriers)
	return &Device{
		config: config,
		caps:   caps,
	}
}

func (d *Device) NodeIndex() uint32 {
	return d.config.NodeIndex
}

func (d *Device) Capabilities() gpu.Capabilities {
	return d.caps
}

func (d *Device) Name() string {
	return d.config.Name
}

func (d *Device) NewQueue(queueType metadata.QueueType) (gpu.Queue, error) {
	if queueType < 0 || queueType >= metadata.QueueTypeMax {
		return nil, gpu.ErrQueueTypeMissing
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.destroyed {
		return nil, gpu.ErrDeviceLost
	}
	q := newQueue(d, queueType)
	d.queues = append(d.queues, q)
	return q, nil
}

func (d *Device) NewCmdPool(queue gpu.Queue) (gpu.CmdPool, error) {
	q, ok := queue.(*Queue)
	if !ok || q.device != d {
		return nil, fmt.Errorf("command pool queue belongs to another device: %w", gpu.ErrInvalidDesc)
	}
	return &CmdPool{queue: q}, nil
}

func (d *Device) NewFence() (gpu.Fence, error) {
	f := &Fence{}
	f.cond = sync.NewCond(&f.mutex)
	return f, nil
}

func (d *Device) NewSemaphore() (gpu.Semaphore, error) {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mutex)
	return s, nil
}

func (d *Device) NewBuffer(desc *metadata.BufferDesc) (gpu.Buffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, fmt.Errorf("buffer size must be greater than zero: %w", gpu.ErrInvalidDesc)
	}
	if desc.NodeIndex != d.config.NodeIndex {
		return nil, fmt.Errorf("buffer `%s` requested on node %d, device is node %d: %w", desc.Name, desc.NodeIndex, d.config.NodeIndex, gpu.ErrInvalidDesc)
	}
	b := &Buffer{
		device: d,
		desc:   *desc,
		data:   make([]byte, desc.Size),
	}
	b.mapped = d.caps.UnifiedMemory || desc.MemoryUsage.IsCPUVisible()
	d.counters.buffersCreated.Add(1)
	return b, nil
}

func (d *Device) NewTexture(desc *metadata.TextureDesc) (gpu.Texture, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture extent must be greater than zero: %w", gpu.ErrInvalidDesc)
	}
	if !desc.Format.IsValid() {
		return nil, fmt.Errorf("texture `%s` format %d: %w", desc.Name, desc.Format, gpu.ErrUnsupportedFormat)
	}
	if desc.NodeIndex != d.config.NodeIndex {
		return nil, fmt.Errorf("texture `%s` requested on node %d, device is node %d: %w", desc.Name, desc.NodeIndex, d.config.NodeIndex, gpu.ErrInvalidDesc)
	}
	t := newTexture(d, desc.Normalized())
	d.counters.texturesCreated.Add(1)
	return t, nil
}

func (d *Device) WaitIdle() error {
	d.mutex.Lock()
	queues := append([]*Queue(nil), d.queues...)
	d.mutex.Unlock()
	for _, q := range queues {
		if err := q.WaitIdle(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) Destroy() error {
	d.mutex.Lock()
	if d.destroyed {
		d.mutex.Unlock()
		return gpu.ErrAlreadyDestroyed
	}
	d.destroyed = true
	queues := d.queues
	d.queues = nil
	d.mutex.Unlock()

	for _, q := range queues {
		q.Destroy()
	}
	core.LogDebug("software device `%s` destroyed", d.config.Name)
	return nil
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	s := Stats{
		BuffersCreated:    d.counters.buffersCreated.Load(),
		BuffersDestroyed:  d.counters.buffersDestroyed.Load(),
		TexturesCreated:   d.counters.texturesCreated.Load(),
		TexturesDestroyed: d.counters.texturesDestroyed.Load(),
		BytesCopied:       d.counters.bytesCopied.Load(),
	}
	for i := range s.Submissions {
		s.Submissions[i] = d.counters.submissions[i].Load()
		s.Barriers[i] = d.counters.barriers[i].Load()
	}
	return s
}

// ValidationErrors returns every misuse the device detected so far.
func (d *Device) ValidationErrors() []string {
	d.validationMutex.Lock()
	defer d.validationMutex.Unlock()
	return append([]string(nil), d.validationErrors...)
}

func (d *Device) validationError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogError("[%s] validation: %s", d.config.Name, msg)
	d.validationMutex.Lock()
	d.validationErrors = append(d.validationErrors, msg)
	d.validationMutex.Unlock()
}
