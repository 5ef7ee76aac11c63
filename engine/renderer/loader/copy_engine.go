package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/math"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief One in-flight slot of a copy engine. A set is recorded, submitted, then
 * waited and reset before it is recorded again.
 */
type copyResourceSet struct {
	fence     gpu.Fence
	cmdPool   gpu.CmdPool
	cmd       gpu.CmdBuffer
	semaphore gpu.Semaphore
	buffer    gpu.Buffer

	allocatedSpace uint64
	tempBuffers    []gpu.Buffer
	waitSemaphores []gpu.Semaphore
	recording      bool
	submitted      bool

	// graphics queue command buffer for the transitions a transfer queue may not perform
	postCopyPool      gpu.CmdPool
	postCopyCmd       gpu.CmdBuffer
	postCopySemaphore gpu.Semaphore
}

/** @brief A range of staging memory, valid until its resource set is reset. */
type stagingAlloc struct {
	Buffer gpu.Buffer
	Offset uint64
	Data   []byte
}

type copyEngine struct {
	name   string
	device gpu.Device
	caps   gpu.Capabilities
	queue  gpu.Queue
	// nil unless the device has strict queue type barriers
	postCopyQueue gpu.Queue

	sets       []*copyResourceSet
	bufferSize uint64
	activeSet  uint32

	// flush and reuse the active set when the staging buffer overflows
	flushOnOverflow bool
	// move to the next set after an overflow flush instead of stalling on the active one
	advanceOnOverflow bool

	semaphoreMutex   sync.Mutex
	pendingSemaphore gpu.Semaphore

	stats *statsCounters
}

func newCopyEngine(name string, device gpu.Device, queue, postCopyQueue gpu.Queue, bufferSize uint64, bufferCount uint32, stats *statsCounters) (*copyEngine, error) {
	caps := device.Capabilities()
	e := &copyEngine{
		name:       name,
		device:     device,
		caps:       caps,
		queue:      queue,
		bufferSize: bufferSize,
		stats:      stats,
	}
	if caps.StrictQueueTypeBarriers {
		e.postCopyQueue = postCopyQueue
	}
	for i := uint32(0); i < bufferCount; i++ {
		set, err := e.newResourceSet(i)
		if err != nil {
			e.destroy()
			return nil, err
		}
		e.sets = append(e.sets, set)
	}
	core.LogDebug("copy engine `%s` created on node %d (%d sets of %d bytes)", name, device.NodeIndex(), bufferCount, bufferSize)
	return e, nil
}

func (e *copyEngine) newResourceSet(index uint32) (*copyResourceSet, error) {
	var err error
	set := &copyResourceSet{}
	if set.fence, err = e.device.NewFence(); err != nil {
		return nil, err
	}
	if set.semaphore, err = e.device.NewSemaphore(); err != nil {
		return nil, err
	}
	if set.cmdPool, err = e.device.NewCmdPool(e.queue); err != nil {
		return nil, err
	}
	if set.cmd, err = set.cmdPool.NewCmd(); err != nil {
		return nil, err
	}
	set.buffer, err = e.device.NewBuffer(&metadata.BufferDesc{
		Name:        fmt.Sprintf("%s staging %d", e.name, index),
		Size:        e.bufferSize,
		MemoryUsage: metadata.MemoryUsageCPUOnly,
		Flags:       metadata.BufferFlagPersistentMap,
		NodeIndex:   e.device.NodeIndex(),
	})
	if err != nil {
		return nil, err
	}
	if set.buffer.Mapped() == nil {
		if _, err := set.buffer.Map(); err != nil {
			return nil, err
		}
	}
	if e.postCopyQueue != nil {
		if set.postCopyPool, err = e.device.NewCmdPool(e.postCopyQueue); err != nil {
			return nil, err
		}
		if set.postCopyCmd, err = set.postCopyPool.NewCmd(); err != nil {
			return nil, err
		}
		if set.postCopySemaphore, err = e.device.NewSemaphore(); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (e *copyEngine) active() *copyResourceSet {
	return e.sets[e.activeSet]
}

func (e *copyEngine) isRecording() bool {
	return e.active().recording
}

/**
 * @brief Makes index the active set, waiting for and resetting it first if it was submitted.
 */
func (e *copyEngine) selectSet(index uint32) error {
	e.activeSet = index % uint32(len(e.sets))
	return e.resetSet(e.active())
}

func (e *copyEngine) advance() error {
	return e.selectSet(e.activeSet + 1)
}

func (e *copyEngine) resetSet(set *copyResourceSet) error {
	if set.recording {
		return fmt.Errorf("copy engine `%s` resetting a set that is still recording", e.name)
	}
	if set.submitted {
		if err := set.fence.Wait(); err != nil {
			return err
		}
		set.submitted = false
	}
	for _, buf := range set.tempBuffers {
		if err := buf.Destroy(); err != nil {
			core.LogError("copy engine `%s` failed to release temporary staging buffer `%s`: %s", e.name, buf.Desc().Name, err)
		}
		e.stats.tempBuffersReleased.Add(1)
	}
	set.tempBuffers = set.tempBuffers[:0]
	set.allocatedSpace = 0
	if err := set.cmdPool.Reset(); err != nil {
		return err
	}
	if set.postCopyPool != nil {
		if err := set.postCopyPool.Reset(); err != nil {
			return err
		}
	}
	return nil
}

/**
 * @brief Returns the command buffer of the active set, beginning it on first use.
 */
func (e *copyEngine) acquireCmd() (gpu.CmdBuffer, error) {
	set := e.active()
	if !set.recording {
		if err := set.cmd.Begin(); err != nil {
			return nil, err
		}
		if set.postCopyCmd != nil {
			if err := set.postCopyCmd.Begin(); err != nil {
				return nil, err
			}
		}
		set.recording = true
	}
	return set.cmd, nil
}

/**
 * @brief Returns the command buffer that transitions resources out of the copy
 * states. On strict devices this is the graphics queue command buffer that runs
 * after the copies.
 */
func (e *copyEngine) acquirePostCopyCmd() (gpu.CmdBuffer, error) {
	cmd, err := e.acquireCmd()
	if err != nil {
		return nil, err
	}
	if set := e.active(); set.postCopyCmd != nil {
		return set.postCopyCmd, nil
	}
	return cmd, nil
}

// barrierCmd picks the command buffer allowed to transition into newState.
func (e *copyEngine) barrierCmd(newState metadata.ResourceState) (gpu.CmdBuffer, error) {
	if newState.IsCopyState() {
		return e.acquireCmd()
	}
	return e.acquirePostCopyCmd()
}

/**
 * @brief Records a texture transition. On strict devices a transition out of the copy
 * states is split into a release on the copy queue and an acquire on the post copy
 * queue, which hands the texture to the graphics queue family.
 */
func (e *copyEngine) transitionTexture(b gpu.TextureBarrier) error {
	cmd, err := e.acquireCmd()
	if err != nil {
		return err
	}
	set := e.active()
	if set.postCopyCmd == nil || b.NewState.IsCopyState() {
		cmd.ResourceBarrier(nil, []gpu.TextureBarrier{b})
		return nil
	}
	release := b
	release.Release = true
	release.QueueType = e.postCopyQueue.Type()
	cmd.ResourceBarrier(nil, []gpu.TextureBarrier{release})

	acquire := b
	acquire.Acquire = true
	acquire.QueueType = e.queue.Type()
	set.postCopyCmd.ResourceBarrier(nil, []gpu.TextureBarrier{acquire})
	return nil
}

func (e *copyEngine) addWaitSemaphore(semaphore gpu.Semaphore) {
	set := e.active()
	set.waitSemaphores = append(set.waitSemaphores, semaphore)
}

/**
 * @brief Ends and submits the active set. The semaphore it signals becomes the
 * pending semaphore, waited by the next flush unless someone consumes it first.
 */
func (e *copyEngine) flush() error {
	set := e.active()
	if !set.recording {
		return nil
	}
	set.recording = false
	if err := set.cmd.End(); err != nil {
		return err
	}

	waits := append([]gpu.Semaphore(nil), set.waitSemaphores...)
	set.waitSemaphores = set.waitSemaphores[:0]
	e.semaphoreMutex.Lock()
	if e.pendingSemaphore != nil {
		waits = append(waits, e.pendingSemaphore)
		e.pendingSemaphore = nil
	}
	e.semaphoreMutex.Unlock()

	signal := set.semaphore
	submit := &gpu.SubmitDesc{
		Cmds:             []gpu.CmdBuffer{set.cmd},
		WaitSemaphores:   waits,
		SignalSemaphores: []gpu.Semaphore{set.semaphore},
	}
	if set.postCopyCmd == nil {
		submit.Fence = set.fence
	}
	if err := e.queue.Submit(submit); err != nil {
		return fmt.Errorf("copy engine `%s` submit: %w", e.name, err)
	}

	if set.postCopyCmd != nil {
		if err := set.postCopyCmd.End(); err != nil {
			return err
		}
		err := e.postCopyQueue.Submit(&gpu.SubmitDesc{
			Cmds:             []gpu.CmdBuffer{set.postCopyCmd},
			WaitSemaphores:   []gpu.Semaphore{set.semaphore},
			SignalSemaphores: []gpu.Semaphore{set.postCopySemaphore},
			Fence:            set.fence,
		})
		if err != nil {
			return fmt.Errorf("copy engine `%s` post copy submit: %w", e.name, err)
		}
		signal = set.postCopySemaphore
	}
	set.submitted = true

	e.semaphoreMutex.Lock()
	e.pendingSemaphore = signal
	e.semaphoreMutex.Unlock()
	e.stats.flushes.Add(1)
	return nil
}

// consumeSemaphore returns the semaphore of the last flush not waited by anything yet.
// The caller must wait on it.
func (e *copyEngine) consumeSemaphore() gpu.Semaphore {
	e.semaphoreMutex.Lock()
	defer e.semaphoreMutex.Unlock()
	s := e.pendingSemaphore
	e.pendingSemaphore = nil
	return s
}

/**
 * @brief Allocates size bytes of staging memory from the active set.
 * Requests larger than the staging buffer get a temporary buffer released with the
 * set. Otherwise a full staging buffer either flushes (flushOnOverflow) or returns
 * ErrStagingBufferFull.
 */
func (e *copyEngine) allocate(size uint64, alignment uint32) (stagingAlloc, error) {
	alignment = max(alignment, e.caps.UploadBufferAlignment)
	if size > e.bufferSize {
		return e.allocateTemp(size)
	}

	set := e.active()
	offset := math.AlignUp(set.allocatedSpace, uint64(alignment))
	if offset+size > e.bufferSize {
		if !e.flushOnOverflow {
			return stagingAlloc{}, ErrStagingBufferFull
		}
		if err := e.flush(); err != nil {
			return stagingAlloc{}, err
		}
		var err error
		if e.advanceOnOverflow {
			err = e.advance()
		} else {
			err = e.resetSet(set)
		}
		if err != nil {
			return stagingAlloc{}, err
		}
		return e.allocate(size, alignment)
	}

	set.allocatedSpace = offset + size
	e.stats.bytesStaged.Add(size)
	return stagingAlloc{
		Buffer: set.buffer,
		Offset: offset,
		Data:   set.buffer.Mapped()[offset : offset+size],
	}, nil
}

func (e *copyEngine) allocateTemp(size uint64) (stagingAlloc, error) {
	buf, err := e.device.NewBuffer(&metadata.BufferDesc{
		Name:        fmt.Sprintf("%s temp staging %s", e.name, uuid.NewString()),
		Size:        size,
		MemoryUsage: metadata.MemoryUsageCPUOnly,
		Flags:       metadata.BufferFlagPersistentMap,
		NodeIndex:   e.device.NodeIndex(),
	})
	if err != nil {
		return stagingAlloc{}, err
	}
	data := buf.Mapped()
	if data == nil {
		if data, err = buf.Map(); err != nil {
			return stagingAlloc{}, errors.Join(err, buf.Destroy())
		}
	}
	core.LogWarn("copy engine `%s`: %d bytes exceed the %d byte staging buffer, using a temporary buffer", e.name, size, e.bufferSize)
	set := e.active()
	set.tempBuffers = append(set.tempBuffers, buf)
	e.stats.tempBuffersAllocated.Add(1)
	e.stats.bytesStaged.Add(size)
	return stagingAlloc{Buffer: buf, Offset: 0, Data: data[:size]}, nil
}

/**
 * @brief Submits pending work, waits for every set and releases the engine objects.
 */
func (e *copyEngine) destroy() {
	if len(e.sets) > 0 && e.active().recording {
		if err := e.flush(); err != nil {
			core.LogError(err.Error())
		}
	}
	for _, set := range e.sets {
		if err := e.resetSet(set); err != nil {
			core.LogError("copy engine `%s` failed to drain: %s", e.name, err)
		}
		set.cmd.Destroy()
		set.cmdPool.Destroy()
		if set.postCopyCmd != nil {
			set.postCopyCmd.Destroy()
			set.postCopyPool.Destroy()
			set.postCopySemaphore.Destroy()
		}
		set.semaphore.Destroy()
		set.fence.Destroy()
		set.buffer.Unmap()
		if err := set.buffer.Destroy(); err != nil {
			core.LogError("copy engine `%s` failed to release staging buffer: %s", e.name, err)
		}
	}
	e.sets = nil
	e.semaphoreMutex.Lock()
	e.pendingSemaphore = nil
	e.semaphoreMutex.Unlock()
}
