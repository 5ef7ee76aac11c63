// Package loader streams buffer, texture and geometry data to GPU memory on a
// background worker and tracks completion with monotonically increasing tokens.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/thefork190/TheFork-sub000/engine/containers"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

const maxTrackedFailures = 1024

// State of one GPU.
type nodeState struct {
	index  uint32
	device gpu.Device
	caps   gpu.Capabilities

	copyQueue     gpu.Queue
	graphicsQueue gpu.Queue

	// owned by the worker
	copyEngine *copyEngine

	// owned by whoever holds uploadMutex, nil once the loader shut down
	uploadMutex  sync.Mutex
	uploadEngine *copyEngine

	// guarded by the loader queueMutex
	requests []request
}

/**
 * @brief Streams resources to one or more GPUs. Create it with New and release
 * it with Shutdown.
 */
type ResourceLoader struct {
	config Config
	fsys   fs.FS
	// fixed once New returns
	nodes []*nodeState

	queueMutex sync.Mutex
	queueCond  *sync.Cond
	run        bool
	issued     atomic.Uint64

	tokenMutex sync.Mutex
	tokenCond  *sync.Cond
	submitted  atomic.Uint64
	completed  atomic.Uint64

	// worker state
	tickMutex  sync.Mutex
	tokenState [maxBufferCount]SyncToken
	nextSet    uint32
	carried    SyncToken
	done       chan struct{}

	failureMutex sync.Mutex
	failures     map[SyncToken]error
	failureOrder *containers.RingQueue[SyncToken]

	stats statsCounters
}

/**
 * @brief Creates a resource loader driving the given devices. devices[i] must be node i.
 * @param fsys File system file loads are read from. May be nil when no file is loaded.
 * @param cfg Loader configuration. Nil uses DefaultConfig.
 */
func New(devices []gpu.Device, fsys fs.FS, cfg *Config) (*ResourceLoader, error) {
	config := DefaultConfig()
	if cfg != nil {
		config = *cfg
	}
	config = config.normalized()
	if len(devices) == 0 {
		return nil, fmt.Errorf("resource loader needs at least one device: %w", gpu.ErrInvalidDesc)
	}

	l := &ResourceLoader{
		config:       config,
		fsys:         fsys,
		run:          true,
		done:         make(chan struct{}),
		failures:     make(map[SyncToken]error),
		failureOrder: containers.NewRingQueue[SyncToken](maxTrackedFailures),
	}
	l.queueCond = sync.NewCond(&l.queueMutex)
	l.tokenCond = sync.NewCond(&l.tokenMutex)

	for i, device := range devices {
		if device.NodeIndex() != uint32(i) {
			l.destroyNodes()
			return nil, fmt.Errorf("device `%s` is node %d but was passed at index %d: %w", device.Name(), device.NodeIndex(), i, ErrNodeMismatch)
		}
		node, err := l.newNode(device)
		if err != nil {
			l.destroyNodes()
			return nil, err
		}
		l.nodes = append(l.nodes, node)
	}

	if config.SingleThreaded {
		close(l.done)
	} else {
		go l.streamerThread()
	}
	core.LogInfo("resource loader initialized (%d nodes, %d staging sets of %d bytes, single threaded: %t)", len(l.nodes), config.BufferCount, config.BufferSize, config.SingleThreaded)
	return l, nil
}

func (l *ResourceLoader) newNode(device gpu.Device) (*nodeState, error) {
	node := &nodeState{
		index:  device.NodeIndex(),
		device: device,
		caps:   device.Capabilities(),
	}
	var err error
	node.copyQueue, err = device.NewQueue(metadata.QueueTypeTransfer)
	if errors.Is(err, gpu.ErrQueueTypeMissing) {
		node.copyQueue, err = device.NewQueue(metadata.QueueTypeGraphics)
	}
	if err != nil {
		return nil, err
	}
	if node.caps.StrictQueueTypeBarriers {
		if node.graphicsQueue, err = device.NewQueue(metadata.QueueTypeGraphics); err != nil {
			node.destroy()
			return nil, err
		}
	}

	node.copyEngine, err = newCopyEngine(fmt.Sprintf("node %d copy", node.index), device, node.copyQueue, node.graphicsQueue, l.config.BufferSize, l.config.BufferCount, &l.stats)
	if err != nil {
		node.destroy()
		return nil, err
	}
	node.copyEngine.flushOnOverflow = l.config.FlushOnOverflow

	node.uploadEngine, err = newCopyEngine(fmt.Sprintf("node %d upload", node.index), device, node.copyQueue, node.graphicsQueue, l.config.UploadBufferSize, l.config.BufferCount, &l.stats)
	if err != nil {
		node.destroy()
		return nil, err
	}
	node.uploadEngine.flushOnOverflow = true
	node.uploadEngine.advanceOnOverflow = true
	return node, nil
}

func (n *nodeState) destroy() {
	if n.uploadEngine != nil {
		n.uploadMutex.Lock()
		n.uploadEngine.destroy()
		n.uploadEngine = nil
		n.uploadMutex.Unlock()
	}
	if n.copyEngine != nil {
		n.copyEngine.destroy()
	}
	if n.graphicsQueue != nil {
		n.graphicsQueue.Destroy()
	}
	if n.copyQueue != nil {
		n.copyQueue.Destroy()
	}
}

func (l *ResourceLoader) destroyNodes() {
	for _, n := range l.nodes {
		n.destroy()
	}
}

/**
 * @brief Stops the worker after every queued request has been processed and its GPU
 * work has completed, then releases the copy engines.
 */
func (l *ResourceLoader) Shutdown() {
	l.queueMutex.Lock()
	if !l.run {
		l.queueMutex.Unlock()
		return
	}
	l.run = false
	l.queueMutex.Unlock()
	l.queueCond.Broadcast()

	if l.config.SingleThreaded {
		l.drain()
	} else {
		<-l.done
	}
	l.tickMutex.Lock()
	l.destroyNodes()
	l.tickMutex.Unlock()
	core.LogInfo("resource loader shut down (%d requests, %d invalid)", l.stats.requestsProcessed.Load(), l.stats.invalidRequests.Load())
}

func (l *ResourceLoader) Config() Config {
	return l.config
}

func (l *ResourceLoader) Stats() Stats {
	return l.stats.snapshot()
}

func (l *ResourceLoader) NodeCount() uint32 {
	return uint32(len(l.nodes))
}

func (l *ResourceLoader) node(index uint32) (*nodeState, error) {
	l.queueMutex.Lock()
	running := l.run
	l.queueMutex.Unlock()
	if !running {
		return nil, ErrLoaderShutdown
	}
	if index >= uint32(len(l.nodes)) {
		return nil, fmt.Errorf("gpu node %d of %d: %w", index, len(l.nodes), ErrNodeMismatch)
	}
	return l.nodes[index], nil
}

/**
 * @brief Stamps req with the next token and appends it to its node queue.
 * @param token Advanced to at least the new token when non-nil.
 */
func (l *ResourceLoader) enqueue(node *nodeState, req request, token *SyncToken) error {
	l.queueMutex.Lock()
	if !l.run {
		l.queueMutex.Unlock()
		return ErrLoaderShutdown
	}
	t := SyncToken(l.issued.Add(1))
	req.setWaitIndex(t)
	node.requests = append(node.requests, req)
	l.queueMutex.Unlock()
	l.queueCond.Signal()

	if token != nil {
		*token = max(*token, t)
	}
	if l.config.SingleThreaded {
		l.drain()
	}
	return nil
}

/**
 * @brief Queues an upload. desc is a *BufferLoadDesc, *TextureLoadDesc or *GeometryLoadDesc.
 * @param token Advanced to at least the token of the queued work. May be nil, except when
 * desc carries caller owned data that must outlive the upload.
 */
func (l *ResourceLoader) AddResource(desc interface{}, token *SyncToken) error {
	switch d := desc.(type) {
	case *BufferLoadDesc:
		return l.AddBuffer(d, token)
	case *TextureLoadDesc:
		return l.AddTexture(d, token)
	case *GeometryLoadDesc:
		return l.AddGeometry(d, token)
	}
	return fmt.Errorf("add resource %T: %w", desc, ErrUnknownResource)
}

/**
 * @brief Destroys a resource immediately. No pending upload may still target it.
 * resource is a gpu.Buffer, gpu.Texture, *Geometry or *GeometryBuffer.
 */
func (l *ResourceLoader) RemoveResource(resource interface{}) error {
	switch r := resource.(type) {
	case gpu.Buffer:
		return r.Destroy()
	case gpu.Texture:
		return r.Destroy()
	case *Geometry:
		return l.removeGeometry(r)
	case *GeometryBuffer:
		return r.destroy()
	}
	return fmt.Errorf("remove resource %T: %w", resource, ErrUnknownResource)
}
