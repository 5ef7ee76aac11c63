package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

/**
 * @brief One shared buffer per vertex binding plus one index buffer, carved into
 * geometry parts by chunk allocators.
 */
type GeometryBuffer struct {
	Name          string
	NodeIndex     uint32
	VertexBuffers [metadata.MaxVertexBindings]gpu.Buffer
	IndexBuffer   gpu.Buffer

	mutex            sync.Mutex
	vertexAllocators [metadata.MaxVertexBindings]*BufferChunkAllocator
	indexAllocator   *BufferChunkAllocator
}

type GeometryBufferLoadDesc struct {
	Name string
	/** @brief Size in bytes of each vertex binding buffer. Zero leaves the binding out. */
	VertexBufferSizes [metadata.MaxVertexBindings]uint32
	IndexBufferSize   uint32
	NodeIndex         uint32
}

/**
 * @brief A loaded geometry. Its buffers and counts are valid once the load token completed.
 */
type Geometry struct {
	Name      string
	NodeIndex uint32

	VertexBuffers      [metadata.MaxVertexBindings]gpu.Buffer
	VertexBufferChunks [metadata.MaxVertexBindings]BufferChunk
	VertexStrides      [metadata.MaxVertexBindings]uint32
	VertexBufferCount  uint32
	VertexCount        uint32

	IndexBuffer      gpu.Buffer
	IndexBufferChunk BufferChunk
	IndexType        metadata.IndexType
	IndexCount       uint32

	/** @brief The shared buffer the parts were carved from, or nil for standalone buffers. */
	GeometryBuffer *GeometryBuffer
}

/**
 * @brief Describes a geometry load, either from a binary geometry file or from
 * caller owned vertex streams and indices.
 */
type GeometryLoadDesc struct {
	/** @brief Set before AddGeometry returns. */
	Geometry *Geometry
	Name     string
	FileName string

	VertexStreams [][]byte
	VertexStrides []uint32
	Indices       []byte
	IndexType     metadata.IndexType

	/** @brief Carve the geometry from this buffer instead of creating standalone buffers. */
	GeometryBuffer *GeometryBuffer
	NodeIndex      uint32
}

// AddGeometryBuffer creates the shared buffers of a geometry buffer.
func (l *ResourceLoader) AddGeometryBuffer(desc *GeometryBufferLoadDesc) (*GeometryBuffer, error) {
	node, err := l.node(desc.NodeIndex)
	if err != nil {
		return nil, err
	}
	gb := &GeometryBuffer{Name: desc.Name, NodeIndex: desc.NodeIndex}
	if gb.Name == "" {
		gb.Name = "geometry-buffer-" + uuid.NewString()
	}
	for i, size := range desc.VertexBufferSizes {
		if size == 0 {
			continue
		}
		gb.VertexBuffers[i], err = node.device.NewBuffer(&metadata.BufferDesc{
			Name:        fmt.Sprintf("%s vertex %d", gb.Name, i),
			Size:        uint64(size),
			MemoryUsage: metadata.MemoryUsageGPUOnly,
			Descriptors: metadata.DescriptorTypeVertexBuffer,
			StartState:  metadata.ResourceStateVertexAndConstantBuffer,
			NodeIndex:   desc.NodeIndex,
		})
		if err != nil {
			return nil, errors.Join(err, gb.destroy())
		}
		gb.vertexAllocators[i] = NewBufferChunkAllocator(size)
	}
	if desc.IndexBufferSize > 0 {
		gb.IndexBuffer, err = node.device.NewBuffer(&metadata.BufferDesc{
			Name:        gb.Name + " index",
			Size:        uint64(desc.IndexBufferSize),
			MemoryUsage: metadata.MemoryUsageGPUOnly,
			Descriptors: metadata.DescriptorTypeIndexBuffer,
			StartState:  metadata.ResourceStateIndexBuffer,
			NodeIndex:   desc.NodeIndex,
		})
		if err != nil {
			return nil, errors.Join(err, gb.destroy())
		}
		gb.indexAllocator = NewBufferChunkAllocator(desc.IndexBufferSize)
	}
	core.LogDebug("geometry buffer `%s` created on node %d", gb.Name, gb.NodeIndex)
	return gb, nil
}

func (gb *GeometryBuffer) destroy() error {
	var errs []error
	for i, b := range gb.VertexBuffers {
		if b != nil {
			errs = append(errs, b.Destroy())
			gb.VertexBuffers[i] = nil
		}
	}
	if gb.IndexBuffer != nil {
		errs = append(errs, gb.IndexBuffer.Destroy())
		gb.IndexBuffer = nil
	}
	return errors.Join(errs...)
}

// VertexAllocator exposes the allocator of one vertex binding, nil if the binding is unused.
func (gb *GeometryBuffer) VertexAllocator(binding int) *BufferChunkAllocator {
	return gb.vertexAllocators[binding]
}

func (gb *GeometryBuffer) IndexAllocator() *BufferChunkAllocator {
	return gb.indexAllocator
}

// allocate carves every part of g out of the geometry buffer. Nothing is kept on failure.
func (gb *GeometryBuffer) allocate(g *Geometry) error {
	gb.mutex.Lock()
	defer gb.mutex.Unlock()
	for i := uint32(0); i < g.VertexBufferCount; i++ {
		alloc := gb.vertexAllocators[i]
		size := g.VertexStrides[i] * g.VertexCount
		if alloc == nil {
			gb.releaseLocked(g)
			return fmt.Errorf("geometry buffer `%s` has no vertex binding %d: %w", gb.Name, i, ErrGeometryBufferFull)
		}
		chunk, ok := alloc.AddPart(size, g.VertexStrides[i], nil)
		if !ok {
			gb.releaseLocked(g)
			return fmt.Errorf("%d bytes in vertex binding %d of `%s`: %w", size, i, gb.Name, ErrGeometryBufferFull)
		}
		g.VertexBufferChunks[i] = chunk
		g.VertexBuffers[i] = gb.VertexBuffers[i]
	}
	if g.IndexCount > 0 {
		size := g.IndexType.Size() * g.IndexCount
		if gb.indexAllocator == nil {
			gb.releaseLocked(g)
			return fmt.Errorf("geometry buffer `%s` has no index buffer: %w", gb.Name, ErrGeometryBufferFull)
		}
		chunk, ok := gb.indexAllocator.AddPart(size, g.IndexType.Size(), nil)
		if !ok {
			gb.releaseLocked(g)
			return fmt.Errorf("%d bytes of indices in `%s`: %w", size, gb.Name, ErrGeometryBufferFull)
		}
		g.IndexBufferChunk = chunk
		g.IndexBuffer = gb.IndexBuffer
	}
	g.GeometryBuffer = gb
	return nil
}

func (gb *GeometryBuffer) release(g *Geometry) {
	gb.mutex.Lock()
	defer gb.mutex.Unlock()
	gb.releaseLocked(g)
}

func (gb *GeometryBuffer) releaseLocked(g *Geometry) {
	for i := range g.VertexBufferChunks {
		if g.VertexBufferChunks[i].Size > 0 {
			gb.vertexAllocators[i].RemovePart(g.VertexBufferChunks[i])
		}
		g.VertexBufferChunks[i] = BufferChunk{}
		g.VertexBuffers[i] = nil
	}
	if g.IndexBufferChunk.Size > 0 {
		gb.indexAllocator.RemovePart(g.IndexBufferChunk)
	}
	g.IndexBufferChunk = BufferChunk{}
	g.IndexBuffer = nil
	g.GeometryBuffer = nil
}

/**
 * @brief Queues a geometry upload. desc.Geometry is allocated immediately; its
 * buffers and counts are filled by the worker.
 */
func (l *ResourceLoader) AddGeometry(desc *GeometryLoadDesc, token *SyncToken) error {
	nodeIndex := desc.NodeIndex
	if desc.GeometryBuffer != nil {
		nodeIndex = desc.GeometryBuffer.NodeIndex
	}
	node, err := l.node(nodeIndex)
	if err != nil {
		return err
	}
	g := &Geometry{Name: desc.Name, NodeIndex: nodeIndex}
	if g.Name == "" {
		g.Name = desc.FileName
	}
	if g.Name == "" {
		g.Name = "geometry-" + uuid.NewString()
	}
	req := &geometryRequest{fileName: desc.FileName}

	if desc.FileName != "" {
		if l.fsys == nil {
			return fmt.Errorf("geometry `%s` load without a file system: %w", desc.FileName, ErrInvalidRequest)
		}
	} else {
		data := &loaders.GeometryData{
			Streams:   desc.VertexStreams,
			Strides:   desc.VertexStrides,
			Indices:   desc.Indices,
			IndexType: desc.IndexType,
		}
		if len(data.Strides) > 0 && data.Strides[0] > 0 && len(data.Streams) > 0 {
			data.VertexCount = uint32(len(data.Streams[0])) / data.Strides[0]
		}
		data.IndexCount = uint32(len(data.Indices)) / data.IndexType.Size()
		if err := setGeometryData(g, req, data); err != nil {
			return err
		}
		if token == nil {
			core.LogWarn("geometry `%s` upload of caller owned data without a token, the data may not be released safely", g.Name)
		}
	}
	g.GeometryBuffer = desc.GeometryBuffer
	desc.Geometry = g
	req.geometry = g
	return l.enqueue(node, req, token)
}

func setGeometryData(g *Geometry, req *geometryRequest, data *loaders.GeometryData) error {
	if err := data.Validate(); err != nil {
		return fmt.Errorf("geometry `%s`: %w: %w", g.Name, ErrInvalidRequest, err)
	}
	g.VertexBufferCount = uint32(len(data.Streams))
	copy(g.VertexStrides[:], data.Strides)
	g.VertexCount = data.VertexCount
	g.IndexType = data.IndexType
	g.IndexCount = data.IndexCount
	req.streams = data.Streams
	req.strides = data.Strides
	req.indices = data.Indices
	return nil
}

func (l *ResourceLoader) readGeometryFile(g *Geometry, req *geometryRequest) error {
	f, err := l.fsys.Open(req.fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := loaders.ReadGeometry(f)
	if err != nil {
		return err
	}
	return setGeometryData(g, req, data)
}

// allocateGeometry gives every part of the geometry its destination.
func (l *ResourceLoader) allocateGeometry(node *nodeState, g *Geometry) error {
	if gb := g.GeometryBuffer; gb != nil {
		g.GeometryBuffer = nil
		return gb.allocate(g)
	}
	for i := uint32(0); i < g.VertexBufferCount; i++ {
		buf, err := node.device.NewBuffer(&metadata.BufferDesc{
			Name:        fmt.Sprintf("%s vertex %d", g.Name, i),
			Size:        uint64(g.VertexStrides[i]) * uint64(g.VertexCount),
			MemoryUsage: metadata.MemoryUsageGPUOnly,
			Descriptors: metadata.DescriptorTypeVertexBuffer,
			StartState:  metadata.ResourceStateVertexAndConstantBuffer,
			NodeIndex:   node.index,
		})
		if err != nil {
			return errors.Join(err, destroyGeometryBuffers(g))
		}
		g.VertexBuffers[i] = buf
		g.VertexBufferChunks[i] = BufferChunk{Offset: 0, Size: uint32(buf.Size())}
	}
	if g.IndexCount > 0 {
		buf, err := node.device.NewBuffer(&metadata.BufferDesc{
			Name:        g.Name + " index",
			Size:        uint64(g.IndexType.Size()) * uint64(g.IndexCount),
			MemoryUsage: metadata.MemoryUsageGPUOnly,
			Descriptors: metadata.DescriptorTypeIndexBuffer,
			StartState:  metadata.ResourceStateIndexBuffer,
			NodeIndex:   node.index,
		})
		if err != nil {
			return errors.Join(err, destroyGeometryBuffers(g))
		}
		g.IndexBuffer = buf
		g.IndexBufferChunk = BufferChunk{Offset: 0, Size: uint32(buf.Size())}
	}
	return nil
}

func destroyGeometryBuffers(g *Geometry) error {
	var errs []error
	for i, b := range g.VertexBuffers {
		if b != nil {
			errs = append(errs, b.Destroy())
			g.VertexBuffers[i] = nil
			g.VertexBufferChunks[i] = BufferChunk{}
		}
	}
	if g.IndexBuffer != nil {
		errs = append(errs, g.IndexBuffer.Destroy())
		g.IndexBuffer = nil
		g.IndexBufferChunk = BufferChunk{}
	}
	return errors.Join(errs...)
}

func (l *ResourceLoader) removeGeometry(g *Geometry) error {
	if gb := g.GeometryBuffer; gb != nil {
		gb.release(g)
		return nil
	}
	return destroyGeometryBuffers(g)
}

/**
 * @brief Copies every vertex stream and the indices of a geometry request. Mapped
 * destinations are written directly; the rest is staged and followed by one batch of
 * barriers.
 */
func (l *ResourceLoader) loadGeometry(node *nodeState, req *geometryRequest) error {
	g := req.geometry
	if req.fileName != "" && req.streams == nil {
		if err := l.readGeometryFile(g, req); err != nil {
			return err
		}
	}
	if !req.allocated {
		if err := l.allocateGeometry(node, g); err != nil {
			return err
		}
		req.allocated = true
	}

	engine := node.copyEngine
	parts := int(g.VertexBufferCount) + 1
	for ; req.nextStream < parts; req.nextStream++ {
		var (
			src   []byte
			dst   gpu.Buffer
			chunk BufferChunk
			align uint32
		)
		if req.nextStream < int(g.VertexBufferCount) {
			src, dst, chunk = req.streams[req.nextStream], g.VertexBuffers[req.nextStream], g.VertexBufferChunks[req.nextStream]
			align = req.strides[req.nextStream]
		} else {
			src, dst, chunk = req.indices, g.IndexBuffer, g.IndexBufferChunk
			align = g.IndexType.Size()
		}
		if len(src) == 0 || dst == nil {
			continue
		}
		if mapped := dst.Mapped(); mapped != nil {
			copy(mapped[chunk.Offset:uint64(chunk.Offset)+uint64(len(src))], src)
			continue
		}
		alloc, err := engine.allocate(uint64(len(src)), align)
		if err != nil {
			return err
		}
		copy(alloc.Data, src)
		cmd, err := engine.acquireCmd()
		if err != nil {
			return err
		}
		cmd.CopyBuffer(&gpu.BufferCopy{
			Src:       alloc.Buffer,
			SrcOffset: alloc.Offset,
			Dst:       dst,
			DstOffset: uint64(chunk.Offset),
			Size:      uint64(len(src)),
		})
		req.staged = true
	}
	req.streams, req.indices = nil, nil

	if !req.staged {
		return nil
	}
	var barriers []gpu.BufferBarrier
	for i := uint32(0); i < g.VertexBufferCount; i++ {
		if g.VertexBuffers[i] != nil {
			barriers = append(barriers, gpu.BufferBarrier{
				Buffer:       g.VertexBuffers[i],
				CurrentState: metadata.ResourceStateCopyDest,
				NewState:     metadata.ResourceStateVertexAndConstantBuffer,
			})
		}
	}
	if g.IndexBuffer != nil {
		barriers = append(barriers, gpu.BufferBarrier{
			Buffer:       g.IndexBuffer,
			CurrentState: metadata.ResourceStateCopyDest,
			NewState:     metadata.ResourceStateIndexBuffer,
		})
	}
	post, err := engine.acquirePostCopyCmd()
	if err != nil {
		return err
	}
	post.ResourceBarrier(barriers, nil)
	return nil
}
