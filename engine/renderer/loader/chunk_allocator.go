package loader

import (
	"github.com/thefork190/TheFork-sub000/engine/containers"
	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/math"
)

/** @brief A region of a shared buffer. */
type BufferChunk struct {
	Offset uint32
	Size   uint32
}

func (c BufferChunk) end() uint32 {
	return c.Offset + c.Size
}

/**
 * @brief First-fit sub-allocator over one buffer of Size bytes. UnusedChunks is
 * kept sorted by offset and no two of its chunks touch.
 */
type BufferChunkAllocator struct {
	Size           uint32
	UsedChunkCount uint32
	UnusedChunks   []BufferChunk
}

func NewBufferChunkAllocator(size uint32) *BufferChunkAllocator {
	a := &BufferChunkAllocator{Size: size}
	if size > 0 {
		a.UnusedChunks = []BufferChunk{{Offset: 0, Size: size}}
	}
	return a
}

/**
 * @brief Carves size bytes aligned to alignment out of the buffer.
 * @param request When non-nil and non-empty, the exact region to allocate. Falls back
 * to a normal allocation when the region is not free.
 * @returns the allocated chunk and false if no free chunk is large enough.
 */
func (a *BufferChunkAllocator) AddPart(size, alignment uint32, request *BufferChunk) (BufferChunk, bool) {
	if size == 0 {
		return BufferChunk{}, true
	}
	if request != nil && request.Size > 0 {
		if chunk, ok := a.addRequestedPart(request); ok {
			return chunk, true
		}
		core.LogWarn("requested geometry buffer chunk [%d, %d) is not free, allocating normally", request.Offset, request.end())
	}

	for i := 0; i < len(a.UnusedChunks); i++ {
		free := a.UnusedChunks[i]
		offset := math.AlignUp(free.Offset, max(alignment, 1))
		padding := offset - free.Offset
		if uint64(padding)+uint64(size) > uint64(free.Size) {
			continue
		}
		remaining := free.Size - padding - size
		switch {
		case padding > 0:
			// the padding stays free in front of the new part
			a.UnusedChunks[i].Size = padding
			if remaining > 0 {
				a.UnusedChunks = containers.Insert(a.UnusedChunks, i+1, BufferChunk{Offset: offset + size, Size: remaining})
			}
		case remaining > 0:
			a.UnusedChunks[i] = BufferChunk{Offset: offset + size, Size: remaining}
		default:
			a.UnusedChunks = containers.Delete(a.UnusedChunks, i)
		}
		a.UsedChunkCount += size
		return BufferChunk{Offset: offset, Size: size}, true
	}
	return BufferChunk{}, false
}

func (a *BufferChunkAllocator) addRequestedPart(request *BufferChunk) (BufferChunk, bool) {
	for i := 0; i < len(a.UnusedChunks); i++ {
		free := a.UnusedChunks[i]
		if free.Offset > request.Offset || free.end() < request.end() {
			continue
		}
		before := request.Offset - free.Offset
		after := free.end() - request.end()
		switch {
		case before > 0 && after > 0:
			a.UnusedChunks[i].Size = before
			a.UnusedChunks = containers.Insert(a.UnusedChunks, i+1, BufferChunk{Offset: request.end(), Size: after})
		case before > 0:
			a.UnusedChunks[i].Size = before
		case after > 0:
			a.UnusedChunks[i] = BufferChunk{Offset: request.end(), Size: after}
		default:
			a.UnusedChunks = containers.Delete(a.UnusedChunks, i)
		}
		a.UsedChunkCount += request.Size
		return *request, true
	}
	return BufferChunk{}, false
}

/**
 * @brief Returns a chunk to the free list, merging it with the free chunks it touches.
 */
func (a *BufferChunkAllocator) RemovePart(chunk BufferChunk) {
	if chunk.Size == 0 {
		return
	}
	a.UsedChunkCount -= chunk.Size

	// first free chunk placed after the released one
	i := 0
	for i < len(a.UnusedChunks) && a.UnusedChunks[i].Offset < chunk.Offset {
		i++
	}
	mergePrev := i > 0 && a.UnusedChunks[i-1].end() == chunk.Offset
	mergeNext := i < len(a.UnusedChunks) && chunk.end() == a.UnusedChunks[i].Offset

	switch {
	case mergePrev && mergeNext:
		a.UnusedChunks[i-1].Size += chunk.Size + a.UnusedChunks[i].Size
		a.UnusedChunks = containers.Delete(a.UnusedChunks, i)
	case mergePrev:
		a.UnusedChunks[i-1].Size += chunk.Size
	case mergeNext:
		a.UnusedChunks[i].Offset = chunk.Offset
		a.UnusedChunks[i].Size += chunk.Size
	default:
		a.UnusedChunks = containers.Insert(a.UnusedChunks, i, chunk)
	}
}

// FreeSize is the sum of the free chunk sizes.
func (a *BufferChunkAllocator) FreeSize() uint32 {
	var total uint32
	for _, c := range a.UnusedChunks {
		total += c.Size
	}
	return total
}
