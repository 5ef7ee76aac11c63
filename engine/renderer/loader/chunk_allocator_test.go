package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func checkAllocator(t *testing.T, a *BufferChunkAllocator, used []BufferChunk) {
	t.Helper()
	require.Equal(t, a.Size, a.UsedChunkCount+a.FreeSize(), "used plus free must cover the buffer")
	for i := 1; i < len(a.UnusedChunks); i++ {
		prev, cur := a.UnusedChunks[i-1], a.UnusedChunks[i]
		require.Less(t, prev.end(), cur.Offset, "free chunks %v and %v are unsorted, overlapping or adjacent", prev, cur)
	}
	for _, u := range used {
		for _, f := range a.UnusedChunks {
			overlap := u.Offset < f.end() && f.Offset < u.end()
			require.False(t, overlap, "part %v overlaps free chunk %v", u, f)
		}
	}
}

func TestChunkAllocatorKeepsPaddingFree(t *testing.T) {
	a := NewBufferChunkAllocator(256)

	first, ok := a.AddPart(10, 1, nil)
	require.True(t, ok)
	assert.Equal(t, BufferChunk{Offset: 0, Size: 10}, first)

	second, ok := a.AddPart(32, 16, nil)
	require.True(t, ok)
	assert.Equal(t, BufferChunk{Offset: 16, Size: 32}, second)
	assert.Equal(t, []BufferChunk{{Offset: 10, Size: 6}, {Offset: 48, Size: 208}}, a.UnusedChunks)
	assert.Equal(t, uint32(42), a.UsedChunkCount)

	// fits in the padding
	third, ok := a.AddPart(4, 2, nil)
	require.True(t, ok)
	assert.Equal(t, BufferChunk{Offset: 10, Size: 4}, third)

	_, ok = a.AddPart(1024, 1, nil)
	assert.False(t, ok)
	checkAllocator(t, a, []BufferChunk{first, second, third})
}

func TestChunkAllocatorRequestedPart(t *testing.T) {
	a := NewBufferChunkAllocator(100)
	part, ok := a.AddPart(20, 1, &BufferChunk{Offset: 40, Size: 20})
	require.True(t, ok)
	assert.Equal(t, BufferChunk{Offset: 40, Size: 20}, part)
	assert.Equal(t, []BufferChunk{{Offset: 0, Size: 40}, {Offset: 60, Size: 40}}, a.UnusedChunks)

	// taken, falls back to first fit
	again, ok := a.AddPart(20, 1, &BufferChunk{Offset: 45, Size: 20})
	require.True(t, ok)
	assert.Equal(t, BufferChunk{Offset: 0, Size: 20}, again)

	tail, ok := a.AddPart(40, 1, &BufferChunk{Offset: 60, Size: 40})
	require.True(t, ok)
	assert.Equal(t, BufferChunk{Offset: 60, Size: 40}, tail)
	assert.Equal(t, []BufferChunk{{Offset: 20, Size: 20}}, a.UnusedChunks)
	checkAllocator(t, a, []BufferChunk{part, again, tail})
}

func TestChunkAllocatorCoalesces(t *testing.T) {
	a := NewBufferChunkAllocator(30)
	var parts []BufferChunk
	for i := 0; i < 3; i++ {
		p, ok := a.AddPart(10, 1, nil)
		require.True(t, ok)
		parts = append(parts, p)
	}
	assert.Empty(t, a.UnusedChunks)

	a.RemovePart(parts[0])
	a.RemovePart(parts[2])
	assert.Equal(t, []BufferChunk{{Offset: 0, Size: 10}, {Offset: 20, Size: 10}}, a.UnusedChunks)

	a.RemovePart(parts[1])
	assert.Equal(t, []BufferChunk{{Offset: 0, Size: 30}}, a.UnusedChunks)
	assert.Zero(t, a.UsedChunkCount)
}

func TestChunkAllocatorRandomSequence(t *testing.T) {
	r := rand.New(rand.NewSource(20241018))
	a := NewBufferChunkAllocator(1 << 16)
	var used []BufferChunk

	for step := 0; step < 5000; step++ {
		if len(used) > 0 && r.Intn(3) == 0 {
			i := r.Intn(len(used))
			a.RemovePart(used[i])
			used = append(used[:i], used[i+1:]...)
		} else {
			size := uint32(r.Intn(2048) + 1)
			alignment := []uint32{1, 2, 4, 12, 16, 256}[r.Intn(6)]
			var request *BufferChunk
			if r.Intn(8) == 0 {
				request = &BufferChunk{Offset: uint32(r.Intn(1 << 16)), Size: size}
				if request.end() > a.Size {
					request = nil
				}
			}
			if part, ok := a.AddPart(size, alignment, request); ok {
				if request == nil {
					require.Zero(t, part.Offset%alignment)
				}
				used = append(used, part)
			}
		}
		checkAllocator(t, a, used)
	}

	for _, part := range used {
		a.RemovePart(part)
	}
	assert.Equal(t, []BufferChunk{{Offset: 0, Size: 1 << 16}}, a.UnusedChunks)
	assert.Zero(t, a.UsedChunkCount)
}
