package software

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type Buffer struct {
	device    *Device
	desc      metadata.BufferDesc
	data      []byte
	mapped    bool
	destroyed atomic.Bool
}

func (b *Buffer) Desc() *metadata.BufferDesc {
	return &b.desc
}

func (b *Buffer) Size() uint64 {
	return b.desc.Size
}

func (b *Buffer) NodeIndex() uint32 {
	return b.desc.NodeIndex
}

func (b *Buffer) Mapped() []byte {
	if !b.mapped {
		return nil
	}
	return b.data
}

func (b *Buffer) Map() ([]byte, error) {
	if !b.mapped {
		return nil, fmt.Errorf("buffer `%s` lives in device memory: %w", b.desc.Name, gpu.ErrInvalidDesc)
	}
	return b.data, nil
}

func (b *Buffer) Unmap() {}

func (b *Buffer) Destroy() error {
	if b.destroyed.Swap(true) {
		b.device.validationError("buffer `%s` destroyed twice", b.desc.Name)
		return gpu.ErrAlreadyDestroyed
	}
	b.device.counters.buffersDestroyed.Add(1)
	return nil
}

func (b *Buffer) isDestroyed() bool {
	return b.destroyed.Load()
}

// Contents returns a copy of the buffer memory, mapped or not. Only meaningful once
// the work writing it is known complete.
func (b *Buffer) Contents() []byte {
	return append([]byte(nil), b.data...)
}

type Texture struct {
	device    *Device
	desc      metadata.TextureDesc
	destroyed atomic.Bool

	mutex sync.Mutex
	// indexed by layer*MipLevels + mip, tightly packed rows
	data   [][]byte
	states []metadata.ResourceState
}

func newTexture(device *Device, desc metadata.TextureDesc) *Texture {
	t := &Texture{device: device, desc: desc}
	count := desc.ArraySize * desc.MipLevels
	t.data = make([][]byte, count)
	t.states = make([]metadata.ResourceState, count)
	for layer := uint32(0); layer < desc.ArraySize; layer++ {
		for mip := uint32(0); mip < desc.MipLevels; mip++ {
			w, h, d := desc.MipExtent(mip)
			size := desc.Format.RowBytes(w) * desc.Format.NumRows(h) * d
			t.data[t.subresourceIndex(mip, layer)] = make([]byte, size)
		}
	}
	return t
}

func (t *Texture) Desc() *metadata.TextureDesc {
	return &t.desc
}

func (t *Texture) NodeIndex() uint32 {
	return t.desc.NodeIndex
}

func (t *Texture) Destroy() error {
	if t.destroyed.Swap(true) {
		t.device.validationError("texture `%s` destroyed twice", t.desc.Name)
		return gpu.ErrAlreadyDestroyed
	}
	t.device.counters.texturesDestroyed.Add(1)
	return nil
}

func (t *Texture) isDestroyed() bool {
	return t.destroyed.Load()
}

func (t *Texture) subresourceIndex(mip, layer uint32) uint32 {
	return layer*t.desc.MipLevels + mip
}

// Subresource returns a tightly packed copy of one mip level of one array layer.
func (t *Texture) Subresource(mip, layer uint32) []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]byte(nil), t.data[t.subresourceIndex(mip, layer)]...)
}

// State returns the tracked state of a subresource.
func (t *Texture) State(mip, layer uint32) metadata.ResourceState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.states[t.subresourceIndex(mip, layer)]
}

func (t *Texture) transition(device *Device, b *gpu.TextureBarrier) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	apply := func(sub uint32) {
		// the acquire half of an ownership transfer finds the state its release half set
		if b.Acquire && b.CurrentState != b.NewState && t.states[sub] == b.NewState {
			return
		}
		// Undefined discards the contents, any tracked state is accepted
		if b.CurrentState != metadata.ResourceStateUndefined && t.states[sub] != b.CurrentState {
			device.validationError("texture `%s` barrier expects state 0x%x, subresource %d is in 0x%x", t.desc.Name, b.CurrentState, sub, t.states[sub])
		}
		t.states[sub] = b.NewState
	}
	if b.Subresource {
		apply(t.subresourceIndex(b.MipLevel, b.ArrayLayer))
		return
	}
	for sub := range t.states {
		apply(uint32(sub))
	}
}
