package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer ids, reusing released slots first.
type IdentifierPool struct {
	mutex  sync.Mutex
	owners []interface{}
}

func NewIdentifierPool(capacity int) *IdentifierPool {
	return &IdentifierPool{
		owners: make([]interface{}, 0, capacity),
	}
}

// Acquire returns a new id owned by owner. owner must not be nil.
func (p *IdentifierPool) Acquire(owner interface{}) uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for i := range p.owners {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return uint32(i)
		}
	}
	// No free slots, so push a new one.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

// Release frees the id so it can be handed out again.
func (p *IdentifierPool) Release(id uint32) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if int(id) >= len(p.owners) {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, len(p.owners))
	}
	if p.owners[id] == nil {
		return fmt.Errorf("identifier release: id '%d' is not in use", id)
	}
	p.owners[id] = nil
	return nil
}

// Owner returns the owner registered for id, or nil.
func (p *IdentifierPool) Owner(id uint32) interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if int(id) >= len(p.owners) {
		return nil
	}
	return p.owners[id]
}
