package software

import (
	"sync"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
)

type Fence struct {
	mutex  sync.Mutex
	cond   *sync.Cond
	status gpu.FenceStatus
}

func (f *Fence) Status() gpu.FenceStatus {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.status
}

func (f *Fence) Wait() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.status == gpu.FenceStatusNotSubmitted {
		return nil
	}
	for f.status == gpu.FenceStatusIncomplete {
		f.cond.Wait()
	}
	f.status = gpu.FenceStatusNotSubmitted
	return nil
}

func (f *Fence) Destroy() {}

// arm moves the fence to incomplete. It fails if the fence is still pending.
func (f *Fence) arm() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.status == gpu.FenceStatusIncomplete {
		return false
	}
	f.status = gpu.FenceStatusIncomplete
	return true
}

func (f *Fence) signal() {
	f.mutex.Lock()
	f.status = gpu.FenceStatusComplete
	f.mutex.Unlock()
	f.cond.Broadcast()
}

// Semaphore counts signals; each wait consumes one.
type Semaphore struct {
	mutex sync.Mutex
	cond  *sync.Cond
	count uint64
}

func (s *Semaphore) Destroy() {}

func (s *Semaphore) signal() {
	s.mutex.Lock()
	s.count++
	s.mutex.Unlock()
	s.cond.Broadcast()
}

func (s *Semaphore) wait() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
}

// Pending returns the number of signals not consumed by a wait yet.
func (s *Semaphore) Pending() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.count
}
