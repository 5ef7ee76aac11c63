package loader

import (
	"errors"
	"fmt"

	"github.com/thefork190/TheFork-sub000/engine/core"
)

func (l *ResourceLoader) hasPendingWorkLocked() bool {
	for _, n := range l.nodes {
		if len(n.requests) > 0 {
			return true
		}
	}
	return l.completed.Load() != l.issued.Load()
}

func (l *ResourceLoader) streamerThread() {
	defer close(l.done)
	core.LogDebug("resource loader worker started")
	for {
		l.queueMutex.Lock()
		for l.run && !l.hasPendingWorkLocked() {
			l.queueCond.Wait()
		}
		pending := l.hasPendingWorkLocked()
		l.queueMutex.Unlock()
		if !pending {
			// only reached once run is false and everything drained
			core.LogDebug("resource loader worker stopped")
			return
		}
		l.tick()
	}
}

// drain runs ticks on the calling goroutine until all queued work completed.
func (l *ResourceLoader) drain() {
	l.tickMutex.Lock()
	defer l.tickMutex.Unlock()
	for {
		l.queueMutex.Lock()
		pending := l.hasPendingWorkLocked()
		l.queueMutex.Unlock()
		if !pending {
			return
		}
		l.tick()
	}
}

/**
 * @brief One frame of the worker: recycle the oldest resource set, publish what it
 * completed, process every queued request, submit, publish what was submitted.
 */
func (l *ResourceLoader) tick() {
	set := l.nextSet
	waited := true
	for _, n := range l.nodes {
		if err := n.copyEngine.selectSet(set); err != nil {
			core.LogError("node %d: waiting on copy set %d: %s", n.index, set, err)
			waited = false
		}
	}

	// a set whose wait failed publishes nothing; its tokens complete with a later set
	if waited {
		l.tokenMutex.Lock()
		if completed := uint64(l.tokenState[set]); completed > l.completed.Load() {
			l.completed.Store(completed)
		}
		l.tokenMutex.Unlock()
		l.tokenCond.Broadcast()
	}

	l.queueMutex.Lock()
	batches := make([][]request, len(l.nodes))
	for i, n := range l.nodes {
		batches[i] = n.requests
		n.requests = nil
	}
	l.queueMutex.Unlock()

	maxToken := l.carried
	var firstDeferred SyncToken
	for i, n := range l.nodes {
		for j, req := range batches[i] {
			err := l.process(n, req)
			if errors.Is(err, ErrStagingBufferFull) {
				// the rest of the batch goes first next tick, in order
				l.requeue(n, batches[i][j:])
				if firstDeferred == 0 || req.waitIndex() < firstDeferred {
					firstDeferred = req.waitIndex()
				}
				break
			}
			if err != nil {
				l.fail(req, err)
			}
			l.stats.requestsProcessed.Add(1)
			maxToken = max(maxToken, req.waitIndex())
		}
		if err := n.copyEngine.flush(); err != nil {
			core.LogError("node %d: %s", n.index, err)
		}
	}

	l.carried = 0
	if firstDeferred != 0 && maxToken >= firstDeferred {
		// tokens past a deferred request are only published once it is processed
		l.carried = maxToken
		maxToken = firstDeferred - 1
	}

	l.tokenMutex.Lock()
	next := max(maxToken, SyncToken(l.completed.Load()))
	l.tokenState[set] = next
	if uint64(next) > l.submitted.Load() {
		l.submitted.Store(uint64(next))
	}
	l.tokenMutex.Unlock()
	l.tokenCond.Broadcast()

	l.nextSet = (set + 1) % l.config.BufferCount
	l.stats.ticks.Add(1)
}

func (l *ResourceLoader) requeue(n *nodeState, reqs []request) {
	l.queueMutex.Lock()
	n.requests = append(append(make([]request, 0, len(reqs)+len(n.requests)), reqs...), n.requests...)
	l.queueMutex.Unlock()
}

func (l *ResourceLoader) fail(req request, err error) {
	if !errors.Is(err, ErrInvalidRequest) {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	core.LogError("resource loader: %s (token %d): %s", req.describe(), req.waitIndex(), err)
	l.stats.invalidRequests.Add(1)
	l.recordFailure(req.waitIndex(), err)
}

func (l *ResourceLoader) process(node *nodeState, req request) error {
	switch r := req.(type) {
	case *bufferRequest:
		return l.loadBuffer(node, r)
	case *textureRequest:
		return l.loadTexture(node, r)
	case *geometryRequest:
		return l.loadGeometry(node, r)
	case *textureBarrierRequest:
		return l.issueTextureBarrier(node, r)
	case *textureCopyRequest:
		return l.copyTexture(node, r)
	}
	panic(fmt.Sprintf("resource loader: unhandled request %T", req))
}
