package loader

import (
	"sync/atomic"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
)

/**
 * @brief Identifies queued loader work. Tokens increase by one per queued request.
 * A token is submitted once its commands were submitted to the GPU and completed
 * once that GPU work finished. The zero token is always completed.
 */
type SyncToken uint64

func (l *ResourceLoader) IsTokenCompleted(token SyncToken) bool {
	return uint64(token) <= l.completed.Load()
}

func (l *ResourceLoader) IsTokenSubmitted(token SyncToken) bool {
	return uint64(token) <= l.submitted.Load()
}

// WaitForToken blocks until the work of token has completed on the GPU.
func (l *ResourceLoader) WaitForToken(token SyncToken) {
	l.waitFor(&l.completed, token)
}

// WaitForTokenSubmitted blocks until the work of token has been submitted to the GPU.
func (l *ResourceLoader) WaitForTokenSubmitted(token SyncToken) {
	l.waitFor(&l.submitted, token)
}

func (l *ResourceLoader) waitFor(counter *atomic.Uint64, token SyncToken) {
	if issued := l.issued.Load(); uint64(token) > issued {
		core.LogWarn("waiting on token %d which was never issued (last issued %d)", token, issued)
		token = SyncToken(issued)
	}
	if uint64(token) <= counter.Load() {
		return
	}
	l.tokenMutex.Lock()
	defer l.tokenMutex.Unlock()
	for uint64(token) > counter.Load() {
		l.tokenCond.Wait()
	}
}

func (l *ResourceLoader) AllResourceLoadsCompleted() bool {
	return l.completed.Load() >= l.issued.Load()
}

/**
 * @brief Blocks until everything queued before the call has completed. Work queued
 * afterwards is not waited for.
 */
func (l *ResourceLoader) WaitForAllResourceLoads() {
	l.WaitForToken(SyncToken(l.issued.Load()))
}

func (l *ResourceLoader) LastTokenCompleted() SyncToken {
	return SyncToken(l.completed.Load())
}

/**
 * @brief Returns the semaphore signalled by the last loader submission on a node
 * that nothing waits on yet, or nil. The caller must wait on it in a later submission.
 */
func (l *ResourceLoader) LastSemaphoreSubmitted(nodeIndex uint32) gpu.Semaphore {
	if nodeIndex >= uint32(len(l.nodes)) {
		core.LogError("gpu node %d of %d: %s", nodeIndex, len(l.nodes), ErrNodeMismatch)
		return nil
	}
	return l.nodes[nodeIndex].copyEngine.consumeSemaphore()
}

/**
 * @brief Returns the error of an invalid request, or nil if it succeeded, is unknown
 * or its failure is older than the last 1024 failures.
 */
func (l *ResourceLoader) TokenError(token SyncToken) error {
	l.failureMutex.Lock()
	defer l.failureMutex.Unlock()
	return l.failures[token]
}

func (l *ResourceLoader) recordFailure(token SyncToken, err error) {
	l.failureMutex.Lock()
	defer l.failureMutex.Unlock()
	if l.failureOrder.IsFull() {
		oldest, _ := l.failureOrder.Dequeue()
		delete(l.failures, oldest)
	}
	_ = l.failureOrder.Enqueue(token)
	l.failures[token] = err
}
