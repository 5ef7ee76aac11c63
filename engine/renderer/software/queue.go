package software

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thefork190/TheFork-sub000/engine/renderer/gpu"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

type submission struct {
	cmds    []*CmdBuffer
	waits   []*Semaphore
	signals []*Semaphore
	fence   *Fence
}

type Queue struct {
	device    *Device
	queueType metadata.QueueType

	submissions chan *submission
	done        chan struct{}

	mutex     sync.Mutex
	idle      *sync.Cond
	pending   int
	destroyed bool
}

func newQueue(device *Device, queueType metadata.QueueType) *Queue {
	q := &Queue{
		device:      device,
		queueType:   queueType,
		submissions: make(chan *submission, 64),
		done:        make(chan struct{}),
	}
	q.idle = sync.NewCond(&q.mutex)
	go q.run()
	return q
}

func (q *Queue) Type() metadata.QueueType {
	return q.queueType
}

func (q *Queue) Family() uint32 {
	return uint32(q.queueType)
}

func (q *Queue) Submit(desc *gpu.SubmitDesc) error {
	if desc == nil {
		return fmt.Errorf("nil submit description: %w", gpu.ErrInvalidDesc)
	}
	s := &submission{}
	for _, c := range desc.Cmds {
		cmd, ok := c.(*CmdBuffer)
		if !ok {
			return fmt.Errorf("foreign command buffer: %w", gpu.ErrInvalidDesc)
		}
		if cmd.state != cmdStateExecutable {
			q.device.validationError("submitting command buffer that was not ended")
			return gpu.ErrCmdNotRecording
		}
		if cmd.pool.queue != q {
			q.device.validationError("command buffer submitted to a queue other than its pool's (%s vs %s)", cmd.pool.queue.queueType, q.queueType)
		}
		s.cmds = append(s.cmds, cmd)
	}
	for _, w := range desc.WaitSemaphores {
		if w == nil {
			continue
		}
		s.waits = append(s.waits, w.(*Semaphore))
	}
	for _, sig := range desc.SignalSemaphores {
		if sig == nil {
			continue
		}
		s.signals = append(s.signals, sig.(*Semaphore))
	}
	if desc.Fence != nil {
		s.fence = desc.Fence.(*Fence)
		if !s.fence.arm() {
			q.device.validationError("submitting a fence that is still pending")
			return gpu.ErrFencePending
		}
	}

	q.mutex.Lock()
	if q.destroyed {
		q.mutex.Unlock()
		return gpu.ErrDeviceLost
	}
	q.pending++
	q.mutex.Unlock()

	q.device.counters.submissions[q.queueType].Add(1)
	q.submissions <- s
	return nil
}

func (q *Queue) WaitIdle() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
	return nil
}

func (q *Queue) Destroy() {
	q.mutex.Lock()
	if q.destroyed {
		q.mutex.Unlock()
		return
	}
	q.destroyed = true
	q.mutex.Unlock()
	close(q.submissions)
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for s := range q.submissions {
		for _, w := range s.waits {
			w.wait()
		}
		if q.device.config.ExecutionDelay > 0 {
			time.Sleep(q.device.config.ExecutionDelay)
		}
		for _, cmd := range s.cmds {
			q.execute(cmd)
		}
		for _, sig := range s.signals {
			sig.signal()
		}
		if s.fence != nil {
			s.fence.signal()
		}

		q.mutex.Lock()
		q.pending--
		q.mutex.Unlock()
		q.idle.Broadcast()
	}
}

func (q *Queue) execute(cmd *CmdBuffer) {
	for _, op := range cmd.ops {
		if err := op(q); err != nil {
			var v *validationErr
			if errors.As(err, &v) {
				q.device.validationError("%s", v.msg)
			}
		}
	}
}

type validationErr struct {
	msg string
}

func (e *validationErr) Error() string {
	return e.msg
}

func invalid(format string, args ...interface{}) error {
	return &validationErr{msg: fmt.Sprintf(format, args...)}
}
