package systems

import (
	"errors"
	"sync"

	"github.com/thefork190/TheFork-sub000/engine/core"
)

// JobTask is one unit of work run by the job system.
type JobTask struct {
	Name    string
	OnStart func() error
	// Called with the error returned by OnStart.
	OnFailure func(err error)
	// Called when OnStart succeeded.
	OnComplete func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	pending    sync.WaitGroup

	mutex    sync.RWMutex
	isClosed bool
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	defer js.pending.Done()
	if err := job.OnStart(); err != nil {
		core.LogError("job `%s` failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.isClosed {
		js.mutex.Unlock()
		return nil
	}
	js.isClosed = true
	close(js.jobQueue)
	js.mutex.Unlock()
	js.wg.Wait()
	return nil
}

/**
 * @brief Blocks until every job submitted so far has run.
 */
func (js *JobSystem) Wait() {
	js.pending.Wait()
}

/**
 * @brief Submits the provided job to be queued for execution.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.isClosed {
		return ErrJobSystemClosed
	}
	js.pending.Add(1)
	js.jobQueue <- jt
	return nil
}
