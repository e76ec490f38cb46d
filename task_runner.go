package doctxn

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner runs tasks on goroutines, at most maxThreadCount at a time. The first task
// error cancels the runner's context and is returned by Wait.
type TaskRunner struct {
	maxThreadCount int
	eg             *errgroup.Group
	limiterChan    chan bool
	context        context.Context
}

func NewTaskRunner(ctx context.Context, maxThreadCount int) *TaskRunner {
	if maxThreadCount <= 0 {
		maxThreadCount = 1
	}
	eg, ctx2 := errgroup.WithContext(ctx)
	return &TaskRunner{
		maxThreadCount: maxThreadCount,
		limiterChan:    make(chan bool, maxThreadCount),
		eg:             eg,
		context:        ctx2,
	}
}

func (tr *TaskRunner) GetContext() context.Context {
	return tr.context
}

// Go blocks until a thread slot is free, then runs task.
func (tr *TaskRunner) Go(task func() error) {
	// Occupy a thread slot.
	tr.limiterChan <- true
	tr.eg.Go(func() error {
		// Free up this thread slot.
		defer func() { <-tr.limiterChan }()
		return task()
	})
}

// Wrapper to errgroup.Wait.
func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
