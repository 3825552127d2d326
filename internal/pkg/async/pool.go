// internal/pkg/async/pool.go
package async

import (
	"context"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

type Result struct {
	Name string
	Data interface{}
	Err  error
}

type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			data, err := task.Execute(ctx)
			results <- Result{
				Name: task.Name,
				Data: data,
				Err:  err,
			}
		case <-ctx.Done():
			return
		}
	}
}

// Execute runs every task and waits for all of them to settle. The first
// task error cancels the context handed to the remaining tasks and is
// returned as is; results of tasks that never ran are absent from the map.
// A pool may be reused across calls.
func (p *Pool) Execute(ctx context.Context, tasks []Task) (map[string]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))
	results := make(map[string]Result, len(tasks))

	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, taskCh, resultCh, &wg)
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var firstErr error
	for result := range resultCh {
		results[result.Name] = result
		if result.Err != nil && firstErr == nil {
			firstErr = result.Err
			cancel()
		}
	}

	if firstErr == nil && len(results) < len(tasks) {
		firstErr = ctx.Err()
	}

	return results, firstErr
}
