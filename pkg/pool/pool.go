package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// MapFunc processes one item into a result.
type MapFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Run processes items concurrently with at most numWorkers goroutines and returns
// the errors the workers reported. Feeding stops when ctx is cancelled.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	_, errs := Map(ctx, items, numWorkers, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, workerFunc(ctx, item)
	})
	return errs
}

// Map is like Run but also collects results. results[i] belongs to items[i] and
// is the zero value when the item failed or was never processed.
func Map[T, R any](ctx context.Context, items []T, numWorkers int, fn MapFunc[T, R]) ([]R, []error) {
	numWorkers = max(numWorkers, 1)

	type task struct {
		index int
		item  T
	}

	var wg sync.WaitGroup
	taskChan := make(chan task, numWorkers)
	errChan := make(chan error, len(items))
	results := make([]R, len(items))

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
					r, err := fn(ctx, t.item)
					if err != nil {
						errChan <- err
						continue
					}
					results[t.index] = r
				}
			}
		}()
	}

OUT:
	for i, item := range items {
		select {
		case taskChan <- task{index: i, item: item}:
		case <-ctx.Done():
			break OUT
		}
	}
	close(taskChan)

	wg.Wait()
	close(errChan)

	var allErrors []error
	for err := range errChan {
		allErrors = append(allErrors, err)
	}
	return results, allErrors
}
