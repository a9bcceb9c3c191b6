package platform

import (
	"context"
	"sync"
)

// fanOutRows runs worker once per key under a bounded semaphore, collecting
// the rows each worker produces into one slice. Cancellation is checked
// before each submission and inside each worker.
func fanOutRows(ctx context.Context, keys []string, maxConcurrency int, worker func(ctx context.Context, key string) ([]map[string]any, error)) ([]map[string]any, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		rows    []map[string]any
		firstErr error
	)
	sem := make(chan struct{}, maxConcurrency)

	for _, key := range keys {
		select {
		case <-ctx.Done():
			goto done
		default:
		}

		wg.Add(1)
		select {
		case <-ctx.Done():
			wg.Done()
			goto done
		case sem <- struct{}{}:
			go func(key string) {
				defer wg.Done()
				defer func() { <-sem }()

				select {
				case <-ctx.Done():
					return
				default:
				}

				keyRows, err := worker(ctx, key)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				rows = append(rows, keyRows...)
			}(key)
		}
	}

done:
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return rows, err
	}
	return rows, nil
}
