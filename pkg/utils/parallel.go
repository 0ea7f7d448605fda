package utils

import "sync"

// ParallelMap 以最多 workers 个协程并发处理 inputs，结果顺序与输入一致。
// 输入只有 1 个或 workers<=1 时直接串行处理。
func ParallelMap[T any, R any](inputs []T, workers int, fn func(T) R) []R {
	results := make([]R, len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if workers <= 1 || len(inputs) == 1 {
		for i, in := range inputs {
			results[i] = fn(in)
		}
		return results
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	indexCh := make(chan int, len(inputs))
	for i := range inputs {
		indexCh <- i
	}
	close(indexCh)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexCh {
				results[i] = fn(inputs[i])
			}
		}()
	}
	wg.Wait()
	return results
}
