package pipeline

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"
)

// Job is one image to process with its requested direction.
type Job struct {
	Image     image.Image
	Direction string
}

type jobItem struct {
	index int
	job   Job
}

type jobResult struct {
	index  int
	result Result
}

// ProcessAll processes jobs with a pool of workers and returns results in
// input order. workers <= 0 uses runtime.NumCPU(). On cancellation the jobs
// that did not run have zero results and ctx.Err() is returned.
func (p *Pipeline) ProcessAll(ctx context.Context, jobs []Job, workers int) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no images provided")
	}
	if !p.Ready() {
		return nil, errors.New("pipeline not initialized")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(jobs))

	results := make([]Result, len(jobs))
	if workers == 1 {
		for i, j := range jobs {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			results[i] = p.Process(ctx, j.Image, j.Direction)
		}
		return results, nil
	}

	in := make(chan jobItem)
	out := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go p.worker(ctx, in, out, &wg)
	}

	go func() {
		defer close(in)
		for i, j := range jobs {
			select {
			case in <- jobItem{index: i, job: j}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	for r := range out {
		results[r.index] = r.result
	}
	return results, ctx.Err()
}

func (p *Pipeline) worker(ctx context.Context, in <-chan jobItem, out chan<- jobResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case item, ok := <-in:
			if !ok {
				return
			}
			out <- jobResult{index: item.index, result: p.Process(ctx, item.job.Image, item.job.Direction)}
		case <-ctx.Done():
			return
		}
	}
}
