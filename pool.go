package repoql

import (
	"context"
	"sync"
)

// minChunkRows is the smallest slice of rows handed to one worker. Inputs
// that fit in one chunk are filtered on the calling goroutine.
const minChunkRows = 64

// evalPool is a fixed set of goroutines that filter candidate rows against
// a query constraint. jobs is unbuffered and never closed, so a job is
// either taken by a live worker or refused once quit is closed.
type evalPool struct {
	size     int
	jobs     chan *filterJob
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// filterJob is one chunk of rows waiting for evaluation.
type filterJob struct {
	ctx  context.Context
	c    Constraint
	b    Bindings
	rows []MapRow
	done *sync.WaitGroup

	keep []MapRow
	err  error
}

func newEvalPool(size int) *evalPool {
	if size <= 0 {
		size = 1
	}
	p := &evalPool{size: size, jobs: make(chan *filterJob), quit: make(chan struct{})}
	p.wg.Add(size)
	for range size {
		go p.work()
	}
	return p
}

func (p *evalPool) work() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.run()
		case <-p.quit:
			return
		}
	}
}

func (j *filterJob) run() {
	defer j.done.Done()
	if j.err = j.ctx.Err(); j.err != nil {
		return
	}
	j.keep, j.err = guard(func() ([]MapRow, error) {
		return filterRows(j.c, j.rows, j.b)
	})
}

// filterRows keeps the rows for which c evaluates to True.
func filterRows(c Constraint, rows []MapRow, b Bindings) ([]MapRow, error) {
	var keep []MapRow
	for _, row := range rows {
		t, err := Evaluate(c, row, b)
		if err != nil {
			return nil, err
		}
		if t == True {
			keep = append(keep, row)
		}
	}
	return keep, nil
}

// filter evaluates c over rows in parallel and returns the matching rows in
// input order. The first error in input order wins. After stop it returns
// ErrClosed.
func (p *evalPool) filter(ctx context.Context, c Constraint, rows []MapRow, b Bindings) ([]MapRow, error) {
	select {
	case <-p.quit:
		return nil, ErrClosed
	default:
	}
	chunk := max((len(rows)+p.size-1)/p.size, minChunkRows)
	if len(rows) <= chunk {
		return filterRows(c, rows, b)
	}

	var done sync.WaitGroup
	jobs := make([]*filterJob, 0, (len(rows)+chunk-1)/chunk)
	for start := 0; start < len(rows); start += chunk {
		j := &filterJob{
			ctx:  ctx,
			c:    c,
			b:    b,
			rows: rows[start:min(start+chunk, len(rows))],
			done: &done,
		}
		jobs = append(jobs, j)
		done.Add(1)
		select {
		case p.jobs <- j:
		case <-ctx.Done():
			j.err = ctx.Err()
			done.Done()
		case <-p.quit:
			j.err = ErrClosed
			done.Done()
		}
	}
	done.Wait()

	var out []MapRow
	for _, j := range jobs {
		if j.err != nil {
			return nil, j.err
		}
		out = append(out, j.keep...)
	}
	return out, nil
}

// stop waits for running jobs and the workers to exit. Later filter calls
// fail with ErrClosed.
func (p *evalPool) stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
