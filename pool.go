package mi

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// workerPool runs handler invocations on a fixed number of goroutines. Submit blocks
// while every worker is busy; Join waits for queued and running tasks.
type workerPool struct {
	pool *ants.Pool
	wg   sync.WaitGroup
}

func newWorkerPool(size int, errLog *Sink) (*workerPool, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	options := []ants.Option{
		ants.WithPanicHandler(func(v interface{}) {
			errLog.Printf("mi: worker panic: %v", v)
		}),
	}
	if errLog != nil {
		options = append(options, ants.WithLogger(errLog))
	}

	pool, err := ants.NewPool(size, options...)
	if err != nil {
		return nil, err
	}

	return &workerPool{pool: pool}, nil
}

func (p *workerPool) Submit(task func()) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		task()
	})
	if err != nil {
		p.wg.Done()
	}

	return err
}

// Join blocks until every submitted task has finished, then releases the workers.
func (p *workerPool) Join() {
	p.wg.Wait()
	p.pool.Release()
}

func (p *workerPool) Cap() int {
	return p.pool.Cap()
}

func (p *workerPool) Running() int {
	return p.pool.Running()
}
