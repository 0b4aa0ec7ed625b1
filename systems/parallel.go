package systems

import (
	"runtime"
	"sync"

	"github.com/mlange-42/ark/ecs"
)

// DefaultParallelThreshold is the minimum ring size worth splitting across
// workers. Below this, single-threaded is faster due to goroutine overhead.
const DefaultParallelThreshold = 256

// workChunk is a range of ring indices for one worker.
type workChunk struct {
	start, end int
}

// forcePool runs the force phase on persistent worker goroutines. Each
// worker owns a query scratch buffer and writes only the force slots of its
// own chunk, so no locking is needed beyond the tree's read lock.
type forcePool struct {
	numWorkers int
	threshold  int
	scratches  [][]ecs.Entity

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// newForcePool sizes a pool. workers <= 0 uses GOMAXPROCS.
func newForcePool(workers, threshold int) *forcePool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}
	scratches := make([][]ecs.Entity, workers)
	for i := range scratches {
		scratches[i] = make([]ecs.Entity, 0, 32)
	}
	return &forcePool{
		numWorkers: workers,
		threshold:  threshold,
		scratches:  scratches,
	}
}

// run computes forces for n points, in parallel when n reaches the threshold.
func (p *forcePool) run(r *Ring, n int) {
	if p.numWorkers <= 1 || n < p.threshold {
		p.scratches[0] = r.computeChunk(0, n, p.scratches[0])
		return
	}

	if !p.running {
		p.startWorkers(r)
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

func (p *forcePool) startWorkers(r *Ring) {
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(r, i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *forcePool) stopWorkers() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *forcePool) worker(r *Ring, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.scratches[id] = r.computeChunk(chunk.start, chunk.end, p.scratches[id])
			p.doneChan <- struct{}{}
		}
	}
}
