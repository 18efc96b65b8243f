package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sf7293/job-notifier/internal/domain"
)

// Pool is a bounded set of concurrent executors pulling leased tasks from the
// queue. A supervisor loop reconciles the executor count between the
// configured min and max on a polling interval: sustained backlog grows the
// pool, an idle queue shrinks it. The bounds are hard: the pool never runs
// more than max executors, even transiently, which is what keeps us inside
// the providers' rate limits.
type Pool struct {
	queue        domain.TaskQueue
	executor     *Executor
	consumerName string

	min           int
	max           int
	scaleInterval time.Duration

	deliveries chan domain.TaskDelivery
	// slots caps concurrently executing tasks at max: a stopped worker still
	// finishing its task holds its slot until the task settles, so a scale-up
	// replacement cannot push concurrent executions past the bound
	slots chan struct{}
	size  atomic.Int32

	mu    sync.Mutex
	stops []chan struct{}
	wg    sync.WaitGroup
}

func NewPool(queue domain.TaskQueue, executor *Executor, consumerName string, minWorkers, maxWorkers int, scaleInterval time.Duration) *Pool {
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	return &Pool{
		queue:         queue,
		executor:      executor,
		consumerName:  consumerName,
		min:           minWorkers,
		max:           maxWorkers,
		scaleInterval: scaleInterval,
		deliveries:    make(chan domain.TaskDelivery),
		slots:         make(chan struct{}, maxWorkers),
	}
}

// Start registers the queue consumer and spins up the minimum number of
// executors, then runs the reconcile loop until the context is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	err := p.queue.ConsumeTasks(p.consumerName, func(d domain.TaskDelivery) {
		select {
		case p.deliveries <- d:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}

	p.scaleTo(ctx, p.min)

	p.wg.Add(1)
	go p.supervise(ctx)

	return nil
}

func (p *Pool) supervise(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.scaleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcile(ctx)
		}
	}
}

func (p *Pool) reconcile(ctx context.Context) {
	depth, err := p.queue.Depth()
	if err != nil {
		slog.Error("Error occurred while reading queue depth, keeping pool size", "error", err.Error())
		return
	}

	current := int(p.size.Load())
	backlog := depth + len(p.deliveries)

	desired := current
	switch {
	case backlog > current:
		// Sustained backlog: expand toward max one doubling per interval
		desired = current * 2
		if desired > p.max {
			desired = p.max
		}
	case backlog == 0:
		// Idle: contract toward min
		desired = current / 2
		if desired < p.min {
			desired = p.min
		}
	}

	if desired != current {
		slog.Info("Reconciling worker pool size", "current", current, "desired", desired, "queue_depth", depth)
		p.scaleTo(ctx, desired)
	}
}

func (p *Pool) scaleTo(ctx context.Context, desired int) {
	if desired > p.max {
		desired = p.max
	}
	if desired < p.min {
		desired = p.min
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.stops) < desired {
		stop := make(chan struct{})
		p.stops = append(p.stops, stop)
		p.size.Store(int32(len(p.stops)))

		p.wg.Add(1)
		go p.runWorker(ctx, stop)
	}

	for len(p.stops) > desired {
		last := p.stops[len(p.stops)-1]
		p.stops = p.stops[:len(p.stops)-1]
		p.size.Store(int32(len(p.stops)))
		close(last)
	}
}

func (p *Pool) runWorker(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case d, ok := <-p.deliveries:
			if !ok {
				return
			}

			select {
			case p.slots <- struct{}{}:
			case <-ctx.Done():
				return
			}

			// One task runs to completion before the executor asks for another
			p.executor.HandleDelivery(ctx, d)
			<-p.slots
		}
	}
}

// ActiveWorkers returns the current executor count, always inside [min, max].
func (p *Pool) ActiveWorkers() int {
	return int(p.size.Load())
}

// Wait blocks until every executor and the supervisor have returned. Call it
// after cancelling the context passed to Start.
func (p *Pool) Wait() {
	p.wg.Wait()
}
