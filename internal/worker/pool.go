// Package worker provides the small bounded goroutine pool the
// backtest executor and the simulation task supervisor fan work out
// to (SPEC_FULL.md §5): core/max worker counts with a bounded queue,
// where overflow beyond the queue runs synchronously on the caller
// rather than blocking or erroring.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work submitted to the pool.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// PoolConfig configures a Pool. CoreWorkers stay alive for the life of
// the pool; MaxWorkers bounds how many may run concurrently when the
// queue backs up (modeled here as a semaphore, not separately spawned
// goroutines, since Go goroutines are cheap and the distinction only
// matters for the concurrency ceiling).
type PoolConfig struct {
	Name        string
	CoreWorkers int
	MaxWorkers  int
	QueueSize   int
}

// DefaultPoolConfig returns the spec's default sizing: 2 core, 4 max,
// queue of 10.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{Name: name, CoreWorkers: 2, MaxWorkers: 4, QueueSize: 10}
}

// PoolMetrics tracks submission/completion counters and a rolling
// latency sample, reused across the backtest fan-out and the
// simulation supervisor for ambient observability.
type PoolMetrics struct {
	mu sync.Mutex

	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksOverflow  int64 // ran synchronously on the caller

	latencies  []int64
	latencyIdx int
	startTime  time.Time
}

func newPoolMetrics() *PoolMetrics {
	return &PoolMetrics{latencies: make([]int64, 1000), startTime: time.Now()}
}

func (m *PoolMetrics) recordLatency(ns int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[m.latencyIdx] = ns
	m.latencyIdx = (m.latencyIdx + 1) % len(m.latencies)
}

// P99Latency returns the 99th percentile of the recorded latency
// sample window.
func (m *PoolMetrics) P99Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	filled := 0
	for _, v := range m.latencies {
		if v != 0 {
			filled++
		}
	}
	if filled == 0 {
		return 0
	}
	sorted := make([]int64, filled)
	copy(sorted, m.latencies[:filled])
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return time.Duration(sorted[idx])
}

// Throughput returns completed tasks per second since the pool started.
func (m *PoolMetrics) Throughput() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.TasksCompleted)) / elapsed
}

// Pool is a bounded worker pool with core workers and a queue; when
// the queue is full, Submit runs the task on the caller's goroutine
// instead of blocking (SPEC_FULL.md §4.7 "overflow runs on caller").
type Pool struct {
	logger  *zap.Logger
	config  PoolConfig
	tasks   chan Task
	sem     chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *PoolMetrics
}

// ErrPoolStopped is returned by Submit after Stop has completed.
type ErrPoolStopped struct{}

func (ErrPoolStopped) Error() string { return "worker: pool is stopped" }

// NewPool builds a pool from config and starts its core workers.
func NewPool(logger *zap.Logger, config PoolConfig) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:  logger.Named("worker." + config.Name),
		config:  config,
		tasks:   make(chan Task, config.QueueSize),
		sem:     make(chan struct{}, config.MaxWorkers),
		ctx:     ctx,
		cancel:  cancel,
		metrics: newPoolMetrics(),
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.running.Store(true)
	for i := 0; i < p.config.CoreWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(task)
		}
	}
}

func (p *Pool) execute(task Task) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	start := time.Now()
	defer func() {
		p.metrics.recordLatency(time.Since(start).Nanoseconds())
		if r := recover(); r != nil {
			atomic.AddInt64(&p.metrics.TasksFailed, 1)
			p.logger.Error("worker task panicked", zap.Any("panic", r))
			return
		}
	}()

	if err := task.Execute(); err != nil {
		atomic.AddInt64(&p.metrics.TasksFailed, 1)
		p.logger.Debug("worker task failed", zap.Error(err))
		return
	}
	atomic.AddInt64(&p.metrics.TasksCompleted, 1)
}

// Submit enqueues task if there's room, otherwise runs it immediately
// on the calling goroutine.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped{}
	}
	atomic.AddInt64(&p.metrics.TasksSubmitted, 1)
	select {
	case p.tasks <- task:
		return nil
	default:
		atomic.AddInt64(&p.metrics.TasksOverflow, 1)
		p.execute(task)
		return nil
	}
}

// SubmitFunc submits a plain function as a task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// Metrics returns the pool's metrics tracker.
func (p *Pool) Metrics() *PoolMetrics { return p.metrics }

// Stop cancels the pool and waits (bounded by timeout) for in-flight
// workers to drain.
func (p *Pool) Stop(timeout time.Duration) error {
	if !p.running.Swap(false) {
		return nil
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return &timeoutError{}
	}
}

type timeoutError struct{}

func (*timeoutError) Error() string { return "worker: shutdown timed out" }
