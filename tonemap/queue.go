package tonemap

import (
	"context"
	"sync"
	"sync/atomic"
)

// Queue serializes tone-map invocations on a Session through one worker
// goroutine, so that callers can bound how long they wait.
//
// Thread safety: Queue is safe for concurrent use.
type Queue struct {
	s *Session

	// jobs holds submitted work not yet picked up by the worker.
	jobs chan *job

	// done signals the worker to drain and stop.
	done chan struct{}

	// stopped is closed once the worker has exited.
	stopped chan struct{}

	wg        sync.WaitGroup
	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type job struct {
	ctx context.Context
	buf *Buffer
	req Request

	mu        sync.Mutex
	abandoned bool
	res       chan result
}

type result struct {
	out *Buffer
	err error
}

// DefaultQueueDepth is the number of jobs that may wait when NewQueue is
// given a depth of 0.
const DefaultQueueDepth = 4

// NewQueue starts a worker that runs tone maps on s one at a time. The
// queue owns s from now on.
func NewQueue(s *Session, depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	q := &Queue{
		s:       s,
		jobs:    make(chan *job, depth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	q.running.Store(true)
	q.wg.Add(1)
	go q.worker()
	go func() {
		q.wg.Wait()
		close(q.stopped)
	}()
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			q.drain()
			return
		case j := <-q.jobs:
			q.run(j)
		}
	}
}

// drain runs whatever was queued before Close.
func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			q.run(j)
		default:
			return
		}
	}
}

func (q *Queue) run(j *job) {
	j.mu.Lock()
	skip := j.abandoned || j.ctx.Err() != nil
	j.mu.Unlock()
	if skip {
		j.res <- result{err: j.ctx.Err()}
		return
	}

	out, err := q.s.ToneMap(j.ctx, j.buf, j.req)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.abandoned {
		if out != nil {
			if cerr := out.Close(); cerr != nil {
				slogger().Warn("tonemap: close abandoned result", "err", cerr)
			}
		}
		return
	}
	j.res <- result{out, err}
}

// ToneMap submits a tone map and waits for it. If ctx ends first, ctx.Err()
// is returned: a job that has not started is dropped, and the result of a
// running one is closed when it completes.
func (q *Queue) ToneMap(ctx context.Context, buf *Buffer, req Request) (*Buffer, error) {
	if !q.running.Load() {
		return nil, ErrSessionClosed
	}
	j := &job{ctx: ctx, buf: buf, req: req, res: make(chan result, 1)}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrSessionClosed
	}

	select {
	case r := <-j.res:
		return r.out, r.err
	case <-ctx.Done():
		q.abandon(j)
		return nil, ctx.Err()
	case <-q.stopped:
		// The job may have been enqueued after the final drain.
		select {
		case r := <-j.res:
			return r.out, r.err
		default:
			return nil, ErrSessionClosed
		}
	}
}

// abandon hands responsibility for j's result to the worker. A result
// already delivered is closed here.
func (q *Queue) abandon(j *job) {
	j.mu.Lock()
	j.abandoned = true
	j.mu.Unlock()
	select {
	case r := <-j.res:
		if r.out != nil {
			if err := r.out.Close(); err != nil {
				slogger().Warn("tonemap: close abandoned result", "err", err)
			}
		}
	default:
	}
}

// Close runs queued jobs, stops the worker and closes the session.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.running.Store(false)
		close(q.done)
		q.wg.Wait()
		q.closeErr = q.s.Close()
	})
	return q.closeErr
}

// Session returns the session the queue drives.
func (q *Queue) Session() *Session { return q.s }
