package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/pgn-typist/internal/domain"
	"github.com/park285/pgn-typist/internal/metrics"
	"github.com/park285/pgn-typist/internal/store"
	"go.uber.org/zap"
)

type job struct {
	save   *domain.SessionRecord
	delete string
	ack    chan struct{}
}

// persister serializes store writes on one goroutine. Jobs are applied in
// enqueue order, so a flush acknowledges every write queued before it.
type persister struct {
	store   store.Store
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger

	// mu guards stopped; enqueuers hold it shared so close cannot land
	// between the check and the send.
	mu      sync.RWMutex
	queue   chan job
	stop    chan struct{}
	done    chan struct{}
	stopped bool
}

func newPersister(st store.Store, size int, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *persister {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	p := &persister{
		store:   st,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		queue:   make(chan job, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case j := <-p.queue:
			p.apply(j)
		case <-p.stop:
			for {
				select {
				case j := <-p.queue:
					p.apply(j)
				default:
					return
				}
			}
		}
	}
}

func (p *persister) apply(j job) {
	switch {
	case j.save != nil:
		p.write(j.save)
	case j.delete != "":
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.store.Delete(ctx, j.delete); err != nil {
			p.metrics.PersistFailed()
			p.logger.Warn("session_delete_failed", zap.String("session_id", j.delete), zap.Error(err))
		}
		cancel()
	}
	if j.ack != nil {
		close(j.ack)
	}
}

func (p *persister) write(rec *domain.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	start := time.Now()
	err := p.store.Save(ctx, rec)
	p.metrics.PersistObserved(time.Since(start))
	if err != nil {
		p.metrics.PersistFailed()
		p.logger.Warn("session_persist_failed",
			zap.String("session_id", rec.ID),
			zap.Int("moves", len(rec.Moves)),
			zap.Error(err),
		)
	}
}

// save never blocks. A full queue drops the record; the next mutation of the
// session enqueues a complete record again.
func (p *persister) save(rec *domain.SessionRecord) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}
	select {
	case p.queue <- job{save: rec}:
	default:
		p.metrics.PersistDropped()
		p.logger.Warn("session_persist_dropped", zap.String("session_id", rec.ID))
	}
}

func (p *persister) remove(ctx context.Context, id string) error {
	return p.enqueue(ctx, job{delete: id})
}

func (p *persister) flush(ctx context.Context) error {
	ack := make(chan struct{})
	if err := p.enqueue(ctx, job{ack: ack}); err != nil {
		if errors.Is(err, ErrClosed) {
			return p.wait(ctx)
		}
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue blocks until the job is queued. The writer keeps draining while
// the shared lock is held, so a full queue only delays the send.
func (p *persister) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrClosed
	}
	select {
	case p.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops intake; jobs queued before it are still applied.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stop)
	}
	p.mu.Unlock()
	return p.wait(ctx)
}

func (p *persister) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
