package e2e

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/logger"
	"convokey/internal/util/memzero"
)

// TopUpConfig bounds the background distribution worker.
type TopUpConfig struct {
	// QueueSize is the number of groups that can wait for top-up.
	QueueSize int `mapstructure:"queue_size"`
	// RatePerSecond limits top-up passes; zero means unlimited.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	// DrainTimeout bounds how long Close waits for accepted passes before
	// discarding them.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// DefaultTopUpConfig returns the settings used when none are configured.
func DefaultTopUpConfig() TopUpConfig {
	return TopUpConfig{QueueSize: 64, RatePerSecond: 20, Burst: 5, DrainTimeout: 5 * time.Second}
}

// TopUpStats counts what the worker has done.
type TopUpStats struct {
	Enqueued  uint64 // passes accepted
	Coalesced uint64 // requests for a group already queued
	Dropped   uint64 // requests refused, or passes discarded at Close
	Completed uint64 // passes that finished without a directory error
	Failed    uint64 // passes aborted by a directory error
	Written   uint64 // rows written
	Skipped   uint64 // members passed over for lack of a published key
}

type topUpJob struct {
	group domain.GroupID
	key   []byte
}

// TopUpWorker wraps a group's key for members that have no row yet. Work
// is best effort: failures are logged and counted, never returned.
type TopUpWorker struct {
	dir     domain.Directory
	log     *zap.Logger
	limiter *rate.Limiter
	jobs    chan topUpJob
	grace   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	queued  map[domain.GroupID]struct{}
	closed  bool
	pending sync.WaitGroup

	enqueued, coalesced, dropped atomic.Uint64
	completed, failed            atomic.Uint64
	written, skipped             atomic.Uint64
}

// NewTopUpWorker starts a worker. Zero fields of cfg take their defaults.
func NewTopUpWorker(dir domain.Directory, cfg TopUpConfig, log *zap.Logger) *TopUpWorker {
	w := newTopUpWorker(dir, cfg, log)
	go w.run()
	return w
}

func newTopUpWorker(dir domain.Directory, cfg TopUpConfig, log *zap.Logger) *TopUpWorker {
	def := DefaultTopUpConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &TopUpWorker{
		dir:     dir,
		log:     logger.OrNop(log).Named("topup"),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		jobs:    make(chan topUpJob, cfg.QueueSize),
		grace:   cfg.DrainTimeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		queued:  make(map[domain.GroupID]struct{}),
	}
	return w
}

// Enqueue schedules a top-up pass for groupID using key. It never blocks:
// it returns false when the queue is full or the worker is closed. A group
// already waiting is not queued twice.
func (w *TopUpWorker) Enqueue(groupID domain.GroupID, key []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.dropped.Add(1)
		return false
	}
	if _, ok := w.queued[groupID]; ok {
		w.coalesced.Add(1)
		return true
	}

	job := topUpJob{group: groupID, key: append([]byte(nil), key...)}
	w.pending.Add(1)
	select {
	case w.jobs <- job:
		w.queued[groupID] = struct{}{}
		w.enqueued.Add(1)
		return true
	default:
		w.pending.Done()
		memzero.Zero(job.key)
		w.dropped.Add(1)
		w.log.Warn("top-up queue full; dropping", zap.String("group_id", groupID.String()))
		return false
	}
}

// Wait blocks until every accepted pass has finished.
func (w *TopUpWorker) Wait() { w.pending.Wait() }

// Close stops accepting work, waits up to the drain timeout for accepted
// passes, then stops the worker and discards what is left. It is idempotent.
func (w *TopUpWorker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	if !w.waitFor(w.grace) {
		w.log.Warn("top-up passes still pending at close; discarding", zap.Duration("waited", w.grace))
	}
	w.cancel()
	<-w.done
}

// waitFor is Wait bounded by d. It reports whether every pass finished.
func (w *TopUpWorker) waitFor(d time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(finished)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		return false
	}
}

// Stats returns a snapshot of the counters.
func (w *TopUpWorker) Stats() TopUpStats {
	return TopUpStats{
		Enqueued:  w.enqueued.Load(),
		Coalesced: w.coalesced.Load(),
		Dropped:   w.dropped.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
		Written:   w.written.Load(),
		Skipped:   w.skipped.Load(),
	}
}

func (w *TopUpWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case job := <-w.jobs:
			// Unqueue before the pass so a request arriving mid-pass
			// schedules another one.
			w.unqueue(job.group)
			w.process(job)
		}
	}
}

// drain discards jobs left after Close.
func (w *TopUpWorker) drain() {
	for {
		select {
		case job := <-w.jobs:
			w.unqueue(job.group)
			w.dropped.Add(1)
			w.finish(job)
		default:
			return
		}
	}
}

func (w *TopUpWorker) unqueue(groupID domain.GroupID) {
	w.mu.Lock()
	delete(w.queued, groupID)
	w.mu.Unlock()
}

func (w *TopUpWorker) finish(job topUpJob) {
	memzero.Zero(job.key)
	w.pending.Done()
}

// process runs one pass. The job must already be unqueued.
func (w *TopUpWorker) process(job topUpJob) {
	defer w.finish(job)

	if err := w.limiter.Wait(w.ctx); err != nil {
		return
	}

	written, skipped, err := w.topUp(w.ctx, job.group, job.key)
	w.written.Add(uint64(written))
	w.skipped.Add(uint64(skipped))
	if err != nil {
		w.failed.Add(1)
		w.log.Warn("top-up failed", zap.String("group_id", job.group.String()), zap.Error(err))
		return
	}
	w.completed.Add(1)
	if written > 0 || skipped > 0 {
		w.log.Debug("top-up pass",
			zap.String("group_id", job.group.String()),
			zap.Int("written", written),
			zap.Int("skipped", skipped),
		)
	}
}

// topUp wraps key for every member that has no row. Members without a
// published key are skipped. Rewrapping for a member that got a row in
// the meantime only replaces it with an equivalent one.
func (w *TopUpWorker) topUp(ctx context.Context, groupID domain.GroupID, key []byte) (written, skipped int, err error) {
	missing, err := w.dir.MembersMissingGroupKey(ctx, groupID)
	if err != nil {
		return 0, 0, err
	}
	if len(missing) == 0 {
		return 0, 0, nil
	}

	rows := make([]domain.GroupKeyRow, 0, len(missing))
	for _, member := range missing {
		rec, ok, err := w.dir.FetchPublicKey(ctx, member)
		if err != nil {
			return 0, skipped, err
		}
		if !ok {
			skipped++
			continue
		}
		wrapped, err := crypto.WrapKey(key, rec.PublicKey)
		if err != nil {
			w.log.Warn("wrap group key for member",
				zap.String("group_id", groupID.String()),
				zap.String("member_id", member.String()),
				zap.Error(err),
			)
			skipped++
			continue
		}
		rows = append(rows, domain.GroupKeyRow{
			GroupID:      groupID,
			TargetUserID: member,
			EncryptedKey: wrapped,
		})
	}
	if len(rows) == 0 {
		return 0, skipped, nil
	}
	if err := w.dir.UpsertGroupKeyRows(ctx, rows); err != nil {
		return 0, skipped, err
	}
	return len(rows), skipped, nil
}
