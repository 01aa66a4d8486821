package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/journal"
	"github.com/sherry5707/Messaging/internal/metrics"
	"github.com/sherry5707/Messaging/internal/params"
	"github.com/sherry5707/Messaging/internal/store"
	"go.uber.org/zap"
)

// Journal persists accepted commands until they have run.
type Journal interface {
	Append(kind string, ps *params.Set) (string, error)
	Remove(key string) error
	Pending() ([]journal.Record, []string, error)
}

// Publisher receives change hints after commit.
type Publisher interface {
	Publish(bus.Event)
}

// FailureFunc receives the error of a command whose transactional step
// failed. It runs on the worker goroutine and must not block.
type FailureFunc func(Command, error)

// Config tunes the executor.
type Config struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	DeferredWorkers int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBackoff: 50 * time.Millisecond, DeferredWorkers: 4}
}

type outcome struct {
	result Result
	err    error
}

type job struct {
	cmd       Command
	key       string
	onFailure FailureFunc
	done      chan outcome
}

// Executor runs transactional steps one at a time in submission order and
// hands deferred steps to a bounded pool.
type Executor struct {
	db      *store.DB
	pub     Publisher
	journal Journal
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time
	attempt func(context.Context, Command) (Result, *Changes, error)

	mu       sync.Mutex
	queue    []*job
	started  bool
	stopped  bool
	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}

	deferredSem chan struct{}

	// inflight counts dispatched deferred steps; idle is closed whenever it
	// drops to zero.
	deferredMu sync.Mutex
	inflight   int
	idle       chan struct{}
}

// NewExecutor creates an executor. A nil journal disables durability.
func NewExecutor(db *store.DB, pub Publisher, j Journal, cfg Config, logger *zap.Logger) *Executor {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.DeferredWorkers <= 0 {
		cfg.DeferredWorkers = def.DeferredWorkers
	}
	e := &Executor{
		db:          db,
		pub:         pub,
		journal:     j,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
		finished:    make(chan struct{}),
		deferredSem: make(chan struct{}, cfg.DeferredWorkers),
	}
	e.attempt = e.runOnce
	return e
}

// Start replays journaled commands ahead of anything submitted later, then
// starts the worker. It returns the number of commands replayed.
func (e *Executor) Start(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return 0, errors.New("executor already started")
	}
	e.started = true
	e.mu.Unlock()

	replayed, err := e.replay()
	if err != nil {
		close(e.finished)
		return 0, err
	}
	go e.loop(context.WithoutCancel(ctx))
	return replayed, nil
}

func (e *Executor) replay() (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	records, bad, err := e.journal.Pending()
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}
	for _, key := range bad {
		e.logger.Warn("dropping unreadable journal record", zap.String("key", key))
		_ = e.journal.Remove(key)
	}

	jobs := make([]*job, 0, len(records))
	for _, r := range records {
		kind, err := ParseKind(r.Kind)
		var cmd Command
		if err == nil {
			cmd, err = FromParams(kind, r.Params)
		}
		if err != nil {
			e.logger.Warn("dropping invalid journal record", zap.String("key", r.Key), zap.Error(err))
			_ = e.journal.Remove(r.Key)
			continue
		}
		jobs = append(jobs, &job{cmd: cmd, key: r.Key})
	}

	e.mu.Lock()
	// Commands submitted while the journal was read are already queued.
	queued := make(map[string]bool, len(e.queue))
	for _, j := range e.queue {
		queued[j.key] = true
	}
	jobs = slices.DeleteFunc(jobs, func(j *job) bool { return queued[j.key] })
	e.queue = append(jobs, e.queue...)
	metrics.QueueDepth.Set(float64(len(e.queue)))
	e.mu.Unlock()

	if len(jobs) > 0 {
		metrics.ReplayedTotal.Add(float64(len(jobs)))
		e.logger.Info("replaying journaled commands", zap.Int("count", len(jobs)))
		e.signal()
	}
	return len(jobs), nil
}

// Submit validates cmd, records it in the journal and queues it. It never
// waits for execution. Validation errors are returned here; failures of the
// transactional step go to onFailure, or to the log when onFailure is nil.
func (e *Executor) Submit(cmd Command, onFailure FailureFunc) error {
	return e.submit(cmd, onFailure, nil)
}

// SubmitWait submits cmd and waits for its transactional step. Giving up on
// ctx does not cancel the command.
func (e *Executor) SubmitWait(ctx context.Context, cmd Command) (Result, error) {
	done := make(chan outcome, 1)
	if err := e.submit(cmd, nil, done); err != nil {
		return Result{}, err
	}
	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Executor) submit(cmd Command, onFailure FailureFunc, done chan outcome) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	cmd.Params = cmd.Params.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	j := &job{cmd: cmd, onFailure: onFailure, done: done}
	if e.journal != nil {
		key, err := e.journal.Append(string(cmd.Kind), cmd.Params)
		if err != nil {
			return fmt.Errorf("journal %s: %w", cmd.Kind, err)
		}
		j.key = key
	}
	e.queue = append(e.queue, j)
	metrics.QueueDepth.Set(float64(len(e.queue)))
	e.signal()
	return nil
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued commands.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Stop finishes the command in progress and stops the worker. Commands still
// queued stay in the journal for the next start. Stop then waits for
// running deferred steps until ctx expires.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	started := e.started
	left := len(e.queue)
	e.mu.Unlock()

	close(e.quit)
	if started {
		select {
		case <-e.finished:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if left > 0 {
		e.logger.Info("executor stopped with queued commands", zap.Int("queued", left))
	}
	return e.WaitDeferred(ctx)
}

func (e *Executor) loop(ctx context.Context) {
	defer close(e.finished)
	for {
		j, ok := e.next()
		if !ok {
			return
		}
		e.run(ctx, j)
	}
}

func (e *Executor) next() (*job, bool) {
	for {
		select {
		case <-e.quit:
			return nil, false
		default:
		}
		e.mu.Lock()
		if len(e.queue) > 0 {
			j := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			metrics.QueueDepth.Set(float64(len(e.queue)))
			e.mu.Unlock()
			return j, true
		}
		e.mu.Unlock()

		select {
		case <-e.wake:
		case <-e.quit:
			return nil, false
		}
	}
}

func (e *Executor) run(ctx context.Context, j *job) {
	start := time.Now()
	res, changes, err := e.runWithRetry(ctx, j.cmd)
	metrics.CommandDuration.WithLabelValues(string(j.cmd.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CommandsTotal.WithLabelValues(string(j.cmd.Kind), outcomeLabel(err)).Inc()
		e.forget(j)
		e.logger.Error("command failed", zap.String("kind", string(j.cmd.Kind)), zap.Error(err))
		if j.onFailure != nil {
			j.onFailure(j.cmd, err)
		}
		if j.done != nil {
			j.done <- outcome{err: err}
		}
		return
	}

	label := "ok"
	if res.NoOp {
		label = "noop"
	}
	metrics.CommandsTotal.WithLabelValues(string(j.cmd.Kind), label).Inc()

	for _, evt := range changes.Events() {
		metrics.ChangesPublished.WithLabelValues(evt.Topic).Inc()
		if e.pub != nil {
			e.pub.Publish(evt)
		}
	}
	e.forget(j)
	e.dispatchDeferred(ctx, j.cmd.Kind, changes.Deferred())

	if j.done != nil {
		j.done <- outcome{result: res}
	}
}

// forget removes a finished command from the journal. A crash before this
// point replays the command; every kind is a no-op on its second run or
// fails the same way again.
func (e *Executor) forget(j *job) {
	if e.journal == nil || j.key == "" {
		return
	}
	if err := e.journal.Remove(j.key); err != nil {
		e.logger.Warn("failed to remove journal record", zap.String("key", j.key), zap.Error(err))
	}
}

func (e *Executor) runWithRetry(ctx context.Context, cmd Command) (Result, *Changes, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.CommandRetries.WithLabelValues(string(cmd.Kind)).Inc()
			e.logger.Warn("retrying command",
				zap.String("kind", string(cmd.Kind)),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			time.Sleep(time.Duration(attempt) * e.cfg.RetryBackoff)
		}
		res, changes, err := e.attempt(ctx, cmd)
		if err == nil {
			return res, changes, nil
		}
		if !IsTransient(err) {
			return Result{}, nil, err
		}
		lastErr = err
	}
	return Result{}, nil, &TransientStoreError{Err: lastErr}
}

func (e *Executor) runOnce(ctx context.Context, cmd Command) (Result, *Changes, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return Result{}, nil, err
	}
	changes := newChanges()
	res, err := cmd.execute(ctx, &env{tx: tx, changes: changes, logger: e.logger, now: e.now})
	if err != nil {
		_ = tx.Rollback()
		return Result{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, nil, fmt.Errorf("commit %s: %w", cmd.Kind, err)
	}
	return res, changes, nil
}

func (e *Executor) dispatchDeferred(ctx context.Context, kind Kind, steps []Deferred) {
	for _, step := range steps {
		e.deferredStarted()
		go func() {
			defer e.deferredDone()
			e.deferredSem <- struct{}{}
			defer func() { <-e.deferredSem }()

			if err := step.Run(ctx, e.db); err != nil {
				metrics.DeferredFailures.WithLabelValues(step.Name).Inc()
				e.logger.Error("deferred step failed",
					zap.Error(&DeferredWorkError{Kind: kind, Step: step.Name, Err: err}))
			}
		}()
	}
}

func (e *Executor) deferredStarted() {
	e.deferredMu.Lock()
	defer e.deferredMu.Unlock()
	if e.inflight == 0 {
		e.idle = make(chan struct{})
	}
	e.inflight++
}

func (e *Executor) deferredDone() {
	e.deferredMu.Lock()
	defer e.deferredMu.Unlock()
	e.inflight--
	if e.inflight == 0 {
		close(e.idle)
	}
}

// WaitDeferred blocks until no deferred step is running or ctx expires. It
// may be called while commands are still being executed.
func (e *Executor) WaitDeferred(ctx context.Context) error {
	e.deferredMu.Lock()
	if e.inflight == 0 {
		e.deferredMu.Unlock()
		return nil
	}
	idle := e.idle
	e.deferredMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrMissingEntity):
		return "missing_entity"
	case IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
