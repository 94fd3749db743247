// Package tasks runs email work off the request path: sends, account syncs
// and inbound rule evaluation are queued as units keyed by the row they act
// on and executed by a fixed pool of workers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/metrics"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/rules"
)

// Task names, also used as metric labels
const (
	TaskSend    = "send_email"
	TaskSync    = "sync_account"
	TaskSyncAll = "sync_all_accounts"
	TaskRules   = "process_inbound_rules"
)

const syncMaxRetries = 2

var (
	// ErrQueueFull is returned when no slot is free for a new unit
	ErrQueueFull = errors.New("task queue is full")
	// ErrQueueStopped is returned after Stop
	ErrQueueStopped = errors.New("task queue is stopped")
)

// Sender transmits a recorded email, re-issuing it when it previously failed
type Sender interface {
	Retry(ctx context.Context, emailID uint) (*models.Email, error)
}

// Syncer pulls new mail for one account
type Syncer interface {
	Sync(ctx context.Context, account *models.MailboxAccount, limit int) (int, error)
}

// RuleEvaluator runs the inbound rules for an email
type RuleEvaluator interface {
	Evaluate(ctx context.Context, emailID uint) ([]rules.Outcome, error)
}

// Config holds the queue collaborators and limits
type Config struct {
	Sender     Sender
	Syncer     Syncer
	Rules      RuleEvaluator
	Accounts   repository.AccountRepository
	SyncLogs   repository.SyncLogRepository
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Workers    int
	Size       int
	SyncLimit  int
	MaxRetries int
	RetryDelay time.Duration
}

type unit struct {
	task    string
	id      uint
	attempt int

	// a sync run keeps one log entry and its running count across attempts
	logID uint
	total int
}

func (u unit) key() string {
	return fmt.Sprintf("%s:%d", u.task, u.id)
}

// Queue is an in-process worker pool. A unit that is waiting in the queue,
// running, or waiting out a retry delay is not added again. A failed attempt
// does not hold its worker: the unit is put back on the queue once the delay
// has passed.
type Queue struct {
	sender     Sender
	syncer     Syncer
	rules      RuleEvaluator
	accounts   repository.AccountRepository
	syncLogs   repository.SyncLogRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
	workers    int
	syncLimit  int
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time

	ctx     context.Context
	units   chan unit
	mu      sync.Mutex
	pending map[string]struct{}
	held    map[string]struct{}
	waiting map[string]*delayed
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// delayed is a unit waiting out its retry delay
type delayed struct {
	u     unit
	timer *time.Timer
}

// New creates a Queue; call Start to run its workers
func New(cfg *Config) *Queue {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	size := cfg.Size
	if size <= 0 {
		size = 256
	}
	limit := cfg.SyncLimit
	if limit <= 0 {
		limit = 20
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Queue{
		sender:     cfg.Sender,
		syncer:     cfg.Syncer,
		rules:      cfg.Rules,
		accounts:   cfg.Accounts,
		syncLogs:   cfg.SyncLogs,
		metrics:    cfg.Metrics,
		logger:     log,
		workers:    workers,
		syncLimit:  limit,
		maxRetries: retries,
		retryDelay: delay,
		now:        func() time.Time { return time.Now().UTC() },
		units:      make(chan unit, size),
		pending:    make(map[string]struct{}),
		held:       make(map[string]struct{}),
		waiting:    make(map[string]*delayed),
	}
}

// Start launches the workers. Once ctx is cancelled units waiting out a
// retry delay are abandoned; units already taken by a worker run to
// completion.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	q.ctx = ctx

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	q.logger.Info("task queue started",
		slog.Int("workers", q.workers),
		slog.Int("capacity", cap(q.units)),
	)
}

// Stop refuses new units, abandons the ones waiting out a retry delay, lets
// the workers drain the queue and waits for them
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.units)
	var dropped []unit
	for key, d := range q.waiting {
		if d.timer.Stop() {
			dropped = append(dropped, d.u)
		}
		delete(q.waiting, key)
		delete(q.held, key)
	}
	q.mu.Unlock()

	for _, u := range dropped {
		q.abandon(u, ErrQueueStopped)
	}
	q.wg.Wait()
	q.logger.Info("task queue stopped")
}

// Pending returns the number of units waiting for a worker
func (q *Queue) Pending() int {
	return len(q.units)
}

// EnqueueSend queues transmission of a recorded email
func (q *Queue) EnqueueSend(emailID uint) error {
	return q.enqueue(unit{task: TaskSend, id: emailID})
}

// EnqueueSync queues a sync of one account
func (q *Queue) EnqueueSync(accountID uint) error {
	return q.enqueue(unit{task: TaskSync, id: accountID})
}

// EnqueueSyncAll queues a fan-out of one sync unit per syncable account
func (q *Queue) EnqueueSyncAll() error {
	return q.enqueue(unit{task: TaskSyncAll})
}

// EnqueueRules queues inbound rule evaluation for an email
func (q *Queue) EnqueueRules(emailID uint) error {
	return q.enqueue(unit{task: TaskRules, id: emailID})
}

func (q *Queue) enqueue(u unit) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrQueueStopped
	}
	key := u.key()
	if _, ok := q.pending[key]; ok {
		return nil
	}
	if _, ok := q.held[key]; ok {
		return nil
	}

	select {
	case q.units <- u:
		q.pending[key] = struct{}{}
		q.metrics.QueueDepth(len(q.units))
		return nil
	default:
		q.metrics.TaskDone(u.task, metrics.OutcomeDropped, 0)
		q.logger.Warn("task dropped, queue full",
			slog.String("task", u.task),
			slog.Uint64("id", uint64(u.id)),
		)
		return ErrQueueFull
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for u := range q.units {
		key := u.key()
		q.mu.Lock()
		delete(q.pending, key)
		q.held[key] = struct{}{}
		q.mu.Unlock()
		q.metrics.QueueDepth(len(q.units))

		// a unit handed to a retry stays held until the retry is done
		if !q.run(ctx, u) {
			q.mu.Lock()
			delete(q.held, key)
			q.mu.Unlock()
		}
	}
}

// idle reports whether no unit is queued, running or waiting for a retry
func (q *Queue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units) == 0 && len(q.pending) == 0 && len(q.held) == 0
}

// run executes one attempt of u and reports whether a retry was scheduled
func (q *Queue) run(ctx context.Context, u unit) (retrying bool) {
	defer func() {
		if r := recover(); r != nil {
			q.metrics.TaskDone(u.task, metrics.OutcomeFailure, 0)
			q.logger.Error("task panicked",
				slog.String("task", u.task),
				slog.Uint64("id", uint64(u.id)),
				slog.Any("panic", r),
			)
		}
	}()

	var err error
	switch u.task {
	case TaskSend:
		retrying, err = q.sendAttempt(ctx, u)
	case TaskSync:
		retrying, err = q.syncAttempt(ctx, u)
	case TaskSyncAll:
		err = q.fanOutSync(ctx)
	case TaskRules:
		err = q.ProcessRules(ctx, u.id)
	}
	if err != nil {
		q.logger.Warn("task failed",
			slog.String("task", u.task),
			slog.Uint64("id", uint64(u.id)),
			slog.Any("error", err),
		)
	}
	return retrying
}

func (q *Queue) policy(ctx context.Context, retries int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = q.retryDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// permanent reports errors that another attempt cannot fix
func permanent(err error) bool {
	return apperrors.IsConfiguration(err) ||
		errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, apperrors.ErrInvalidInput)
}

// retryable reports whether a failed attempt of u gets another one
func (q *Queue) retryable(ctx context.Context, u unit, err error, retries int) bool {
	return !permanent(err) && ctx.Err() == nil && u.attempt < retries
}

// retryWait is the delay before the given retry, growing exponentially
func (q *Queue) retryWait(attempt int) time.Duration {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = q.retryDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	wait := exp.NextBackOff()
	for i := 1; i < attempt; i++ {
		wait = exp.NextBackOff()
	}
	return wait
}

// retryLater puts u back on the queue after its retry delay. It reports
// false when the queue is stopped and u was abandoned instead.
func (q *Queue) retryLater(u unit, cause error) bool {
	u.attempt++
	wait := q.retryWait(u.attempt)
	key := u.key()

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.abandon(u, ErrQueueStopped)
		return false
	}
	q.waiting[key] = &delayed{u: u, timer: time.AfterFunc(wait, func() { q.requeue(u) })}
	q.mu.Unlock()

	q.logger.Info("retrying task",
		slog.String("task", u.task),
		slog.Uint64("id", uint64(u.id)),
		slog.Int("attempt", u.attempt),
		slog.Duration("wait", wait),
		slog.Any("error", cause),
	)
	return true
}

func (q *Queue) requeue(u unit) {
	key := u.key()
	q.mu.Lock()
	delete(q.waiting, key)
	cause := ErrQueueStopped
	if !q.stopped {
		if q.ctx != nil && q.ctx.Err() != nil {
			cause = q.ctx.Err()
		} else {
			select {
			case q.units <- u:
				q.pending[key] = struct{}{}
				q.mu.Unlock()
				q.metrics.QueueDepth(len(q.units))
				return
			default:
				cause = ErrQueueFull
			}
		}
	}
	delete(q.held, key)
	q.mu.Unlock()
	q.abandon(u, cause)
}

// abandon gives up on a unit that could not be put back on the queue
func (q *Queue) abandon(u unit, cause error) {
	q.metrics.TaskDone(u.task, metrics.OutcomeFailure, 0)
	q.logger.Warn("task retry abandoned",
		slog.String("task", u.task),
		slog.Uint64("id", uint64(u.id)),
		slog.Int("attempt", u.attempt),
		slog.Any("error", cause),
	)
	if u.task == TaskSync && u.logID != 0 {
		q.closeSyncLog(context.Background(), u.logID, u.total, cause)
	}
}

// sendAttempt transmits an email once. The sender leaves it failed on
// error; a transient failure is retried later under a fresh message id.
// Configuration errors are not retried.
func (q *Queue) sendAttempt(ctx context.Context, u unit) (bool, error) {
	started := time.Now()
	_, err := q.sender.Retry(ctx, u.id)
	switch {
	case err == nil:
		q.metrics.TaskDone(TaskSend, metrics.OutcomeSuccess, time.Since(started))
		return false, nil
	case q.retryable(ctx, u, err, q.maxRetries):
		q.metrics.TaskDone(TaskSend, metrics.OutcomeRetry, time.Since(started))
		return q.retryLater(u, err), nil
	}
	q.metrics.TaskDone(TaskSend, metrics.OutcomeFailure, time.Since(started))
	return false, err
}

// syncAttempt runs one attempt of a queued account sync. The sync log is
// opened by the first attempt and closed by the last.
func (q *Queue) syncAttempt(ctx context.Context, u unit) (bool, error) {
	started := time.Now()
	account, err := q.accounts.GetByID(ctx, u.id)
	if err != nil {
		if u.logID != 0 {
			q.closeSyncLog(ctx, u.logID, u.total, err)
		}
		q.metrics.TaskDone(TaskSync, metrics.OutcomeFailure, time.Since(started))
		return false, err
	}
	if u.logID == 0 {
		entry, err := q.syncLogs.Start(ctx, account.ID, q.now())
		if err != nil {
			q.metrics.TaskDone(TaskSync, metrics.OutcomeFailure, time.Since(started))
			return false, err
		}
		u.logID = entry.ID
	}

	n, err := q.syncer.Sync(ctx, account, q.syncLimit)
	u.total += n
	if err != nil && q.retryable(ctx, u, err, syncMaxRetries) {
		q.metrics.TaskDone(TaskSync, metrics.OutcomeRetry, time.Since(started))
		return q.retryLater(u, err), nil
	}
	return false, q.finishSync(ctx, u.logID, account.ID, u.total, err, started)
}

// SyncAccount syncs one account inline and records the run in its sync log.
// Transport failures are retried a bounded number of times, waiting in the
// caller; the count of emails ingested across attempts is returned even when
// the run fails. Queued syncs go through the workers instead.
func (q *Queue) SyncAccount(ctx context.Context, accountID uint) (int, error) {
	started := time.Now()
	account, err := q.accounts.GetByID(ctx, accountID)
	if err != nil {
		q.metrics.TaskDone(TaskSync, metrics.OutcomeFailure, time.Since(started))
		return 0, err
	}

	entry, err := q.syncLogs.Start(ctx, account.ID, q.now())
	if err != nil {
		q.metrics.TaskDone(TaskSync, metrics.OutcomeFailure, time.Since(started))
		return 0, err
	}

	total := 0
	op := func() error {
		n, err := q.syncer.Sync(ctx, account, q.syncLimit)
		total += n
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		q.metrics.TaskDone(TaskSync, metrics.OutcomeRetry, time.Since(started))
		q.logger.Info("retrying sync",
			slog.Uint64("account_id", uint64(account.ID)),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}
	syncErr := backoff.RetryNotify(op, q.policy(ctx, syncMaxRetries), notify)
	return total, q.finishSync(ctx, entry.ID, account.ID, total, syncErr, started)
}

// finishSync closes the sync log of a run and reports its outcome
func (q *Queue) finishSync(ctx context.Context, logID, accountID uint, total int, syncErr error, started time.Time) error {
	q.closeSyncLog(ctx, logID, total, syncErr)
	if syncErr != nil {
		q.metrics.TaskDone(TaskSync, metrics.OutcomeFailure, time.Since(started))
		return syncErr
	}
	q.metrics.TaskDone(TaskSync, metrics.OutcomeSuccess, time.Since(started))
	q.logger.Info("account synced",
		slog.Uint64("account_id", uint64(accountID)),
		slog.Int("synced", total),
	)
	return nil
}

func (q *Queue) closeSyncLog(ctx context.Context, logID uint, total int, syncErr error) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if syncErr != nil {
		err = q.syncLogs.Fail(ctx, logID, total, syncErr.Error(), q.now())
	} else {
		err = q.syncLogs.Complete(ctx, logID, total, q.now())
	}
	if err != nil {
		q.logger.Error("failed to close sync log", slog.Uint64("sync_log_id", uint64(logID)), slog.Any("error", err))
	}
}

// SyncSummary totals an inline sync of every account
type SyncSummary struct {
	Accounts int
	Synced   int
	Failed   int
}

// SyncAll syncs every active, sync-enabled, pull-capable account inline,
// one after the other. A failing account does not stop the others.
func (q *Queue) SyncAll(ctx context.Context) (SyncSummary, error) {
	var summary SyncSummary
	accounts, err := q.syncable(ctx)
	if err != nil {
		return summary, err
	}
	for _, account := range accounts {
		summary.Accounts++
		n, err := q.SyncAccount(ctx, account.ID)
		summary.Synced += n
		if err != nil {
			summary.Failed++
		}
	}
	return summary, nil
}

func (q *Queue) fanOutSync(ctx context.Context) error {
	started := time.Now()
	accounts, err := q.syncable(ctx)
	if err != nil {
		q.metrics.TaskDone(TaskSyncAll, metrics.OutcomeFailure, time.Since(started))
		return err
	}

	var errs []error
	for _, account := range accounts {
		if err := q.EnqueueSync(account.ID); err != nil {
			errs = append(errs, fmt.Errorf("account %d: %w", account.ID, err))
		}
	}
	if len(errs) > 0 {
		q.metrics.TaskDone(TaskSyncAll, metrics.OutcomeFailure, time.Since(started))
		return errors.Join(errs...)
	}
	q.metrics.TaskDone(TaskSyncAll, metrics.OutcomeSuccess, time.Since(started))
	return nil
}

func (q *Queue) syncable(ctx context.Context) ([]models.MailboxAccount, error) {
	all, err := q.accounts.ListSyncable(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]models.MailboxAccount, 0, len(all))
	for _, account := range all {
		if account.SupportsPull() {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// ProcessRules evaluates the inbound rules for an email and queues the
// replies of matching rules
func (q *Queue) ProcessRules(ctx context.Context, emailID uint) error {
	started := time.Now()
	if q.rules == nil {
		return nil
	}
	outcomes, err := q.rules.Evaluate(ctx, emailID)
	if err != nil {
		q.metrics.TaskDone(TaskRules, metrics.OutcomeFailure, time.Since(started))
		return err
	}

	var errs []error
	for _, out := range outcomes {
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", out.RuleID, out.Err))
			continue
		}
		if out.QueuedEmailID == 0 {
			continue
		}
		if err := q.EnqueueSend(out.QueuedEmailID); err != nil {
			errs = append(errs, fmt.Errorf("rule %d reply %d: %w", out.RuleID, out.QueuedEmailID, err))
		}
	}
	if len(errs) > 0 {
		q.metrics.TaskDone(TaskRules, metrics.OutcomeFailure, time.Since(started))
		return errors.Join(errs...)
	}
	q.metrics.TaskDone(TaskRules, metrics.OutcomeSuccess, time.Since(started))
	return nil
}
