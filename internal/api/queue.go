package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/report"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

// Scanner runs a single scan.
type Scanner interface {
	Scan(ctx context.Context, rawURL string) (*report.ScanReport, error)
}

// QueueConfig bounds the scan queue.
type QueueConfig struct {
	Workers  int           // Scans running at once (default 2)
	Capacity int           // Jobs waiting for a worker (default 32)
	Timeout  time.Duration // Per-scan timeout (default 3m)
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
}

// ScanQueue executes submitted scans in goroutines, at most Workers at a time.
type ScanQueue struct {
	jobs    *JobManager
	scanner Scanner
	workers chan struct{}
	waiting chan struct{}
	timeout time.Duration
	metrics *telemetry.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in StartJob against closing in Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScanQueue returns a queue storing its jobs in jobs.
func NewScanQueue(jobs *JobManager, scanner Scanner, cfg QueueConfig) *ScanQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ScanQueue{
		jobs:    jobs,
		scanner: scanner,
		workers: make(chan struct{}, cfg.Workers),
		waiting: make(chan struct{}, cfg.Capacity),
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// StartJob validates req and queues a scan. The request context only covers
// submission; the scan itself runs until done, timed out or shut down.
func (q *ScanQueue) StartJob(ctx context.Context, req ScanRequest) (*Job, error) {
	target, err := checker.ParseScanTarget(req.URL)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("%w: shutting down", secerrors.ErrQueueFull)
	}

	select {
	case q.waiting <- struct{}{}:
	default:
		return nil, secerrors.ErrQueueFull
	}

	job := q.jobs.CreateJob(target.String())
	q.wg.Add(1)
	go q.execute(job.ID, target.String())
	return job, nil
}

func (q *ScanQueue) execute(id, target string) {
	defer q.wg.Done()

	select {
	case q.workers <- struct{}{}:
		<-q.waiting
	case <-q.ctx.Done():
		<-q.waiting
		q.fail(id, q.ctx.Err())
		return
	}
	defer func() { <-q.workers }()

	q.metrics.JobStarted()
	defer q.metrics.JobFinished()

	now := time.Now()
	q.jobs.UpdateJob(id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &now
	})

	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	logger := q.logger.With(zap.String("job_id", id), zap.String("target", target))
	logger.Info("scan job started")

	rep, err := q.scanner.Scan(ctx, target)
	if err != nil {
		logger.Warn("scan job failed", zap.Error(err))
		q.fail(id, err)
		return
	}
	q.jobs.CompleteJob(id, rep)
	logger.Info("scan job completed", zap.String("report_id", rep.ID))
}

func (q *ScanQueue) fail(id string, err error) {
	now := time.Now()
	q.jobs.UpdateJob(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = err.Error()
		j.ErrorKind = errorKind(err)
		j.FinishedAt = &now
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, secerrors.ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, secerrors.ErrUnreachable):
		return "unreachable"
	default:
		return "internal"
	}
}

func (q *ScanQueue) GetJob(ctx context.Context, id string) (*Job, error) {
	job := q.jobs.GetJob(id)
	if job == nil {
		return nil, secerrors.ErrJobNotFound
	}
	return job, nil
}

func (q *ScanQueue) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	return q.jobs.ListJobs(limit), nil
}

// GetReport returns the report of job id. It fails with ErrJobNotFound for
// unknown jobs and ErrReportNotReady while the job has no report.
func (q *ScanQueue) GetReport(ctx context.Context, id string) (*report.ScanReport, error) {
	job := q.jobs.GetJob(id)
	if job == nil {
		return nil, secerrors.ErrJobNotFound
	}
	rep, ok := q.jobs.Report(id)
	if !ok {
		return nil, fmt.Errorf("%w: job is %s", ErrReportNotReady, job.Status)
	}
	return rep, nil
}

func (q *ScanQueue) Subscribe() (chan Job, func()) {
	return q.jobs.Subscribe()
}

// Check reports liveness.
func (q *ScanQueue) Check(ctx context.Context) error { return nil }

// Ready fails once Shutdown has been called.
func (q *ScanQueue) Ready(ctx context.Context) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("scan queue is shutting down")
	}
	return nil
}

// Shutdown stops accepting jobs, cancels running scans and waits for them
// to record their outcome or for ctx to expire. The job manager's pruner is
// stopped once every job has finished.
func (q *ScanQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.jobs.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
