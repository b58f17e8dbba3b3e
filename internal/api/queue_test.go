package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/khanhnv2901/secora/internal/report"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// stubScanner returns a canned report or error, optionally blocking until
// release is closed or the context ends.
type stubScanner struct {
	err     error
	release chan struct{}
	started chan string
}

func (s *stubScanner) Scan(ctx context.Context, rawURL string) (*report.ScanReport, error) {
	if s.started != nil {
		s.started <- rawURL
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &report.ScanReport{ID: "rep-" + rawURL, Target: rawURL}, nil
}

// newTestJobManager stops the manager's pruner when the test ends.
func newTestJobManager(t *testing.T) *JobManager {
	t.Helper()
	jm := NewJobManager()
	t.Cleanup(jm.Close)
	return jm
}

func waitForStatus(t *testing.T, q *ScanQueue, id, status string) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s", id, status)
	return nil
}

func TestScanQueueCompletesJob(t *testing.T) {
	q := NewScanQueue(newTestJobManager(t), &stubScanner{}, QueueConfig{})
	defer q.Shutdown(context.Background())

	job, err := q.StartJob(context.Background(), ScanRequest{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}

	done := waitForStatus(t, q, job.ID, StatusCompleted)
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Errorf("timestamps not set: %+v", done)
	}

	rep, err := q.GetReport(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if rep.Target != "https://example.com" || done.ReportID != rep.ID {
		t.Errorf("unexpected report %+v for job %+v", rep, done)
	}
}

func TestScanQueueRejectsInvalidTarget(t *testing.T) {
	jm := newTestJobManager(t)
	q := NewScanQueue(jm, &stubScanner{}, QueueConfig{})
	defer q.Shutdown(context.Background())

	_, err := q.StartJob(context.Background(), ScanRequest{URL: "ftp://example.com"})
	if !errors.Is(err, secerrors.ErrInvalidTarget) {
		t.Fatalf("error = %v, want ErrInvalidTarget", err)
	}
	if len(jm.ListJobs(0)) != 0 {
		t.Error("invalid targets must not create jobs")
	}
}

func TestScanQueueRecordsFailure(t *testing.T) {
	scanner := &stubScanner{err: fmt.Errorf("%w: connection refused", secerrors.ErrUnreachable)}
	q := NewScanQueue(newTestJobManager(t), scanner, QueueConfig{})
	defer q.Shutdown(context.Background())

	job, err := q.StartJob(context.Background(), ScanRequest{URL: "http://down.example"})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	failed := waitForStatus(t, q, job.ID, StatusFailed)
	if failed.ErrorKind != "unreachable" {
		t.Errorf("ErrorKind = %q, want unreachable", failed.ErrorKind)
	}

	_, err = q.GetReport(context.Background(), job.ID)
	if !errors.Is(err, ErrReportNotReady) {
		t.Errorf("GetReport error = %v, want ErrReportNotReady", err)
	}
}

func TestScanQueueFull(t *testing.T) {
	scanner := &stubScanner{release: make(chan struct{}), started: make(chan string, 4)}
	q := NewScanQueue(newTestJobManager(t), scanner, QueueConfig{Workers: 1, Capacity: 1})
	defer func() {
		close(scanner.release)
		q.Shutdown(context.Background())
	}()

	ctx := context.Background()
	if _, err := q.StartJob(ctx, ScanRequest{URL: "https://one.example"}); err != nil {
		t.Fatalf("first job: %v", err)
	}
	// Wait until the first job holds the only worker.
	<-scanner.started

	if _, err := q.StartJob(ctx, ScanRequest{URL: "https://two.example"}); err != nil {
		t.Fatalf("second job should wait in the queue: %v", err)
	}
	if _, err := q.StartJob(ctx, ScanRequest{URL: "https://three.example"}); !errors.Is(err, secerrors.ErrQueueFull) {
		t.Fatalf("third job error = %v, want ErrQueueFull", err)
	}
}

func TestScanQueueShutdownCancelsRunningScans(t *testing.T) {
	scanner := &stubScanner{release: make(chan struct{}), started: make(chan string, 1)}
	q := NewScanQueue(newTestJobManager(t), scanner, QueueConfig{Workers: 1})

	job, err := q.StartJob(context.Background(), ScanRequest{URL: "https://slow.example"})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	<-scanner.started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got, _ := q.GetJob(context.Background(), job.ID)
	if got.Status != StatusFailed || got.ErrorKind != "cancelled" {
		t.Errorf("job after shutdown = %+v", got)
	}
	if _, err := q.StartJob(context.Background(), ScanRequest{URL: "https://late.example"}); !errors.Is(err, secerrors.ErrQueueFull) {
		t.Errorf("submission after shutdown error = %v", err)
	}
}

func TestScanQueueGetJobNotFound(t *testing.T) {
	q := NewScanQueue(newTestJobManager(t), &stubScanner{}, QueueConfig{})
	defer q.Shutdown(context.Background())

	if _, err := q.GetJob(context.Background(), "missing"); !errors.Is(err, secerrors.ErrJobNotFound) {
		t.Errorf("GetJob error = %v", err)
	}
	if _, err := q.GetReport(context.Background(), "missing"); !errors.Is(err, secerrors.ErrJobNotFound) {
		t.Errorf("GetReport error = %v", err)
	}
}

func TestScanQueueShutdownWaitsForConcurrentSubmissions(t *testing.T) {
	for round := 0; round < 20; round++ {
		jm := newTestJobManager(t)
		q := NewScanQueue(jm, &stubScanner{}, QueueConfig{Workers: 4, Capacity: 64})

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted []string
		)
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				for n := 0; n < 8; n++ {
					job, err := q.StartJob(context.Background(), ScanRequest{URL: fmt.Sprintf("https://s%d-%d.example", i, n)})
					if err != nil {
						if !errors.Is(err, secerrors.ErrQueueFull) {
							t.Errorf("StartJob error = %v", err)
						}
						continue
					}
					mu.Lock()
					accepted = append(accepted, job.ID)
					mu.Unlock()
				}
			}(i)
		}

		close(start)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := q.Shutdown(ctx); err != nil {
			cancel()
			t.Fatalf("Shutdown: %v", err)
		}
		cancel()

		// Every job accepted before Shutdown returned must have finished.
		mu.Lock()
		for _, id := range accepted {
			job := jm.GetJob(id)
			if job == nil || (job.Status != StatusCompleted && job.Status != StatusFailed) {
				t.Errorf("round %d: job %s not finished after Shutdown: %+v", round, id, job)
			}
		}
		mu.Unlock()
		wg.Wait()

		if _, err := q.StartJob(context.Background(), ScanRequest{URL: "https://late.example"}); !errors.Is(err, secerrors.ErrQueueFull) {
			t.Errorf("submission after shutdown error = %v", err)
		}
		if err := q.Ready(context.Background()); err == nil {
			t.Error("Ready should fail after Shutdown")
		}
	}
}
