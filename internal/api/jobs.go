package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/secora/internal/report"
)

// Job states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job tracks one queued scan.
type Job struct {
	ID         string     `json:"id"`
	Target     string     `json:"target"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ReportID   string     `json:"report_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	// ErrorKind classifies Error: invalid_target, unreachable, cancelled or internal.
	ErrorKind string `json:"error_kind,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ScanRequest is the body of scan submissions.
type ScanRequest struct {
	URL string `json:"url"`
}

// JobManager stores jobs and their reports in memory and fans out updates.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	reports     map[string]*report.ScanReport
	subscribers map[chan Job]struct{}
	maxJobs     int // Maximum number of jobs to keep in memory
	dropped     int

	stop      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewJobManager starts a background pruner; Close stops it.
func NewJobManager() *JobManager {
	m := &JobManager{
		jobs:        make(map[string]*Job),
		reports:     make(map[string]*report.ScanReport),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     1000,
		stop:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	go m.cleanupLoop(5 * time.Minute)
	return m
}

// Close stops the pruner and waits for it to exit. Stored jobs stay readable.
func (m *JobManager) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.loopDone
}

func (m *JobManager) CreateJob(target string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:        uuid.NewString(),
		Target:    target,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.broadcast(*job)
	copy := *job
	return &copy
}

// UpdateJob applies update under the lock and returns a copy of the result,
// or nil if id is unknown.
func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	m.broadcast(*job)
	copy := *job
	return &copy
}

func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		copy := *job
		return &copy
	}
	return nil
}

// CompleteJob stores rep and marks the job completed in one step, so
// subscribers never see a completed job without its report.
func (m *JobManager) CompleteJob(id string, rep *report.ScanReport) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	now := time.Now()
	m.reports[id] = rep
	job.Status = StatusCompleted
	job.ReportID = rep.ID
	job.FinishedAt = &now
	m.broadcast(*job)
	copy := *job
	return &copy
}

// Report returns the report of a completed job.
func (m *JobManager) Report(id string) (*report.ScanReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[id]
	return rep, ok
}

// ListJobs returns up to limit jobs, newest first.
func (m *JobManager) ListJobs(limit int) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.jobs) {
		limit = len(m.jobs)
	}
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs[:limit]
}

func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 10)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// DroppedUpdates counts updates skipped because a subscriber was full.
func (m *JobManager) DroppedUpdates() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// broadcast must be called with m.mu held for writing.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
			m.dropped++
		}
	}
}

func (m *JobManager) cleanupLoop(every time.Duration) {
	defer close(m.loopDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.prune()
		}
	}
}

// prune removes the oldest finished jobs, and their reports, above maxJobs.
func (m *JobManager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) <= m.maxJobs {
		return
	}

	type jobWithTime struct {
		id   string
		time time.Time
	}
	var finished []jobWithTime
	for id, job := range m.jobs {
		if !job.Finished() {
			continue
		}
		finishTime := job.CreatedAt
		if job.FinishedAt != nil {
			finishTime = *job.FinishedAt
		}
		finished = append(finished, jobWithTime{id: id, time: finishTime})
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].time.Before(finished[j].time)
	})

	toRemove := len(m.jobs) - m.maxJobs
	if toRemove > len(finished) {
		toRemove = len(finished)
	}
	for i := 0; i < toRemove; i++ {
		delete(m.jobs, finished[i].id)
		delete(m.reports, finished[i].id)
	}
}

// SetMaxJobs configures the maximum number of jobs to retain in memory
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}
