package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"media-webhook-processor/internal/models"
)

// Registry owns the canonical state of every in-flight and recently
// finished job. All mutations go through its methods; readers always get
// snapshot copies so a status poll never observes a half-applied update.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*models.Job
	evictions map[string]*time.Timer
	retention time.Duration
	seq       atomic.Uint64
	closed    bool
}

// New builds a registry that evicts terminal jobs after retention.
func New(retention time.Duration) *Registry {
	return &Registry{
		jobs:      make(map[string]*models.Job),
		evictions: make(map[string]*time.Timer),
		retention: retention,
	}
}

// Create registers a new processing job and returns its id. Ids combine a
// millisecond timestamp with a process-local sequence so bursts of
// submissions in the same millisecond still mint distinct ids.
func (r *Registry) Create(totalPosts int) string {
	id := fmt.Sprintf("job_%d_%d", time.Now().UnixMilli(), r.seq.Add(1))
	job := &models.Job{
		ID:         id,
		Status:     models.StatusProcessing,
		TotalPosts: totalPosts,
		CreatedAt:  time.Now().UTC(),
		Results:    make([]models.PostResult, 0, totalPosts),
	}
	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()
	return job.ID
}

// Get returns a snapshot of the job, or false if unknown or evicted.
func (r *Registry) Get(id string) (models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return snapshot(job), true
}

// UpdateProgress appends a batch of outcomes and refreshes the derived
// progress fields. Terminal jobs are never mutated.
func (r *Registry) UpdateProgress(id string, processed, failed int, results []models.PostResult, eta *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != models.StatusProcessing {
		return
	}
	job.Processed = processed
	job.Failed = failed
	job.Results = append(job.Results, results...)
	job.ProgressPercent = percent(processed+failed, job.TotalPosts)
	job.EstimatedCompletion = eta
}

// Complete transitions the job to completed and schedules its eviction.
func (r *Registry) Complete(id string, summary models.JobSummary) {
	r.finalize(id, func(job *models.Job) {
		job.Status = models.StatusCompleted
		job.Processed = summary.Processed
		job.Failed = summary.Failed
		job.ProgressPercent = percent(summary.Processed+summary.Failed, job.TotalPosts)
		job.Summary = &summary
	})
}

// Fail transitions the job to failed with the given message and schedules
// its eviction.
func (r *Registry) Fail(id, msg string) {
	r.finalize(id, func(job *models.Job) {
		job.Status = models.StatusFailed
		job.Error = msg
	})
}

func (r *Registry) finalize(id string, apply func(*models.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != models.StatusProcessing {
		return
	}
	apply(job)
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.EstimatedCompletion = nil
	if !r.closed {
		r.evictions[id] = time.AfterFunc(r.retention, func() { r.evict(id) })
	}
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	delete(r.evictions, id)
}

// List returns summaries for every job still held, newest first not
// guaranteed; callers sort if they care.
func (r *Registry) List() []models.JobSummaryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.JobSummaryEntry, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, models.JobSummaryEntry{
			ID:              job.ID,
			Status:          job.Status,
			TotalPosts:      job.TotalPosts,
			Processed:       job.Processed,
			Failed:          job.Failed,
			ProgressPercent: job.ProgressPercent,
			CreatedAt:       job.CreatedAt,
		})
	}
	return out
}

// Close stops all pending eviction timers. Jobs already held stay readable.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.evictions {
		t.Stop()
		delete(r.evictions, id)
	}
}

func snapshot(job *models.Job) models.Job {
	out := *job
	out.Results = append([]models.PostResult(nil), job.Results...)
	if job.EstimatedCompletion != nil {
		eta := *job.EstimatedCompletion
		out.EstimatedCompletion = &eta
	}
	if job.CompletedAt != nil {
		done := *job.CompletedAt
		out.CompletedAt = &done
	}
	if job.Summary != nil {
		sum := *job.Summary
		out.Summary = &sum
	}
	return out
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(float64(done)/float64(total)*100 + 0.5)
}
