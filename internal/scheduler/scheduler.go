package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"media-webhook-processor/internal/estimate"
	"media-webhook-processor/internal/models"
	"media-webhook-processor/internal/registry"
	"media-webhook-processor/internal/telemetry"
)

// Validation failures surfaced synchronously at submission time.
var (
	ErrNoPosts         = errors.New("no posts provided")
	ErrNoEligiblePosts = errors.New("no posts carry a video or image reference")
)

// ItemProcessor executes the media pipeline for one post.
type ItemProcessor interface {
	Process(ctx context.Context, jobID string, post models.Post) models.PostResult
}

// PressureSignal reports elevated memory pressure; the batch loop pauses
// between batches while it is raised.
type PressureSignal interface {
	UnderPressure() bool
}

// Receipt is the immediate acknowledgment returned to the submitter. Its
// shape is identical whether the job was admitted or queued.
type Receipt struct {
	JobID      string `json:"job_id"`
	TotalPosts int    `json:"total_posts"`
	Queued     bool   `json:"-"`
	StatusPath string `json:"status_url"`
}

type queuedJob struct {
	id    string
	posts []models.Post
}

// Scheduler admits jobs up to a concurrency bound, queues the overflow in
// arrival order, and drives each admitted job through sequential batches of
// concurrently processed posts.
type Scheduler struct {
	registry  *registry.Registry
	processor ItemProcessor
	pressure  PressureSignal
	estimator estimate.Estimator

	batchSize     int
	maxConcurrent int
	throttlePause time.Duration

	mu     sync.Mutex
	active int
	queue  []queuedJob
	wg     sync.WaitGroup
}

// New builds a scheduler. pressure may be nil when throttling is not wanted.
func New(reg *registry.Registry, proc ItemProcessor, pressure PressureSignal, est estimate.Estimator, batchSize, maxConcurrent int, throttlePause time.Duration) *Scheduler {
	if batchSize <= 0 {
		batchSize = 4
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 6
	}
	return &Scheduler{
		registry:      reg,
		processor:     proc,
		pressure:      pressure,
		estimator:     est,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		throttlePause: throttlePause,
	}
}

// Submit validates and admits a submission, returning its receipt before any
// per-post work begins. Posts without media are filtered out and never
// counted. When all slots are busy the job waits in FIFO order; the caller
// cannot tell the difference from the response.
func (s *Scheduler) Submit(posts []models.Post) (Receipt, error) {
	if len(posts) == 0 {
		return Receipt{}, ErrNoPosts
	}
	eligible := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if !p.Empty() {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return Receipt{}, ErrNoEligiblePosts
	}

	id := s.registry.Create(len(eligible))
	telemetry.JobsSubmitted.Inc()

	s.mu.Lock()
	queued := s.active >= s.maxConcurrent
	if queued {
		s.queue = append(s.queue, queuedJob{id: id, posts: eligible})
		telemetry.JobsQueued.Inc()
		telemetry.QueuedJobsGauge.Set(float64(len(s.queue)))
	} else {
		s.active++
		telemetry.ActiveJobsGauge.Set(float64(s.active))
		s.start(id, eligible)
	}
	s.mu.Unlock()

	if queued {
		log.Printf("scheduler: job %s queued (%d waiting)", id, s.QueueDepth())
	} else {
		log.Printf("scheduler: job %s admitted with %d posts", id, len(eligible))
	}

	return Receipt{
		JobID:      id,
		TotalPosts: len(eligible),
		Queued:     queued,
		StatusPath: "/api/job-status/" + id,
	}, nil
}

// ActiveJobs returns how many jobs currently hold a slot.
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// QueueDepth returns how many jobs are waiting for a slot.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Wait blocks until every admitted job has finished. Used on shutdown and
// in tests; new submissions may still come in while waiting.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// start must be called with s.mu held.
func (s *Scheduler) start(id string, posts []models.Post) {
	s.wg.Add(1)
	go s.runJob(id, posts)
}

func (s *Scheduler) runJob(id string, posts []models.Post) {
	defer s.wg.Done()
	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: job %s panicked: %v", id, r)
			s.registry.Fail(id, fmt.Sprintf("job aborted: %v", r))
			telemetry.JobsFailed.Inc()
		}
	}()

	s.processBatches(id, posts)
}

// release frees the slot and, when the queue is non-empty, admits its head.
// A queued job runs the full batch pipeline exactly as if it had been
// admitted immediately.
func (s *Scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if len(s.queue) > 0 && s.active < s.maxConcurrent {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.active++
		log.Printf("scheduler: admitting queued job %s (%d still waiting)", next.id, len(s.queue))
		s.start(next.id, next.posts)
	}
	telemetry.ActiveJobsGauge.Set(float64(s.active))
	telemetry.QueuedJobsGauge.Set(float64(len(s.queue)))
}

// processBatches partitions posts into consecutive batches of at most
// batchSize, runs each batch with full internal concurrency, and records
// outcomes after every batch so polls see steady progress.
func (s *Scheduler) processBatches(jobID string, posts []models.Post) {
	started := time.Now()
	ctx := context.Background()

	var processed, failed, videos, images int
	for i := 0; i < len(posts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(posts) {
			end = len(posts)
		}
		batch := posts[i:end]

		results := make([]models.PostResult, len(batch))
		var wg sync.WaitGroup
		for j, post := range batch {
			wg.Add(1)
			go func(j int, post models.Post) {
				defer wg.Done()
				// The pipeline absorbs its own panics; this recover covers
				// processors that let one escape, so a single post can never
				// crash the process.
				defer func() {
					if r := recover(); r != nil {
						results[j] = models.PostResult{
							PostID:   post.PostID,
							HasVideo: post.HasVideo(),
							HasImage: post.HasImage(),
							Error:    fmt.Sprintf("post aborted: %v", r),
						}
					}
				}()
				results[j] = s.processor.Process(ctx, jobID, post)
			}(j, post)
		}
		wg.Wait()

		for _, res := range results {
			if res.Success {
				processed++
				telemetry.PostsProcessed.Inc()
			} else {
				failed++
				telemetry.PostsFailed.Inc()
			}
			if res.Audio != nil {
				videos++
			}
			// A partial image result (resize done, upload or record update
			// failed) does not count as a processed image.
			if res.Image != nil && res.Image.RecordUpdate != nil {
				images++
			}
		}

		_, eta := s.estimator.Estimate(processed, failed, len(posts))
		s.registry.UpdateProgress(jobID, processed, failed, results, eta)

		if end < len(posts) && s.pressure != nil && s.pressure.UnderPressure() {
			log.Printf("scheduler: job %s pausing %s under memory pressure", jobID, s.throttlePause)
			time.Sleep(s.throttlePause)
		}
	}

	s.registry.Complete(jobID, models.JobSummary{
		Processed:       processed,
		Failed:          failed,
		VideoProcessed:  videos,
		ImagesProcessed: images,
		Duration:        time.Since(started),
	})
	telemetry.JobsCompleted.Inc()
	log.Printf("scheduler: job %s completed processed=%d failed=%d in %s", jobID, processed, failed, time.Since(started).Round(time.Millisecond))
}
