package models

import (
	"time"
)

// Job lifecycle states visible to status polls.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job tracks one webhook submission of posts processed asynchronously.
type Job struct {
	ID                  string       `json:"id"`
	Status              string       `json:"status"`
	TotalPosts          int          `json:"total_posts"`
	Processed           int          `json:"processed"`
	Failed              int          `json:"failed"`
	ProgressPercent     int          `json:"progress_percentage"`
	EstimatedCompletion *time.Time   `json:"estimated_completion,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	Results             []PostResult `json:"results"`
	Summary             *JobSummary  `json:"summary,omitempty"`
	Error               string       `json:"error,omitempty"`
}

// Post is one unit of work inside a submission. Both URLs are optional;
// a post with neither is filtered out before the job is created.
type Post struct {
	PostID   string `json:"post_id"`
	VideoURL string `json:"video_url"`
	ImageURL string `json:"display_url"`
}

// HasVideo reports whether the post carries a video reference.
func (p Post) HasVideo() bool { return p.VideoURL != "" }

// HasImage reports whether the post carries an image reference.
func (p Post) HasImage() bool { return p.ImageURL != "" }

// Empty reports whether the post carries no media at all.
func (p Post) Empty() bool { return !p.HasVideo() && !p.HasImage() }

// PostResult is the immutable outcome of running the pipeline for one post.
type PostResult struct {
	PostID   string       `json:"post_id"`
	Success  bool         `json:"success"`
	HasVideo bool         `json:"has_video"`
	HasImage bool         `json:"has_image"`
	Audio    *AudioResult `json:"audio,omitempty"`
	Image    *ImageResult `json:"image,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// AudioResult describes the extracted audio artifact for a post's video.
type AudioResult struct {
	SizeBytes int64  `json:"size_bytes"`
	Filename  string `json:"filename"`
}

// ImageResult describes the thumbnail produced for a post's image,
// including the independent upload and record-update sub-outcomes.
type ImageResult struct {
	ResizedSize  int64               `json:"resized_size"`
	Width        int                 `json:"width"`
	Upload       *UploadResult       `json:"upload,omitempty"`
	RecordUpdate *RecordUpdateResult `json:"record_update,omitempty"`
}

// UploadResult records a successful object-store upload.
type UploadResult struct {
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
}

// RecordUpdateResult records the outcome of the datastore thumbnail update.
// NotFound means zero rows matched the post id, which is not an error.
type RecordUpdateResult struct {
	Updated  bool `json:"updated"`
	NotFound bool `json:"not_found,omitempty"`
}

// JobSummary aggregates final counts once a job reaches a terminal state.
type JobSummary struct {
	Processed       int           `json:"processed"`
	Failed          int           `json:"failed"`
	VideoProcessed  int           `json:"video_processed"`
	ImagesProcessed int           `json:"images_processed"`
	Duration        time.Duration `json:"duration_ns"`
}

// JobSummaryEntry is the compact per-job view returned by the jobs listing.
type JobSummaryEntry struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	TotalPosts      int       `json:"total_posts"`
	Processed       int       `json:"processed"`
	Failed          int       `json:"failed"`
	ProgressPercent int       `json:"progress_percentage"`
	CreatedAt       time.Time `json:"created_at"`
}
