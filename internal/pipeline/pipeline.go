package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-webhook-processor/internal/models"
	"media-webhook-processor/internal/tempfiles"
)

// Fetcher downloads remote media.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string, limit int64) ([]byte, error)
	FetchToFile(ctx context.Context, url, path string) (int64, error)
}

// Transcoder extracts audio from a downloaded video file.
type Transcoder interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
}

// Resizer produces thumbnail bytes from original image bytes.
type Resizer interface {
	Resize(data []byte, targetWidth int) ([]byte, int, error)
}

// Uploader stores a thumbnail and returns its public reference.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// RecordStore writes the thumbnail reference back to the post record.
// Zero affected rows means the post is unknown, which is not an error.
type RecordStore interface {
	UpdateThumbnail(ctx context.Context, postID, thumbnailURL string) (int64, error)
}

// Pipeline runs the multi-stage transform for a single post. Stage failures
// are converted into the returned result; nothing escapes Process, not even
// a panic, so one bad post can never take down its job.
type Pipeline struct {
	fetcher    Fetcher
	transcoder Transcoder
	resizer    Resizer
	uploader   Uploader
	records    RecordStore
	tmp        *tempfiles.Manager

	thumbWidth    int
	imageMaxBytes int64
}

// New wires a pipeline from its collaborators.
func New(fetcher Fetcher, transcoder Transcoder, resizer Resizer, uploader Uploader, records RecordStore, tmp *tempfiles.Manager, thumbWidth int, imageMaxBytes int64) *Pipeline {
	return &Pipeline{
		fetcher:       fetcher,
		transcoder:    transcoder,
		resizer:       resizer,
		uploader:      uploader,
		records:       records,
		tmp:           tmp,
		thumbWidth:    thumbWidth,
		imageMaxBytes: imageMaxBytes,
	}
}

// Process runs both media stages for one post and returns its outcome.
// The video and image stages fail independently: a broken transcode still
// lets the thumbnail go out, and vice versa.
func (p *Pipeline) Process(ctx context.Context, jobID string, post models.Post) (result models.PostResult) {
	result = models.PostResult{
		PostID:   post.PostID,
		HasVideo: post.HasVideo(),
		HasImage: post.HasImage(),
	}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("pipeline panic: %v", r)
		}
	}()

	workDir, err := p.tmp.ItemDir(jobID, post.PostID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer p.tmp.Remove(workDir)

	var errs []string

	if post.HasVideo() {
		audio, err := p.processVideo(ctx, post, workDir)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			result.Audio = audio
		}
	}

	if post.HasImage() {
		img, imgErrs := p.processImage(ctx, post)
		result.Image = img
		errs = append(errs, imgErrs...)
	}

	result.Success = len(errs) == 0
	if !result.Success {
		result.Error = strings.Join(errs, "; ")
	}
	return result
}

func (p *Pipeline) processVideo(ctx context.Context, post models.Post, workDir string) (*models.AudioResult, error) {
	videoPath := filepath.Join(workDir, "source.mp4")
	if _, err := p.fetcher.FetchToFile(ctx, post.VideoURL, videoPath); err != nil {
		return nil, fmt.Errorf("video: %w", err)
	}

	filename := fmt.Sprintf("audio_%s.mp3", post.PostID)
	audioPath := filepath.Join(workDir, filename)
	if err := p.transcoder.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, fmt.Errorf("video: %w", err)
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("video: stat audio: %w", err)
	}
	return &models.AudioResult{SizeBytes: info.Size(), Filename: filename}, nil
}

// processImage returns whatever sub-results it managed to produce alongside
// the errors it hit: a storage failure does not undo the resize, and a
// record-update failure does not undo the upload.
func (p *Pipeline) processImage(ctx context.Context, post models.Post) (*models.ImageResult, []string) {
	data, err := p.fetcher.FetchBytes(ctx, post.ImageURL, p.imageMaxBytes)
	if err != nil {
		return nil, []string{fmt.Sprintf("image: %v", err)}
	}

	resized, width, err := p.resizer.Resize(data, p.thumbWidth)
	if err != nil {
		return nil, []string{fmt.Sprintf("image: %v", err)}
	}
	img := &models.ImageResult{
		ResizedSize: int64(len(resized)),
		Width:       width,
	}

	key := fmt.Sprintf("thumb_%s.jpg", post.PostID)
	publicURL, err := p.uploader.Upload(ctx, key, resized, "image/jpeg")
	if err != nil {
		return img, []string{fmt.Sprintf("image: %v", err)}
	}
	img.Upload = &models.UploadResult{Key: key, PublicURL: publicURL}

	affected, err := p.records.UpdateThumbnail(ctx, post.PostID, publicURL)
	if err != nil {
		return img, []string{fmt.Sprintf("image: %v", err)}
	}
	img.RecordUpdate = &models.RecordUpdateResult{Updated: affected > 0, NotFound: affected == 0}
	return img, nil
}
