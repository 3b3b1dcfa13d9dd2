package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"media-webhook-processor/internal/models"
	"media-webhook-processor/internal/tempfiles"
)

type fakeFetcher struct {
	imageData []byte
	videoErr  error
	imageErr  error
}

func (f *fakeFetcher) FetchBytes(_ context.Context, _ string, _ int64) ([]byte, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.imageData, nil
}

func (f *fakeFetcher) FetchToFile(_ context.Context, _ string, path string) (int64, error) {
	if f.videoErr != nil {
		return 0, f.videoErr
	}
	data := []byte("fake video bytes")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type fakeTranscoder struct {
	err   error
	audio []byte
}

func (f *fakeTranscoder) ExtractAudio(_ context.Context, _ string, outputPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, f.audio, 0o644)
}

type fakeResizer struct {
	err   error
	out   []byte
	width int
}

func (f *fakeResizer) Resize(_ []byte, _ int) ([]byte, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.out, f.width, nil
}

type fakeUploader struct {
	err  error
	keys []string
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type fakeRecords struct {
	err      error
	affected int64
}

func (f *fakeRecords) UpdateThumbnail(_ context.Context, _, _ string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.affected, nil
}

func newTestPipeline(t *testing.T, fetcher Fetcher, trans Transcoder, res Resizer, up Uploader, rec RecordStore) (*Pipeline, *tempfiles.Manager) {
	t.Helper()
	tmp, err := tempfiles.New(t.TempDir())
	if err != nil {
		t.Fatalf("temp manager: %v", err)
	}
	return New(fetcher, trans, res, up, rec, tmp, 56, 1024*1024), tmp
}

func assertTempEmpty(t *testing.T, tmp *tempfiles.Manager) {
	t.Helper()
	entries, err := os.ReadDir(tmp.Base())
	if err != nil {
		t.Fatalf("read temp base: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty temp dir after pipeline, found %d entries", len(entries))
	}
}

func TestProcessVideoAndImage(t *testing.T) {
	up := &fakeUploader{}
	p, tmp := newTestPipeline(t,
		&fakeFetcher{imageData: []byte("img")},
		&fakeTranscoder{audio: []byte("mp3 data")},
		&fakeResizer{out: []byte("thumb"), width: 56},
		up,
		&fakeRecords{affected: 1},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{
		PostID:   "a",
		VideoURL: "https://example.com/v.mp4",
		ImageURL: "https://example.com/i.jpg",
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if !res.HasVideo || !res.HasImage {
		t.Fatalf("expected both media flags set: %+v", res)
	}
	if res.Audio == nil || res.Audio.SizeBytes != int64(len("mp3 data")) || res.Audio.Filename != "audio_a.mp3" {
		t.Fatalf("unexpected audio result: %+v", res.Audio)
	}
	if res.Image == nil || res.Image.ResizedSize != int64(len("thumb")) || res.Image.Width != 56 {
		t.Fatalf("unexpected image result: %+v", res.Image)
	}
	if res.Image.Upload == nil || res.Image.Upload.Key != "thumb_a.jpg" {
		t.Fatalf("unexpected upload result: %+v", res.Image.Upload)
	}
	if res.Image.RecordUpdate == nil || !res.Image.RecordUpdate.Updated {
		t.Fatalf("unexpected record update: %+v", res.Image.RecordUpdate)
	}
	if len(up.keys) != 1 {
		t.Fatalf("expected exactly one upload, got %d", len(up.keys))
	}
	assertTempEmpty(t, tmp)
}

func TestProcessImageOnlySkipsVideoStage(t *testing.T) {
	p, tmp := newTestPipeline(t,
		&fakeFetcher{imageData: []byte("img")},
		&fakeTranscoder{err: errors.New("must not run")},
		&fakeResizer{out: []byte("thumb"), width: 56},
		&fakeUploader{},
		&fakeRecords{affected: 1},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{PostID: "b", ImageURL: "https://example.com/i.jpg"})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Audio != nil || res.HasVideo {
		t.Fatalf("video stage should not have run: %+v", res)
	}
	if res.Image == nil {
		t.Fatal("expected image result")
	}
	assertTempEmpty(t, tmp)
}

func TestProcessVideoFailureStillRunsImageStage(t *testing.T) {
	p, tmp := newTestPipeline(t,
		&fakeFetcher{imageData: []byte("img")},
		&fakeTranscoder{err: errors.New("exit status 1: codec missing")},
		&fakeResizer{out: []byte("thumb"), width: 56},
		&fakeUploader{},
		&fakeRecords{affected: 1},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{
		PostID:   "c",
		VideoURL: "https://example.com/v.mp4",
		ImageURL: "https://example.com/i.jpg",
	})

	if res.Success {
		t.Fatal("expected failure from the video stage")
	}
	if res.Audio != nil {
		t.Fatalf("expected no audio result, got %+v", res.Audio)
	}
	if res.Image == nil || res.Image.Upload == nil {
		t.Fatalf("image stage should have completed despite video failure: %+v", res.Image)
	}
	if !strings.Contains(res.Error, "codec missing") {
		t.Fatalf("error should carry the transcode failure: %q", res.Error)
	}
	assertTempEmpty(t, tmp)
}

func TestProcessUploadFailureKeepsResizeResult(t *testing.T) {
	p, tmp := newTestPipeline(t,
		&fakeFetcher{imageData: []byte("img")},
		&fakeTranscoder{},
		&fakeResizer{out: []byte("thumb"), width: 56},
		&fakeUploader{err: errors.New("bucket unavailable")},
		&fakeRecords{affected: 1},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{PostID: "d", ImageURL: "https://example.com/i.jpg"})
	if res.Success {
		t.Fatal("expected failure from the upload step")
	}
	if res.Image == nil || res.Image.ResizedSize == 0 {
		t.Fatalf("resize result should survive an upload failure: %+v", res.Image)
	}
	if res.Image.Upload != nil || res.Image.RecordUpdate != nil {
		t.Fatalf("later steps should not report success: %+v", res.Image)
	}
	assertTempEmpty(t, tmp)
}

func TestProcessRecordNotFoundIsNotAnError(t *testing.T) {
	p, tmp := newTestPipeline(t,
		&fakeFetcher{imageData: []byte("img")},
		&fakeTranscoder{},
		&fakeResizer{out: []byte("thumb"), width: 56},
		&fakeUploader{},
		&fakeRecords{affected: 0},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{PostID: "e", ImageURL: "https://example.com/i.jpg"})
	if !res.Success {
		t.Fatalf("zero affected rows must not fail the post: %q", res.Error)
	}
	if res.Image.RecordUpdate == nil || res.Image.RecordUpdate.Updated || !res.Image.RecordUpdate.NotFound {
		t.Fatalf("expected a not-found record outcome: %+v", res.Image.RecordUpdate)
	}
	assertTempEmpty(t, tmp)
}

type panickingResizer struct{}

func (panickingResizer) Resize([]byte, int) ([]byte, int, error) { panic("resizer bug") }

func TestProcessConvertsPanicIntoFailedOutcome(t *testing.T) {
	p, tmp := newTestPipeline(t,
		&fakeFetcher{imageData: []byte("img")},
		&fakeTranscoder{},
		panickingResizer{},
		&fakeUploader{},
		&fakeRecords{},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{PostID: "f", ImageURL: "https://example.com/i.jpg"})
	if res.Success {
		t.Fatal("expected a failed outcome from the panic")
	}
	if !strings.Contains(res.Error, "resizer bug") {
		t.Fatalf("error should carry the panic message: %q", res.Error)
	}
	assertTempEmpty(t, tmp)
}

func TestProcessDownloadFailureCleansUp(t *testing.T) {
	p, tmp := newTestPipeline(t,
		&fakeFetcher{videoErr: errors.New("status 403"), imageErr: errors.New("status 403")},
		&fakeTranscoder{},
		&fakeResizer{out: []byte("thumb"), width: 56},
		&fakeUploader{},
		&fakeRecords{},
	)

	res := p.Process(context.Background(), "job_1_1", models.Post{
		PostID:   "g",
		VideoURL: "https://example.com/v.mp4",
		ImageURL: "https://example.com/i.jpg",
	})
	if res.Success {
		t.Fatal("expected failure when both downloads fail")
	}
	if res.Audio != nil || res.Image != nil {
		t.Fatalf("no sub-results expected: %+v", res)
	}
	assertTempEmpty(t, tmp)
}
