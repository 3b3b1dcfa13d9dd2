package media

import (
	"context"
	"os/exec"
	"strings"
)

// Transcoder extracts the audio track from a downloaded video by invoking
// ffmpeg as a subprocess.
type Transcoder struct {
	path string
}

// NewTranscoder builds a transcoder using the given ffmpeg binary path.
func NewTranscoder(path string) *Transcoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &Transcoder{path: path}
}

// ExtractAudio converts inputPath into an MP3 at outputPath. A non-zero
// exit becomes a ToolError carrying ffmpeg's combined output.
func (t *Transcoder) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, t.path,
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		"-y",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &ToolError{Output: tail(string(output), 512), Err: err}
	}
	return nil
}

// Version reports the installed ffmpeg version line, used by the
// diagnostics endpoint.
func (t *Transcoder) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, t.path, "-version").CombinedOutput()
	if err != nil {
		return "", &ToolError{Output: tail(string(output), 512), Err: err}
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}

// tail keeps the last n bytes of diagnostic output; ffmpeg puts the useful
// part at the end.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
