package tempfiles

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Manager hands out per-item working directories under a shared base and
// reclaims whatever pipelines leave behind. Each directory is owned by
// exactly one pipeline invocation, so no locking is needed beyond the
// filesystem's own atomicity.
type Manager struct {
	base string
}

// New creates the base directory if needed.
func New(base string) (*Manager, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create temp base %s: %w", base, err)
	}
	return &Manager{base: base}, nil
}

// Base returns the shared temp directory.
func (m *Manager) Base() string { return m.base }

// ItemDir allocates a fresh working directory for one post of one job.
// The uuid suffix keeps reruns of the same post id from colliding.
func (m *Manager) ItemDir(jobID, postID string) (string, error) {
	dir := filepath.Join(m.base, fmt.Sprintf("%s_%s_%s", jobID, sanitize(postID), uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create item dir: %w", err)
	}
	return dir, nil
}

// Remove deletes a working directory. Errors are logged, never propagated:
// removal of an already-gone directory is a no-op.
func (m *Manager) Remove(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("tempfiles: remove %s: %v", dir, err)
	}
}

// Sweep deletes entries in the base directory older than maxAge, reclaiming
// artifacts orphaned by crashed or aborted pipeline runs. Returns the number
// of entries removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(m.base)
	if err != nil {
		log.Printf("tempfiles: sweep read %s: %v", m.base, err)
		return 0
	}
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.base, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("tempfiles: sweep remove %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("tempfiles: swept %d stale entries from %s", removed, m.base)
	}
	return removed
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
