package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is a finished recording on disk. It is an opaque handle for
// callers: read it with ReadAll, release it with Discard.
type Artifact struct {
	// ID is unique per recording.
	ID string

	// Path is the location of the WAV file.
	Path string

	// Format is the PCM format of the payload.
	Format Format

	// Size is the PCM payload size in bytes (excluding the header).
	Size int
}

// Duration returns the length of the recorded audio.
func (a *Artifact) Duration() time.Duration {
	return a.Format.Duration(a.Size)
}

// ReadAll returns the complete WAV file.
func (a *Artifact) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("audio: read artifact %s: %w", a.ID, err)
	}
	return data, nil
}

// Discard deletes the file. Discarding an artifact that is already gone is
// not an error.
func (a *Artifact) Discard() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("audio: discard artifact %s: %w", a.ID, err)
	}
	return nil
}

// ArtifactStore creates recording files in a directory.
type ArtifactStore struct {
	dir string

	mkdirOnce sync.Once
	mkdirErr  error
}

// NewArtifactStore returns a store rooted at dir. An empty dir uses
// "<os.TempDir()>/readalong".
func NewArtifactStore(dir string) *ArtifactStore {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "readalong")
	}
	return &ArtifactStore{dir: dir}
}

// Dir returns the directory artifacts are written to.
func (s *ArtifactStore) Dir() string { return s.dir }

// Create opens a new in-progress artifact.
func (s *ArtifactStore) Create(f Format) (*ArtifactWriter, error) {
	s.mkdirOnce.Do(func() {
		s.mkdirErr = os.MkdirAll(s.dir, 0o750)
	})
	if s.mkdirErr != nil {
		return nil, fmt.Errorf("audio: create artifact dir: %w", s.mkdirErr)
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, "rec-"+id+".wav")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audio: create artifact: %w", err)
	}
	ww, err := NewWAVWriter(file, f)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &ArtifactWriter{
		artifact: Artifact{ID: id, Path: path, Format: f},
		file:     file,
		wav:      ww,
	}, nil
}

// ArtifactWriter is an artifact being recorded. Exactly one of Commit or
// Abort must be called. It is safe for concurrent use.
type ArtifactWriter struct {
	mu       sync.Mutex
	artifact Artifact
	file     *os.File
	wav      *WAVWriter
	done     bool
}

// Write appends PCM in the artifact's format.
func (w *ArtifactWriter) Write(pcm []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return 0, errors.New("audio: write to finished artifact")
	}
	return w.wav.Write(pcm)
}

// Commit finalizes the file and returns the finished artifact.
func (w *ArtifactWriter) Commit() (*Artifact, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil, errors.New("audio: artifact already finished")
	}
	w.done = true

	err := errors.Join(w.wav.Close(), w.file.Close())
	if err != nil {
		_ = os.Remove(w.artifact.Path)
		return nil, fmt.Errorf("audio: commit artifact %s: %w", w.artifact.ID, err)
	}
	a := w.artifact
	a.Size = w.wav.Len()
	return &a, nil
}

// Abort closes and deletes the file. Safe to call after Commit (no-op) and
// more than once.
func (w *ArtifactWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	_ = w.file.Close()
	if err := os.Remove(w.artifact.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("audio: abort artifact %s: %w", w.artifact.ID, err)
	}
	return nil
}

// Path returns the file path of the artifact being written.
func (w *ArtifactWriter) Path() string { return w.artifact.Path }
