// Package history keeps a log of finished practice sessions. Each session is
// appended as one JSON line to a local file, so progress across chapters can
// be reviewed with ordinary text tools.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/readalong/internal/practice"
)

// Record is one finished practice session.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Media     string    `json:"media,omitempty"`

	TotalSentences      int     `json:"total_sentences"`
	CompletedSentences  int     `json:"completed_sentences"`
	ScoredSentences     int     `json:"scored_sentences"`
	AverageWordAccuracy float64 `json:"average_word_accuracy"`
	AverageAccuracy     float64 `json:"average_accuracy"`
	AverageFluency      float64 `json:"average_fluency"`
	AverageRhythm       float64 `json:"average_rhythm"`
	OverallScore        float64 `json:"overall_score"`
	PracticeSeconds     float64 `json:"practice_seconds"`

	Sentences []SentenceRecord `json:"sentences,omitempty"`
}

// SentenceRecord is the latest attempt at one sentence. Attempts are omitted
// for sentences that were never recorded.
type SentenceRecord struct {
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	Transcript string   `json:"transcript"`
	Accuracy   float64  `json:"accuracy"`
	Missed     []string `json:"missed,omitempty"`
	Overall    *float64 `json:"overall,omitempty"`
}

// NewRecord builds a Record from a session's summary and sentences.
func NewRecord(sessionID, media string, sum practice.Summary, sentences []practice.Sentence) Record {
	r := Record{
		Timestamp:           time.Now().UTC(),
		SessionID:           sessionID,
		Media:               media,
		TotalSentences:      sum.TotalSentences,
		CompletedSentences:  sum.CompletedSentences,
		ScoredSentences:     sum.ScoredSentences,
		AverageWordAccuracy: sum.AverageWordAccuracy,
		AverageAccuracy:     sum.AverageAccuracy,
		AverageFluency:      sum.AverageFluency,
		AverageRhythm:       sum.AverageRhythm,
		OverallScore:        sum.OverallScore,
		PracticeSeconds:     sum.PracticeTime.Seconds(),
	}
	for _, s := range sentences {
		if s.Recording == nil {
			continue
		}
		sr := SentenceRecord{
			Index:      s.Index,
			Text:       s.Text,
			Transcript: s.Recording.Transcript,
		}
		if s.Comparison != nil {
			sr.Accuracy = s.Comparison.Accuracy
			sr.Missed = s.Comparison.Missed
		}
		if s.Score != nil {
			overall := s.Score.Overall
			sr.Overall = &overall
		}
		r.Sentences = append(r.Sentences, sr)
	}
	return r
}

// FileStore appends records as JSON lines to a local file.
// Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore writing to path. The file and its parent
// directory are created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store appends to.
func (fs *FileStore) Path() string { return fs.path }

// Save appends r to the file.
func (fs *FileStore) Save(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("history: create directory: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Records returns every saved record in file order. A missing file holds no
// records.
func (fs *FileStore) Records() ([]Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	dec := json.NewDecoder(f)
	for {
		var r Record
		if err := dec.Decode(&r); errors.Is(err, io.EOF) {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("history: decode record %d: %w", len(out)+1, err)
		}
		out = append(out, r)
	}
}

// Latest returns the most recent record for media, if any.
func (fs *FileStore) Latest(media string) (Record, bool, error) {
	records, err := fs.Records()
	if err != nil {
		return Record{}, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Media == media {
			return records[i], true, nil
		}
	}
	return Record{}, false, nil
}
