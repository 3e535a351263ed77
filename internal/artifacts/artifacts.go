// Package artifacts lays out the files a digest run leaves behind for audit and for the
// evaluate, publish and review commands.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/schema"
)

const (
	TopicsFile     = "01-topics.json"
	AssignmentFile = "02-articles_by_topic.json"
	SummaryFile    = "03-topics_summary.json"
	LinksFile      = "04-topics_link.json"
	PreEditedFile  = "summary-pre_edited.md"
	EditedFile     = "summary-edited.md"
	ErrorFile      = "error.txt"
	CandidatesFile = "05-final_text.json"
	ScoresFile     = "06-score.json"
	DigestFile     = "digest.md"
	ArticlesFile   = "news_data.csv"

	lockFile  = ".newsdigest.lock"
	runLayout = "20060102-150405"
)

// ErrLocked is returned when another process holds the output directory.
var ErrLocked = errors.New("output directory is locked by another run")

// Run is one run directory under the output root. It holds the output root's lock until Close.
type Run struct {
	Dir  string
	lock *flock.Flock
}

// NewRun locks root and creates <root>/<YYYYMMDD-HHMMSS>.
func NewRun(root string, now time.Time) (*Run, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", root, err)
	}
	lock, err := acquire(root)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, now.Format(runLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	logger.Debug("Run directory created", "dir", dir)
	return &Run{Dir: dir, lock: lock}, nil
}

// OpenRun locks the output root containing dir and returns the existing run.
func OpenRun(dir string) (*Run, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open run %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open run %s: not a directory", dir)
	}
	lock, err := acquire(filepath.Dir(filepath.Clean(dir)))
	if err != nil {
		return nil, err
	}
	return &Run{Dir: dir, lock: lock}, nil
}

// RunTime returns the start time encoded in a run directory name, in the local zone.
func RunTime(dir string) (time.Time, error) {
	t, err := time.ParseInLocation(runLayout, filepath.Base(filepath.Clean(dir)), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s is not a run directory name: %w", filepath.Base(dir), err)
	}
	return t, nil
}

func acquire(root string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(root, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, root)
	}
	return lock, nil
}

// Close releases the output directory lock.
func (r *Run) Close() error {
	if r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}

// Path returns the path of name inside the run directory.
func (r *Run) Path(name string) string { return filepath.Join(r.Dir, name) }

// ErrorPath is where run-level generation diagnostics go.
func (r *Run) ErrorPath() string { return r.Path(ErrorFile) }

// Attempt returns the writer for attempt id, creating its directory.
func (r *Run) Attempt(id int) (*Attempt, error) {
	dir := filepath.Join(r.Dir, fmt.Sprintf("attempt-%d", id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attempt directory %s: %w", dir, err)
	}
	return &Attempt{ID: id, Dir: dir}, nil
}

// WriteCandidates stores every candidate document.
func (r *Run) WriteCandidates(candidates []core.CandidateDocument) error {
	return writeJSON(r.Path(CandidatesFile), candidates)
}

// ReadCandidates loads the candidates written by WriteCandidates.
func (r *Run) ReadCandidates() ([]core.CandidateDocument, error) {
	var out []core.CandidateDocument
	if err := readJSON(r.Path(CandidatesFile), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteScores stores the evaluator output.
func (r *Run) WriteScores(scores []core.ScoreEntry) error {
	return writeJSON(r.Path(ScoresFile), schema.ScoreModel{Scores: scores})
}

// ReadScores loads the scores written by WriteScores.
func (r *Run) ReadScores() ([]core.ScoreEntry, error) {
	var doc schema.ScoreModel
	if err := readJSON(r.Path(ScoresFile), &doc); err != nil {
		return nil, err
	}
	return doc.Scores, nil
}

// WriteDigest stores the selected document.
func (r *Run) WriteDigest(text string) error {
	return writeText(r.Path(DigestFile), text)
}

// ReadDigest loads the selected document.
func (r *Run) ReadDigest() (string, error) {
	b, err := os.ReadFile(r.Path(DigestFile))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", DigestFile, err)
	}
	return string(b), nil
}

// Attempt writes the intermediate outputs of one best-of-N attempt.
type Attempt struct {
	ID  int
	Dir string
}

// Path returns the path of name inside the attempt directory.
func (a *Attempt) Path(name string) string { return filepath.Join(a.Dir, name) }

// ErrorPath is where this attempt's generation diagnostics go.
func (a *Attempt) ErrorPath() string { return a.Path(ErrorFile) }

func (a *Attempt) Topics(topics []string) error {
	return writeJSON(a.Path(TopicsFile), schema.TopicsList{Topics: topics})
}

func (a *Attempt) Assignment(groups []core.TopicAssignment) error {
	return writeJSON(a.Path(AssignmentFile), schema.ArticlesByTopic{Topics: groups})
}

func (a *Attempt) Summaries(edited []core.TopicSummary, links []core.TopicLinks) error {
	if err := writeJSON(a.Path(SummaryFile), schema.TopicsSummary{Topics: edited}); err != nil {
		return err
	}
	return writeJSON(a.Path(LinksFile), links)
}

func (a *Attempt) Documents(preEdited, edited string) error {
	if err := writeText(a.Path(PreEditedFile), preEdited); err != nil {
		return err
	}
	return writeText(a.Path(EditedFile), edited)
}

// writeJSON keeps non-ASCII text readable and indents like the rest of the run files.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeText(path, buf.String())
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeText(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
