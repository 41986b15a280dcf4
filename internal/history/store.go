// Package history persists pipeline run results on disk.
package history

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conveyor-ci/conveyor/internal/engine"
)

// Run is the persisted record of one pipeline run.
type Run struct {
	ID        string         `json:"id"`
	Pipeline  string         `json:"pipeline"` // source definition path
	Status    string         `json:"status"`   // "success", "failed", "timed_out"
	CreatedAt string         `json:"created_at"`
	Result    *engine.Result `json:"result"`
}

// Store manages run records on disk, one directory per run.
type Store struct {
	baseDir string // defaults to ~/.conveyor/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.conveyor/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".conveyor", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

// StepLogPath returns the path of the combined log file for step index i.
// The step ID is folded into the file name for readability; characters that
// are not filename-safe are replaced so an ID can never point the path
// outside the run directory. Validation rejects such IDs up front, but the
// store does not trust its callers.
func (s *Store) StepLogPath(id string, i int, stepID string) string {
	name := fmt.Sprintf("%02d.log", i+1)
	if stepID != "" {
		name = fmt.Sprintf("%02d-%s.log", i+1, sanitizeID(stepID))
	}
	return filepath.Join(s.runDir(id), "steps", name)
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

// NewRunID generates a sortable run identifier: a UTC timestamp plus a
// short random suffix to keep concurrent runs distinct.
func NewRunID() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(buf)
}

// Save writes the run record plus one log file per attempted step.
func (s *Store) Save(run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := writeJSON(s.runPath(run.ID), run); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}
	if run.Result == nil {
		return nil
	}
	for i, sr := range run.Result.Steps {
		if sr.Stdout == "" && sr.Stderr == "" {
			continue
		}
		log := sr.Stdout
		if sr.Stderr != "" {
			log += sr.Stderr
		}
		if err := writeFileAtomic(s.StepLogPath(run.ID, i, sr.ID), []byte(log)); err != nil {
			return fmt.Errorf("write step log: %w", err)
		}
	}
	return nil
}

// Get reads the record for a run.
func (s *Store) Get(id string) (*Run, error) {
	var run Run
	if err := readJSON(s.runPath(id), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, err
	}
	return &run, nil
}

// List returns all runs, newest first, optionally filtered by status.
// Pass "" for statusFilter to return all runs.
func (s *Store) List(statusFilter string) ([]Run, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []Run
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		run, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		if statusFilter == "" || run.Status == statusFilter {
			runs = append(runs, *run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ID > runs[j].ID
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	dir := s.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", id)
	}
	return os.RemoveAll(dir)
}

// writeFileAtomic writes data through a temp file in the target directory
// and renames it into place, so a crash never leaves a truncated record.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".run-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
