package jobregistry

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/protsearch/pkg/jobid"
)

const (
	DefaultQuerySuffix   = ".protein.query"
	DefaultResultSuffix  = ".diamond.out"
	DefaultFailureSuffix = ".diamond.err"

	listBatchSize = 256
)

// Layout describes where job files live.
type Layout struct {
	QueriesDir    string
	ResultsDir    string
	QuerySuffix   string
	ResultSuffix  string
	FailureSuffix string
}

// Store maps job ids to files and derives job status from their presence.
//
// Directory layout:
//
//	<queries_dir>/<job_id><query_suffix>     query record, written on submit
//	<results_dir>/<job_id><result_suffix>    search tool output, marks completion
//	<results_dir>/<job_id><failure_suffix>   failure marker, written on tool error
//
// The store keeps no state of its own between calls; the directories are the
// source of truth.
type Store struct {
	layout       Layout
	queryPattern string
}

// NewStore validates the layout and returns a Store. Empty suffixes fall back
// to the defaults.
func NewStore(layout Layout) (*Store, error) {
	layout.QueriesDir = strings.TrimSpace(layout.QueriesDir)
	layout.ResultsDir = strings.TrimSpace(layout.ResultsDir)
	if layout.QueriesDir == "" {
		return nil, fmt.Errorf("queries dir is required")
	}
	if layout.ResultsDir == "" {
		return nil, fmt.Errorf("results dir is required")
	}
	if layout.QuerySuffix == "" {
		layout.QuerySuffix = DefaultQuerySuffix
	}
	if layout.ResultSuffix == "" {
		layout.ResultSuffix = DefaultResultSuffix
	}
	if layout.FailureSuffix == "" {
		layout.FailureSuffix = DefaultFailureSuffix
	}
	for _, suffix := range []string{layout.QuerySuffix, layout.ResultSuffix, layout.FailureSuffix} {
		if strings.ContainsAny(suffix, `/\`) {
			return nil, fmt.Errorf("suffix %q must not contain a path separator", suffix)
		}
	}
	if layout.ResultSuffix == layout.FailureSuffix {
		return nil, fmt.Errorf("result and failure suffix must differ")
	}

	pattern := "*" + escapeGlob(layout.QuerySuffix)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid query suffix pattern %q", pattern)
	}

	return &Store{layout: layout, queryPattern: pattern}, nil
}

func (s *Store) Layout() Layout {
	return s.layout
}

func (s *Store) QueryPath(id jobid.ID) string {
	return filepath.Join(s.layout.QueriesDir, id.String()+s.layout.QuerySuffix)
}

func (s *Store) ResultPath(id jobid.ID) string {
	return filepath.Join(s.layout.ResultsDir, id.String()+s.layout.ResultSuffix)
}

func (s *Store) FailurePath(id jobid.ID) string {
	return filepath.Join(s.layout.ResultsDir, id.String()+s.layout.FailureSuffix)
}

// EnsureDirs creates the queries and results directories.
func (s *Store) EnsureDirs() error {
	if err := os.MkdirAll(s.layout.QueriesDir, 0755); err != nil {
		return fmt.Errorf("create queries dir: %w", err)
	}
	if err := os.MkdirAll(s.layout.ResultsDir, 0755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	return nil
}

// WriteQuery persists the query record for a job. The sequence is written
// verbatim; callers validate it first.
func (s *Store) WriteQuery(id jobid.ID, sequence string) error {
	if id.IsZero() {
		return fmt.Errorf("job id is required")
	}
	data := fmt.Sprintf(">%s\n%s\n", id, sequence)
	if err := writeFileAtomic(s.layout.QueriesDir, filepath.Base(s.QueryPath(id)), []byte(data)); err != nil {
		return fmt.Errorf("write query: %w", err)
	}
	return nil
}

// MarkFailed records that the search for id failed. The marker is ignored
// once a result file exists.
func (s *Store) MarkFailed(id jobid.ID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "search failed"
	}
	if err := writeFileAtomic(s.layout.ResultsDir, filepath.Base(s.FailurePath(id)), []byte(reason+"\n")); err != nil {
		return fmt.Errorf("write failure marker: %w", err)
	}
	return nil
}

// Jobs lazily yields the id of every submitted job. Files in the queries
// directory that do not carry the query suffix, or whose name is not a job
// id, are skipped. A missing directory yields nothing.
func (s *Store) Jobs() iter.Seq2[jobid.ID, error] {
	return func(yield func(jobid.ID, error) bool) {
		dir, err := os.Open(s.layout.QueriesDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(jobid.Nil, fmt.Errorf("open queries dir: %w", err))
			return
		}
		defer func() { _ = dir.Close() }()

		for {
			entries, err := dir.ReadDir(listBatchSize)
			for _, entry := range entries {
				id, ok := s.queryJobID(entry)
				if !ok {
					continue
				}
				if !yield(id, nil) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(jobid.Nil, fmt.Errorf("read queries dir: %w", err))
				}
				return
			}
		}
	}
}

func (s *Store) queryJobID(entry fs.DirEntry) (jobid.ID, bool) {
	if entry.IsDir() {
		return jobid.Nil, false
	}
	name := entry.Name()
	matched, err := doublestar.Match(s.queryPattern, name)
	if err != nil || !matched {
		return jobid.Nil, false
	}
	id, err := jobid.Parse(strings.TrimSuffix(name, s.layout.QuerySuffix))
	if err != nil {
		return jobid.Nil, false
	}
	return id, true
}

// List returns every submitted job with its status, newest first.
// Jobs removed while listing are left out.
func (s *Store) List() ([]JobSummary, error) {
	var out []JobSummary
	for id, err := range s.Jobs() {
		if err != nil {
			return nil, err
		}
		status, err := s.Status(id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, JobSummary{JobID: id, Status: status})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].JobID.Ticks() > out[j].JobID.Ticks()
	})
	return out, nil
}

// Status derives the job status from the files present for id.
func (s *Store) Status(id jobid.ID) (JobStatus, error) {
	queryExists, err := fileExists(s.QueryPath(id))
	if err != nil {
		return "", err
	}
	if !queryExists {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	resultExists, err := fileExists(s.ResultPath(id))
	if err != nil {
		return "", err
	}
	failedExists := false
	if !resultExists {
		if failedExists, err = fileExists(s.FailurePath(id)); err != nil {
			return "", err
		}
	}

	status, _ := DeriveStatus(queryExists, resultExists, failedExists)
	return status, nil
}

// Results returns the job status and, for completed jobs, the parsed rows.
// A result file that does not parse yields a *ResultParseError.
func (s *Store) Results(id jobid.ID) (*JobResult, error) {
	status, err := s.Status(id)
	if err != nil {
		return nil, err
	}
	res := &JobResult{JobID: id, Status: status}

	switch status {
	case JobStatusCompleted:
		rows, err := ReadResultFile(s.ResultPath(id))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Swept between the status check and the read.
				return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
			}
			return nil, err
		}
		res.Rows = rows
	case JobStatusFailed:
		b, err := os.ReadFile(s.FailurePath(id))
		if err == nil {
			res.Reason = strings.TrimSpace(string(b))
		}
	}
	return res, nil
}

// Remove deletes every file belonging to id. The query file goes first and
// is removed even if the other removals fail. Missing files are not errors.
func (s *Store) Remove(id jobid.ID) error {
	var errs []error
	for _, path := range []string{s.QueryPath(id), s.ResultPath(id), s.FailurePath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

func writeFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
