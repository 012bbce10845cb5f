package jobregistry

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dirListing(t *testing.T, s *Store) []string {
	t.Helper()
	var out []string
	for _, dir := range []string{s.Layout().QueriesDir, s.Layout().ResultsDir} {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		for _, e := range entries {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

func TestStore_SweepRemovesExpiredOnly(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	retention := 14 * 24 * time.Hour

	expired := mintAt(t, now.Add(-15*24*time.Hour))
	expiredDone := mintAt(t, now.Add(-20*24*time.Hour))
	fresh := mintAt(t, now.Add(-13*24*time.Hour))

	require.NoError(t, s.WriteQuery(expired, "MKV"))
	require.NoError(t, s.WriteQuery(expiredDone, "MKV"))
	writeFile(t, s.ResultPath(expiredDone), "")
	require.NoError(t, s.MarkFailed(expiredDone, "old failure"))
	require.NoError(t, s.WriteQuery(fresh, "MKV"))

	res, err := s.Sweep(now, retention)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Deleted)

	assert.NoFileExists(t, s.QueryPath(expired))
	assert.NoFileExists(t, s.QueryPath(expiredDone))
	assert.NoFileExists(t, s.ResultPath(expiredDone))
	assert.NoFileExists(t, s.FailurePath(expiredDone))
	assert.FileExists(t, s.QueryPath(fresh))

	_, err = s.Status(expired)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStore_SweepIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	retention := 24 * time.Hour

	for _, age := range []time.Duration{time.Hour, 2 * time.Hour, 48 * time.Hour, 72 * time.Hour} {
		id := mintAt(t, now.Add(-age))
		require.NoError(t, s.WriteQuery(id, "MKV"))
		writeFile(t, s.ResultPath(id), "")
	}
	writeFile(t, filepath.Join(s.Layout().QueriesDir, "notes.txt"), "keep me")

	_, err := s.Sweep(now, retention)
	require.NoError(t, err)
	first := dirListing(t, s)

	res, err := s.Sweep(now, retention)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, first, dirListing(t, s))
	assert.Len(t, first, 5)
}

func TestStore_SweepBoundary(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	retention := time.Hour

	atCutoff := mintAt(t, now.Add(-retention))
	justBefore := mintAt(t, now.Add(-retention-time.Microsecond))
	require.NoError(t, s.WriteQuery(atCutoff, "MKV"))
	require.NoError(t, s.WriteQuery(justBefore, "MKV"))

	res, err := s.Sweep(now, retention)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.FileExists(t, s.QueryPath(atCutoff))
	assert.NoFileExists(t, s.QueryPath(justBefore))
}

func TestStore_SweepRejectsNonPositiveRetention(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Sweep(time.Now(), 0)
	require.Error(t, err)
	_, err = s.Expired(time.Now(), -time.Hour)
	require.Error(t, err)
}

func TestStore_ExpiredDoesNotDelete(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	old := mintAt(t, now.Add(-30*24*time.Hour))
	fresh := mintAt(t, now)
	require.NoError(t, s.WriteQuery(old, "MKV"))
	require.NoError(t, s.WriteQuery(fresh, "MKV"))

	got, err := s.Expired(now, DefaultRetention)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old, got[0])
	assert.FileExists(t, s.QueryPath(old))
}
