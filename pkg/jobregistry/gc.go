package jobregistry

import (
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/protsearch/pkg/jobid"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned int  `json:"scanned"`
	Deleted int  `json:"deleted"`
	Skipped bool `json:"skipped,omitempty"`
}

// Expired returns the ids of jobs created before now-retention without
// removing anything.
func (s *Store) Expired(now time.Time, retention time.Duration) ([]jobid.ID, error) {
	cutoff, err := sweepCutoff(now, retention)
	if err != nil {
		return nil, err
	}
	var out []jobid.ID
	for id, err := range s.Jobs() {
		if err != nil {
			return out, err
		}
		if id.Ticks() < cutoff {
			out = append(out, id)
		}
	}
	return out, nil
}

// Sweep removes every job created before now-retention. Creation time comes
// from the job id alone. A failed removal does not stop the sweep; all
// removal errors are returned joined.
//
// Jobs minted after the cutoff are never touched, so sweeping alongside live
// submissions is safe.
func (s *Store) Sweep(now time.Time, retention time.Duration) (SweepResult, error) {
	var res SweepResult
	cutoff, err := sweepCutoff(now, retention)
	if err != nil {
		return res, err
	}

	var errs []error
	for id, err := range s.Jobs() {
		if err != nil {
			errs = append(errs, err)
			break
		}
		res.Scanned++
		if id.Ticks() >= cutoff {
			continue
		}
		if err := s.Remove(id); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Deleted++
	}
	return res, errors.Join(errs...)
}

func sweepCutoff(now time.Time, retention time.Duration) (uint64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be > 0")
	}
	return jobid.TimeToTicks(now.Add(-retention)), nil
}
