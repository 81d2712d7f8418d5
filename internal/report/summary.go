package report

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/duskrange/wanderer/internal/utils"
)

const summaryVersion = 1

// Summary is the aggregate, process-lifetime record of one run. It holds
// only counters, never per-URL detail — the design does not persist a
// visited-state log, so a restart starts clean rather than resuming.
type Summary struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	DwellsCompleted     int64 `json:"dwells_completed"`
	WalksCompleted      int64 `json:"walks_completed"`
	RequestsIssued      int64 `json:"requests_issued"`
	LinksFollowed       int64 `json:"links_followed"`
	TransientErrors     int64 `json:"transient_errors"`
	RotationsAttempted  int64 `json:"rotations_attempted"`
	RotationsSucceeded  int64 `json:"rotations_succeeded"`
}

// NewSummary starts a fresh run summary stamped with runID and the current
// time.
func NewSummary(runID string) *Summary {
	return &Summary{
		Version:   summaryVersion,
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
}

func (s *Summary) IncDwells()    { atomic.AddInt64(&s.DwellsCompleted, 1) }
func (s *Summary) IncWalks()     { atomic.AddInt64(&s.WalksCompleted, 1) }
func (s *Summary) IncRequests()  { atomic.AddInt64(&s.RequestsIssued, 1) }
func (s *Summary) IncLinks()     { atomic.AddInt64(&s.LinksFollowed, 1) }
func (s *Summary) IncTransient() { atomic.AddInt64(&s.TransientErrors, 1) }
func (s *Summary) IncRotationAttempted() {
	atomic.AddInt64(&s.RotationsAttempted, 1)
}
func (s *Summary) IncRotationSucceeded() {
	atomic.AddInt64(&s.RotationsSucceeded, 1)
}

// Save writes the summary to p atomically, the same temp-then-rename idiom
// used elsewhere for on-disk output.
func (s *Summary) Save(p string) error {
	if s == nil {
		return errors.New("nil summary")
	}
	if p == "" {
		return errors.New("empty summary path")
	}
	s.EndedAt = time.Now().UTC()
	if err := utils.EnsureDir(filepath.Dir(p)); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return utils.SaveToFile(p, b)
}
