// Package backup runs backup cycles and schedules them.
package backup

import (
	"sync"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/types"
)

// Snapshot is a copy of the cycle state at one point in time. Zero times
// mean "never".
type Snapshot struct {
	LastBackup  time.Time
	NextBackup  time.Time
	LastAttempt time.Time
	LastError   string
	LastStatus  types.CycleStatus
	LastArchive string
	Running     bool
}

// State is the cycle state shared between the runner, the scheduler and
// the health endpoint
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Snapshot returns a copy of the current state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetNextBackup records when the scheduler plans the next cycle
func (s *State) SetNextBackup(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.NextBackup = t
}

func (s *State) begin(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = true
	s.snap.LastAttempt = at
}

func (s *State) finish(result *types.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = false
	s.snap.LastStatus = result.Status
	switch result.Status {
	case types.CycleStatusSuccess, types.CycleStatusPartial:
		s.snap.LastBackup = result.FinishedAt
		s.snap.LastArchive = result.ArchivePath
		s.snap.LastError = ""
	default:
		s.snap.LastError = result.Error
	}
}
