package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/grantha-tools/grantha/internal/qagen"
)

// Snapshot represents the latest file collection available to the UI.
type Snapshot struct {
	Files               []qagen.FileInfo
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive refresh failures
}

// IsOffline returns true when the backend has been unreachable for multiple
// refresh attempts.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// FileByID returns the file entry with the given identifier.
func (s Snapshot) FileByID(fileID string) (qagen.FileInfo, bool) {
	for _, f := range s.Files {
		if f.FileID == fileID {
			return f, true
		}
	}
	return qagen.FileInfo{}, false
}

// Store coordinates concurrent updates to the file-list snapshot. The zero
// value is ready to use.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored file list. When err is non-nil the previous
// data is kept but the error is recorded for visibility.
func (s *Store) Update(files []qagen.FileInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Files = cloneFiles(files)
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Files = cloneFiles(s.snapshot.Files)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneFiles(files []qagen.FileInfo) []qagen.FileInfo {
	if len(files) == 0 {
		return nil
	}
	dup := make([]qagen.FileInfo, len(files))
	copy(dup, files)
	return dup
}
