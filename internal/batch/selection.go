package batch

import (
	"sort"

	"github.com/grantha-tools/grantha/internal/qagen"
)

// Selection tracks which generated result rows the user has marked for
// saving, keyed by file identifier and row index within that file's result
// list.
//
// Indices are positions in the result ordering of the most recent status
// poll, not stable row identities; callers reset the selection whenever a
// new batch starts.
type Selection struct {
	files map[string]map[int]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{files: make(map[string]map[int]struct{})}
}

// Toggle flips the selection state of one (file, index) pair. Toggling
// twice restores the original state.
func (s *Selection) Toggle(fileID string, idx int) {
	set, ok := s.files[fileID]
	if !ok {
		set = make(map[int]struct{})
		s.files[fileID] = set
	}
	if _, selected := set[idx]; selected {
		delete(set, idx)
		if len(set) == 0 {
			delete(s.files, fileID)
		}
		return
	}
	set[idx] = struct{}{}
}

// Selected reports whether a (file, index) pair is marked.
func (s *Selection) Selected(fileID string, idx int) bool {
	_, ok := s.files[fileID][idx]
	return ok
}

// SelectAll marks indices 0..n-1 for a file.
func (s *Selection) SelectAll(fileID string, n int) {
	if n <= 0 {
		return
	}
	set := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		set[i] = struct{}{}
	}
	s.files[fileID] = set
}

// Clear drops every marked row.
func (s *Selection) Clear() {
	s.files = make(map[string]map[int]struct{})
}

// Count returns the total number of marked rows across all files.
func (s *Selection) Count() int {
	n := 0
	for _, set := range s.files {
		n += len(set)
	}
	return n
}

// CountFile returns the number of marked rows for one file.
func (s *Selection) CountFile(fileID string) int {
	return len(s.files[fileID])
}

// Indices returns the marked row indices for a file in ascending order.
func (s *Selection) Indices(fileID string) []int {
	set := s.files[fileID]
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Gather resolves the selection against a results map, returning the marked
// rows in file order then index order. Indices beyond the current result
// list are silently dropped; they refer to an ordering that no longer
// exists.
func (s *Selection) Gather(results map[string][]qagen.ResultRow) []qagen.ResultRow {
	fileIDs := make([]string, 0, len(s.files))
	for fileID := range s.files {
		fileIDs = append(fileIDs, fileID)
	}
	sort.Strings(fileIDs)

	var rows []qagen.ResultRow
	for _, fileID := range fileIDs {
		fileRows := results[fileID]
		for _, idx := range s.Indices(fileID) {
			if idx >= 0 && idx < len(fileRows) {
				rows = append(rows, fileRows[idx])
			}
		}
	}
	return rows
}
