package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/grantha-tools/grantha/internal/qagen"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	files := []qagen.FileInfo{
		{FileID: "f1", Filename: "gita.csv", RowCount: 10},
		{FileID: "f2", Filename: "upanishad.csv", RowCount: 4},
	}

	before := time.Now()
	s.Update(files, nil)

	snap := s.Snapshot()
	if len(snap.Files) != 2 || snap.Files[0].FileID != "f1" {
		t.Fatalf("snapshot files = %#v, want 2 entries", snap.Files)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Files[0].FileID = "mutated"
	snap2 := s.Snapshot()
	if snap2.Files[0].FileID != "f1" {
		t.Fatalf("Snapshot should clone files; got id %q want f1", snap2.Files[0].FileID)
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update([]qagen.FileInfo{{FileID: "f1"}}, nil)
	prev := s.Snapshot()

	origErr := errors.New("boom")
	s.Update(nil, origErr)

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Files, prev.Files) {
		t.Fatalf("files changed on error: got %#v want %#v", snap.Files, prev.Files)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailuresAndOffline(t *testing.T) {
	var s Store

	if s.Snapshot().IsOffline() {
		t.Fatal("zero-value store reported offline")
	}

	s.Update(nil, errors.New("fail 1"))
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 1 || snap.IsOffline() {
		t.Fatalf("after 1 failure: %d failures, offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(nil, errors.New("fail 2"))
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 2 || !snap.IsOffline() {
		t.Fatalf("after 2 failures: %d failures, offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update([]qagen.FileInfo{{FileID: "f1"}}, nil)
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("after success: %d failures, offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}
}

func TestSnapshot_FileByID(t *testing.T) {
	var s Store
	s.Update([]qagen.FileInfo{{FileID: "f1", Filename: "gita.csv"}}, nil)

	snap := s.Snapshot()
	f, ok := snap.FileByID("f1")
	if !ok || f.Filename != "gita.csv" {
		t.Fatalf("FileByID(f1) = %#v, %v", f, ok)
	}
	if _, ok := snap.FileByID("missing"); ok {
		t.Fatal("FileByID(missing) = true, want false")
	}
}
