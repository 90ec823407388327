package us

import (
	"testing"
)

func TestProgressTrackerResume(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir, "2024-06-14")
	if err != nil {
		t.Fatal(err)
	}
	hits := map[string]struct{}{"AAPL": {}}
	if err := pt.MarkDone([]string{"AAPL", "ZZZZ"}, hits); err != nil {
		t.Fatal(err)
	}
	if err := pt.Close(); err != nil {
		t.Fatal(err)
	}

	// Same end date: finished symbols survive the restart.
	pt2, err := newProgressTracker(dir, "2024-06-14")
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range []string{"AAPL", "ZZZZ"} {
		if !pt2.IsDone(sym) {
			t.Errorf("expected %q to be done after reload", sym)
		}
	}
	if pt2.IsDone("MSFT") {
		t.Error("MSFT should not be done")
	}
	if h, e := pt2.Counts(); h != 1 || e != 1 {
		t.Errorf("Counts() = %d hits, %d empty, want 1, 1", h, e)
	}
	if err := pt2.MarkDone([]string{"MSFT"}, nil); err != nil {
		t.Fatal(err)
	}
	pt2.Close()

	// New end date: progress starts over.
	pt3, err := newProgressTracker(dir, "2024-06-17")
	if err != nil {
		t.Fatal(err)
	}
	defer pt3.Close()
	if pt3.IsDone("AAPL") || pt3.IsDone("MSFT") {
		t.Error("progress from a different end date should be discarded")
	}
}

func TestProgressTrackerCompleted(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir, "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if pt.IsCompleted() {
		t.Error("should not be completed before marking")
	}
	if err := pt.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if !pt.IsCompleted() {
		t.Error("should be completed after marking")
	}

	other, err := newProgressTracker(dir, "2025-02-11")
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	if other.IsCompleted() {
		t.Error("a later end date is not completed")
	}
}
