package timeseries

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGridIDFormat(t *testing.T) {
	p := GridPoint{Lat: 45.050001, Lng: -100.04999}
	if got, want := p.GridID(), "45.1_-100.0"; got != want {
		t.Errorf("GridID = %q, want %q", got, want)
	}
}

func TestGenerateGridDedup(t *testing.T) {
	// A resolution finer than 0.1 and not a multiple of it forces
	// repeated grid ids after rounding (25.16 and 25.23 both round to
	// 25.2); GenerateGrid must not emit duplicates.
	grid := GenerateGrid(0.07)
	seen := map[string]bool{}
	for _, p := range grid {
		id := p.GridID()
		if seen[id] {
			t.Fatalf("duplicate grid id %q", id)
		}
		seen[id] = true
	}
	if len(grid) == 0 {
		t.Fatalf("expected non-empty grid")
	}
}

func TestGenerateGridBounds(t *testing.T) {
	grid := GenerateGrid(5.0)
	for _, p := range grid {
		if p.Lat < 24.9 || p.Lat > 53.0 {
			t.Errorf("lat %v out of expected range", p.Lat)
		}
		if p.Lng < -125.0 || p.Lng > -66.8 {
			t.Errorf("lng %v out of expected range", p.Lng)
		}
	}
}

func TestDedupByDate(t *testing.T) {
	entries := []Entry{
		{Date: "20231201", Value: 1},
		{Date: "20231201", Value: 2},
		{Date: "20231202", Value: 3},
	}
	got := dedupByDate(entries)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Date != "20231201" || got[1].Date != "20231202" {
		t.Errorf("unexpected dates: %+v", got)
	}
}

func TestExtractorEmptyOutputSkipsCellsWithNoData(t *testing.T) {
	e := NewExtractor(5.0, nil, nil)
	if e.DataPointCount() != 0 {
		t.Errorf("expected zero data points before processing")
	}
	dir := t.TempDir()
	if err := e.WriteOutput(dir); err != nil {
		t.Fatalf("write output: %v", err)
	}
	files, err := os.ReadDir(filepath.Join(dir, "timeseries"))
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(files) != 1 || files[0].Name() != "index.json" {
		t.Errorf("expected only index.json for cells with no data, got %v", files)
	}
}
