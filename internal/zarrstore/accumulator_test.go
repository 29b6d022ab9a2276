package zarrstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brandonfcohen1/gnarmap/internal/errs"
)

func TestStageWindowAllNodata(t *testing.T) {
	window := make([]int16, 10*10)
	for i := range window {
		window[i] = -9999
	}
	_, hasData := stageWindow(window, 0, 10, 10)
	if hasData {
		t.Errorf("expected no data for all-NODATA window")
	}
}

func TestStageWindowSinglePixel(t *testing.T) {
	window := make([]int16, 10*10)
	window[3*10+4] = 100 // row 3, col 4
	staged, hasData := stageWindow(window, 0, 10, 10)
	if !hasData {
		t.Fatalf("expected data")
	}
	offset := 0*ChunkY*ChunkX + 3*ChunkX + 4
	if staged[offset] != 100 {
		t.Errorf("staged[%d] = %d, want 100", offset, staged[offset])
	}
}

func TestStageWindowTimeOffset(t *testing.T) {
	window := make([]int16, 4*4)
	window[0] = 50
	staged, hasData := stageWindow(window, 2, 4, 4)
	if !hasData {
		t.Fatalf("expected data")
	}
	offset := 2 * ChunkY * ChunkX
	if staged[offset] != 50 {
		t.Errorf("staged at time offset 2 = %d, want 50", staged[offset])
	}
}

// TestMergeAndStoreChunkNonZeroWins exercises the "non-zero wins,
// staged wins over existing only at non-zero positions" policy of
// spec.md §4.F step 5, directly at the chunk-merge layer.
func TestMergeAndStoreChunkNonZeroWins(t *testing.T) {
	root := t.TempDir()
	a := newAccumulator(root, nil, nil)

	first := make([]int16, ChunkTime*ChunkY*ChunkX)
	first[0] = 100 // time offset 0
	if err := a.mergeAndStoreChunk(0, 3, 7, first); err != nil {
		t.Fatalf("first store: %v", err)
	}

	second := make([]int16, ChunkTime*ChunkY*ChunkX)
	second[ChunkY*ChunkX] = 50 // time offset 1
	if err := a.mergeAndStoreChunk(0, 3, 7, second); err != nil {
		t.Fatalf("second store: %v", err)
	}

	merged, err := readChunk(root, 0, 3, 7)
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	if merged[0] != 100 {
		t.Errorf("time offset 0 = %d, want 100 preserved", merged[0])
	}
	if merged[ChunkY*ChunkX] != 50 {
		t.Errorf("time offset 1 = %d, want 50", merged[ChunkY*ChunkX])
	}
}

func TestCreateAndOpenEmptyAxis(t *testing.T) {
	root := t.TempDir()
	acc, err := Create(root, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.DatesCount() != 0 {
		t.Errorf("expected empty axis")
	}

	if err := acc.saveDatesMetadata(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := Open(root, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if reopened.DatesCount() != 0 {
		t.Errorf("expected empty axis after reopen")
	}
}

func TestOpenMissingDatesIsEmptyAxis(t *testing.T) {
	root := t.TempDir()
	acc, err := Open(root, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if acc.DatesCount() != 0 {
		t.Errorf("expected empty axis for missing dates.json")
	}
}

// TestProcessCOGsPreconditionViolation exercises scenario S6: append
// mode with a new date that does not sort after every existing date
// must fail before any chunk store is touched. It uses placeholder
// (unreadable) COG bytes because the precondition check runs before
// any file is opened for pixel data.
func TestProcessCOGsPreconditionViolation(t *testing.T) {
	root := t.TempDir()
	acc, err := Create(root, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	acc.dates = []string{"20231201"}
	if err := acc.saveDatesMetadata(); err != nil {
		t.Fatalf("save: %v", err)
	}

	cogDir := t.TempDir()
	writePlaceholderCOG(t, cogDir, "snodas_snow_depth_20231130.tif")

	_, err = acc.ProcessCOGs(context.Background(), cogDir, true)
	if err == nil {
		t.Fatalf("expected precondition violation")
	}
	if !errs.IsPreconditionViolation(err) {
		t.Errorf("got %v, want PreconditionViolation", err)
	}

	if got := acc.ExistingDates(); len(got) != 1 || got[0] != "20231201" {
		t.Errorf("store mutated on precondition violation: %v", got)
	}
}

func TestProcessCOGsNoNewDates(t *testing.T) {
	root := t.TempDir()
	acc, err := Create(root, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	acc.dates = []string{"20231201"}
	if err := acc.saveDatesMetadata(); err != nil {
		t.Fatalf("save: %v", err)
	}

	cogDir := t.TempDir()
	writePlaceholderCOG(t, cogDir, "snodas_snow_depth_20231201.tif")

	n, err := acc.ProcessCOGs(context.Background(), cogDir, true)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 processed, got %d", n)
	}
}

func writePlaceholderCOG(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("not a real tiff"), 0o644); err != nil {
		t.Fatalf("write placeholder: %v", err)
	}
}
