package remotezarr

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/brandonfcohen1/gnarmap/internal/objectstore"
)

func TestAffectedTimeChunksSingleChunk(t *testing.T) {
	existing := make([]string, 212)
	for i := range existing {
		existing[i] = dateFromIndex(i)
	}
	var newDates []string
	for i := 212; i < 212+153; i++ { // through position 364, still within chunk 0 (364 < 365)
		newDates = append(newDates, dateFromIndex(i))
	}

	chunks := AffectedTimeChunks(existing, newDates)
	if !reflect.DeepEqual(chunks, []int{0}) {
		t.Errorf("affected chunks = %v, want [0]", chunks)
	}
}

func TestAffectedTimeChunksSpansTwoChunks(t *testing.T) {
	existing := make([]string, 364)
	for i := range existing {
		existing[i] = dateFromIndex(i)
	}
	newDates := []string{dateFromIndex(364), dateFromIndex(365)}

	chunks := AffectedTimeChunks(existing, newDates)
	if !reflect.DeepEqual(chunks, []int{0, 1}) {
		t.Errorf("affected chunks = %v, want [0, 1]", chunks)
	}
}

// dateFromIndex generates a stand-in ascending YYYYMMDD string for
// index i, sufficient for exercising position arithmetic without
// real calendar semantics.
func dateFromIndex(i int) string {
	return fmtDate(20200101 + i)
}

func fmtDate(n int) string {
	return (&fakeDate{n}).String()
}

type fakeDate struct{ n int }

func (f *fakeDate) String() string {
	s := make([]byte, 8)
	v := f.n
	for i := 7; i >= 0; i-- {
		s[i] = byte('0' + v%10)
		v /= 10
	}
	return string(s)
}

func TestEnumerateNewDates(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "snodas_snow_depth_20231201.tif")
	writeEmpty(t, dir, "snodas_snow_depth_20231202.tif")
	writeEmpty(t, dir, "snodas_swe_20231201.tif") // different product: not a snow_depth COG, so not enumerated

	newDates, err := enumerateNewDates(dir, []string{"20231201"})
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(newDates) != 1 || newDates[0] != "20231202" {
		t.Errorf("got %v, want [20231202]", newDates)
	}
}

func writeEmpty(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// TestProcessRemoteFreshStore exercises the orchestrator's staging/
// fetch/merge/upload round trip end to end against a LocalStore
// standing in for the remote backend (both implement
// objectstore.Store). The COG content is a placeholder, not a real
// TIFF: per spec.md §7, a single COG failing to open is a per-item
// error that is logged and skipped, not fatal to the batch, so the
// axis still advances and dates.json is still uploaded.
func TestProcessRemoteFreshStore(t *testing.T) {
	remoteRoot := t.TempDir()
	remote, err := objectstore.NewLocalStore(remoteRoot)
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}

	cogDir := t.TempDir()
	writeEmpty(t, cogDir, "snodas_snow_depth_20231201.tif")

	processed, err := ProcessRemote(context.Background(), cogDir, remote, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("process remote: %v", err)
	}
	if processed != 0 {
		t.Errorf("expected 0 successfully processed (placeholder cog), got %d", processed)
	}

	data, err := remote.Get(context.Background(), "dates.json")
	if err != nil {
		t.Fatalf("get dates.json: %v", err)
	}
	var dates []string
	if err := json.Unmarshal(data, &dates); err != nil {
		t.Fatalf("unmarshal dates.json: %v", err)
	}
	if len(dates) != 1 || dates[0] != "20231201" {
		t.Errorf("dates.json = %v, want [20231201]", dates)
	}
}
