// Package zarrstore is the Zarr Accumulator, the CORE of this
// repository: it sorts COG dates into a canonical DateAxis, allocates
// or resizes a chunked 3-D int16 Zarr v3 array, and performs a
// chunk-oriented merge write for every newly ingested COG.
package zarrstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/tbonfort/gobs"
	"go.uber.org/zap"

	"github.com/brandonfcohen1/gnarmap/internal/cogio"
	"github.com/brandonfcohen1/gnarmap/internal/errs"
	"github.com/brandonfcohen1/gnarmap/internal/snodas"
)

// Accumulator owns a (store root, DateAxis) pair. The array handle is
// the on-disk chunk layout under root/snow_depth; there is no
// in-memory array object the way zarrs.Array is in the original
// implementation — every chunk access goes through readChunk /
// writeChunk directly, each call serialized per spatial chunk by
// chunkLocks.
type Accumulator struct {
	root   string
	dates  []string
	logger *zap.SugaredLogger

	chunkLocksMu sync.Mutex
	chunkLocks   map[[2]int]*sync.Mutex
}

// Create allocates a fresh store rooted at outputPath: a root group
// zarr.json and an empty DateAxis. outputPath is created if absent.
func Create(outputPath string, logger *zap.SugaredLogger) (*Accumulator, error) {
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	if err := writeJSON(filepath.Join(outputPath, "zarr.json"), groupMetadata{ZarrFormat: 3, NodeType: "group"}); err != nil {
		return nil, fmt.Errorf("write group metadata: %w", err)
	}
	return newAccumulator(outputPath, nil, logger), nil
}

// Open loads an existing store's DateAxis from dates.json. A missing
// dates.json is treated as an empty axis, matching
// load_dates_from_metadata's behavior in the original implementation.
func Open(outputPath string, logger *zap.SugaredLogger) (*Accumulator, error) {
	dates, err := loadDatesMetadata(outputPath)
	if err != nil {
		return nil, fmt.Errorf("load existing store: %w", err)
	}
	return newAccumulator(outputPath, dates, logger), nil
}

func newAccumulator(root string, dates []string, logger *zap.SugaredLogger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Accumulator{
		root:       root,
		dates:      dates,
		logger:     logger,
		chunkLocks: make(map[[2]int]*sync.Mutex),
	}
}

func loadDatesMetadata(outputPath string) ([]string, error) {
	path := filepath.Join(outputPath, "dates.json")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	if err := readJSON(path, &dates); err != nil {
		return nil, err
	}
	return dates, nil
}

// ExistingDates returns the current DateAxis, ascending.
func (a *Accumulator) ExistingDates() []string {
	out := make([]string, len(a.dates))
	copy(out, a.dates)
	return out
}

// DatesCount returns len(ExistingDates()).
func (a *Accumulator) DatesCount() int { return len(a.dates) }

// ProcessCOGs implements spec.md §4.F's process_cogs algorithm: it
// enumerates snow_depth COGs in cogDir, computes the new combined
// DateAxis, allocates/resizes the array, and merge-writes every newly
// ingested COG's chunks, grouping by time-chunk and processing groups
// sequentially (parallel only within a group), per §5. It returns the
// count of COGs successfully processed.
func (a *Accumulator) ProcessCOGs(ctx context.Context, cogDir string, append bool) (int, error) {
	candidates, err := listCandidateCOGs(cogDir)
	if err != nil {
		return 0, fmt.Errorf("enumerate cogs: %w", err)
	}

	allDatesSet := map[string]string{} // date -> path
	for _, path := range candidates {
		name := filepath.Base(path)
		date, ok := snodas.ExtractDateFromCOGFilename(name)
		if !ok {
			a.logger.Debugf("skip: %v", errs.ErrParse{Filename: name, Reason: "unrecognized cog filename"})
			continue
		}
		allDatesSet[date] = path
	}

	existingSet := make(map[string]bool, len(a.dates))
	for _, d := range a.dates {
		existingSet[d] = true
	}

	var newDates []string
	if append {
		for d := range allDatesSet {
			if !existingSet[d] {
				newDates = append(newDates, d)
			}
		}
	} else {
		for d := range allDatesSet {
			newDates = append(newDates, d)
		}
	}
	sort.Strings(newDates)

	if len(newDates) == 0 {
		a.logger.Info("no new dates to process")
		return 0, nil
	}

	if append && len(a.dates) > 0 {
		maxExisting := a.dates[len(a.dates)-1]
		for _, d := range newDates {
			if d <= maxExisting {
				return 0, errs.ErrPreconditionViolation{NewDate: d, MaxExisting: maxExisting}
			}
		}
	}

	combined := make([]string, 0, len(a.dates)+len(newDates))
	combined = append(combined, a.dates...)
	combined = append(combined, newDates...)
	sort.Strings(combined)

	if err := a.allocateOrResize(append, combined); err != nil {
		return 0, fmt.Errorf("allocate/resize array: %w", err)
	}

	dateToIndex := make(map[string]int, len(combined))
	for i, d := range combined {
		dateToIndex[d] = i
	}

	type job struct {
		path string
		date string
		t    int
	}
	byTimeChunk := map[int][]job{}
	for _, d := range newDates {
		t := dateToIndex[d]
		tc := t / ChunkTime
		byTimeChunk[tc] = append(byTimeChunk[tc], job{path: allDatesSet[d], date: d, t: t})
	}

	var timeChunks []int
	for tc := range byTimeChunk {
		timeChunks = append(timeChunks, tc)
	}
	sort.Ints(timeChunks)

	successCount := 0
	totalNonZero := 0

	pool := gobs.NewPool(runtime.NumCPU())
	for _, tc := range timeChunks {
		jobs := byTimeChunk[tc]
		batch := pool.Batch()
		results := make([]int, len(jobs))
		errsOut := make([]error, len(jobs))
		for i, j := range jobs {
			i, j := i, j
			batch.Submit(func() error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				count, err := a.processSingleCOG(j.path, j.t)
				if err != nil {
					if errors.Is(err, errs.ErrChunkStoreFailure) {
						// Batch-fatal per spec.md §7: propagate so
						// batch.Wait aborts before dates.json advances.
						return err
					}
					errsOut[i] = err
					return nil
				}
				results[i] = count
				return nil
			})
		}
		if err := batch.Wait(); err != nil {
			return successCount, fmt.Errorf("process time-chunk %d: %w", tc, err)
		}
		for i, j := range jobs {
			if errsOut[i] != nil {
				a.logger.Warnf("error processing cog %s: %v", j.path, errsOut[i])
				continue
			}
			successCount++
			totalNonZero += results[i]
			a.logger.Debugf("processed %s with %d non-zero chunks", j.date, results[i])
		}
	}

	a.dates = combined
	if err := a.saveDatesMetadata(); err != nil {
		return successCount, fmt.Errorf("save dates.json: %w", err)
	}

	a.logger.Infof("processed %d files, %d total non-zero chunks written", successCount, totalNonZero)
	return successCount, nil
}

func listCandidateCOGs(cogDir string) ([]string, error) {
	entries, err := os.ReadDir(cogDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".tif") && strings.Contains(name, "snow_depth") {
			out = append(out, filepath.Join(cogDir, name))
		}
	}
	return out, nil
}

func (a *Accumulator) allocateOrResize(append bool, combined []string) error {
	metaPath := filepath.Join(a.root, arrayName, "zarr.json")
	if !append || len(a.dates) == 0 {
		if err := writeJSON(metaPath, newArrayMetadata(len(combined))); err != nil {
			return err
		}
		return nil
	}

	meta, err := readArrayMetadata(metaPath)
	if err != nil {
		return fmt.Errorf("open existing array metadata: %w", err)
	}
	if meta.Shape[0] < len(combined) {
		meta.Shape[0] = len(combined)
		if err := writeJSON(metaPath, meta); err != nil {
			return fmt.Errorf("resize array metadata: %w", err)
		}
	} else if meta.Shape[0] > len(combined) {
		return fmt.Errorf("refusing shape reduction: have %d, want %d", meta.Shape[0], len(combined))
	}
	return nil
}

func (a *Accumulator) saveDatesMetadata() error {
	return writeJSON(filepath.Join(a.root, "dates.json"), a.dates)
}

// processSingleCOG implements the per-COG chunk-merge write of
// spec.md §4.F: for every spatial chunk overlapping the raster, read
// the window, normalize NODATA to 0, skip all-zero windows, merge
// with any existing on-disk chunk (non-zero wins, staged wins over
// existing only at non-zero positions), and store. Returns the count
// of chunks actually written (non-zero windows).
func (a *Accumulator) processSingleCOG(cogPath string, timeIdx int) (int, error) {
	handle, err := cogio.Open(cogPath)
	if err != nil {
		return 0, fmt.Errorf("open cog %s: %w", cogPath, err)
	}
	defer handle.Close()

	width, height := handle.Size()
	numChunksY := ceilDiv(height, ChunkY)
	numChunksX := ceilDiv(width, ChunkX)

	timeChunk := timeIdx / ChunkTime
	timeOffset := timeIdx % ChunkTime

	nonZeroChunks := 0
	for chunkY := 0; chunkY < numChunksY; chunkY++ {
		for chunkX := 0; chunkX < numChunksX; chunkX++ {
			startY := chunkY * ChunkY
			startX := chunkX * ChunkX
			readHeight := minInt(ChunkY, height-startY)
			readWidth := minInt(ChunkX, width-startX)

			window, err := handle.ReadWindow(startX, startY, readWidth, readHeight)
			if err != nil {
				return nonZeroChunks, fmt.Errorf("read window (%d,%d): %w", chunkX, chunkY, err)
			}

			staged, hasData := stageWindow(window, timeOffset, readWidth, readHeight)
			if !hasData {
				continue
			}

			if err := a.mergeAndStoreChunk(timeChunk, chunkY, chunkX, staged); err != nil {
				return nonZeroChunks, fmt.Errorf("store chunk (%d,%d,%d): %w", timeChunk, chunkY, chunkX, err)
			}
			nonZeroChunks++
		}
	}
	return nonZeroChunks, nil
}

// stageWindow normalizes a raw pixel window (NODATA -> 0) and copies
// it into a freshly-allocated (365*256*256) staging buffer at the
// given time offset. It reports whether any pixel was strictly
// positive; an all-zero window is the primary throughput optimization
// named in spec.md §4.F, since most of CONUS is snow-free most days.
func stageWindow(window []int16, timeOffset, readWidth, readHeight int) ([]int16, bool) {
	hasData := false
	for i, v := range window {
		if v == snodas.NodataValue {
			window[i] = 0
		} else if window[i] > 0 {
			hasData = true
		}
	}
	if !hasData {
		return nil, false
	}

	staged := make([]int16, ChunkTime*ChunkY*ChunkX)
	for row := 0; row < readHeight; row++ {
		destOffset := timeOffset*ChunkY*ChunkX + row*ChunkX
		srcOffset := row * readWidth
		copy(staged[destOffset:destOffset+readWidth], window[srcOffset:srcOffset+readWidth])
	}
	return staged, true
}

// mergeAndStoreChunk serializes the read-modify-write for spatial
// chunk (chunkY, chunkX) against any concurrent writer targeting the
// same chunk within the same time-chunk group, per §5's requirement
// that same-spatial-chunk writes be serialized.
func (a *Accumulator) mergeAndStoreChunk(timeChunk, chunkY, chunkX int, staged []int16) error {
	lock := a.lockFor(chunkY, chunkX)
	lock.Lock()
	defer lock.Unlock()

	existing, err := readChunk(a.root, timeChunk, chunkY, chunkX)
	if err != nil && err != errs.ErrNotFound {
		return fmt.Errorf("%w: read chunk (%d,%d,%d): %v", errs.ErrChunkStoreFailure, timeChunk, chunkY, chunkX, err)
	}
	if err == nil {
		for i, v := range existing {
			if staged[i] == 0 {
				staged[i] = v
			}
		}
	}
	if err := writeChunk(a.root, timeChunk, chunkY, chunkX, staged); err != nil {
		return fmt.Errorf("%w: write chunk (%d,%d,%d): %v", errs.ErrChunkStoreFailure, timeChunk, chunkY, chunkX, err)
	}
	return nil
}

func (a *Accumulator) lockFor(chunkY, chunkX int) *sync.Mutex {
	a.chunkLocksMu.Lock()
	defer a.chunkLocksMu.Unlock()
	key := [2]int{chunkY, chunkX}
	l, ok := a.chunkLocks[key]
	if !ok {
		l = &sync.Mutex{}
		a.chunkLocks[key] = l
	}
	return l
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
