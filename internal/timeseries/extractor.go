// Package timeseries is the Time-Series Extractor: it samples each
// COG at a coarse lat/lng grid, accumulates per-cell series
// concurrently, and serializes the result to JSON with an index.
package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/tbonfort/gobs"
	"go.uber.org/zap"

	"github.com/brandonfcohen1/gnarmap/internal/cogio"
	"github.com/brandonfcohen1/gnarmap/internal/snodas"
)

// Entry is one sampled (date, value) pair for a grid cell.
type Entry struct {
	Date  string `json:"date"`
	Value int16  `json:"value"`
}

// GridPoint is a generated sample location, already rounded to one
// decimal degree.
type GridPoint struct {
	Lat, Lng float64
}

// GridID is the stable per-cell identifier, "{lat:.1}_{lng:.1}".
func (p GridPoint) GridID() string {
	return fmt.Sprintf("%s_%s", formatOneDecimal(p.Lat), formatOneDecimal(p.Lng))
}

func formatOneDecimal(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
}

// GenerateGrid returns every distinct grid point on the post-2013
// bounding box at resolution degrees, stepping from south to north
// and west to east, each coordinate rounded to one decimal and
// deduplicated by GridID. Resolving spec.md §9 Open Question #2 as
// "(b) deduplicate": stepping by a non-decadic resolution and then
// rounding to one decimal can otherwise produce repeated grid ids.
func GenerateGrid(resolution float64) []GridPoint {
	bbox := snodas.BBoxPost2013
	seen := make(map[string]bool)
	var out []GridPoint
	for lat := bbox.South; lat <= bbox.North; lat += resolution {
		for lng := bbox.West; lng <= bbox.East; lng += resolution {
			p := GridPoint{Lat: math.Round(lat*10) / 10, Lng: math.Round(lng*10) / 10}
			id := p.GridID()
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, p)
		}
	}
	return out
}

// Extractor accumulates per-cell time series across many COGs
// processed concurrently. shards is a sharded map keyed by grid id,
// the Go analogue of the Rust implementation's DashMap.
type Extractor struct {
	resolution float64
	grid       []GridPoint
	existing   map[string]bool

	shards []shard
	logger *zap.SugaredLogger
}

type shard struct {
	mu   sync.Mutex
	data map[string][]Entry
}

const numShards = 32

// NewExtractor builds an Extractor over a grid generated at
// resolution, with existingDates marking COG dates already present in
// a prior run (so a rerun can skip them, matching the idempotent
// per-COG sampling step of spec.md §4.E).
func NewExtractor(resolution float64, existingDates []string, logger *zap.SugaredLogger) *Extractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	existing := make(map[string]bool, len(existingDates))
	for _, d := range existingDates {
		existing[d] = true
	}
	shards := make([]shard, numShards)
	for i := range shards {
		shards[i].data = make(map[string][]Entry)
	}
	return &Extractor{
		resolution: resolution,
		grid:       GenerateGrid(resolution),
		existing:   existing,
		shards:     shards,
		logger:     logger,
	}
}

func shardFor(gridID string) int {
	h := 0
	for i := 0; i < len(gridID); i++ {
		h = h*31 + int(gridID[i])
	}
	if h < 0 {
		h = -h
	}
	return h % numShards
}

func (e *Extractor) append(gridID string, entry Entry) {
	s := &e.shards[shardFor(gridID)]
	s.mu.Lock()
	s.data[gridID] = append(s.data[gridID], entry)
	s.mu.Unlock()
}

// ProcessCOGs samples every COG in cogDir (named
// snodas_<product>_YYYYMMDD.tif) against the grid, in parallel across
// files via a gobs worker pool, skipping any date already present in
// existingDates.
func (e *Extractor) ProcessCOGs(ctx context.Context, cogDir string) error {
	entries, err := os.ReadDir(cogDir)
	if err != nil {
		return fmt.Errorf("read cog dir: %w", err)
	}

	pool := gobs.NewPool(runtime.NumCPU())
	batch := pool.Batch()
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		path := filepath.Join(cogDir, name)
		batch.Submit(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := e.processCOG(path, name); err != nil {
				e.logger.Warnf("skip %s: %v", name, err)
			}
			return nil
		})
	}
	return batch.Wait()
}

func (e *Extractor) processCOG(path, name string) error {
	_, date, ok := snodas.ParseCOGFilename(name)
	if !ok {
		e.logger.Debugf("skip %s: not a recognized cog name", name)
		return nil
	}
	if e.existing[date] {
		return nil
	}

	handle, err := cogio.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer handle.Close()

	width, height := handle.Size()
	xform := handle.Transform()

	for _, p := range e.grid {
		px := int(math.Floor((p.Lng - xform.OriginX) / xform.PixelWidth))
		py := int(math.Floor((p.Lat - xform.OriginY) / xform.PixelHeight))
		if px < 0 || py < 0 || px >= width || py >= height {
			continue
		}
		values, err := handle.ReadWindow(px, py, 1, 1)
		if err != nil {
			continue
		}
		if values[0] == snodas.NodataValue {
			continue
		}
		e.append(p.GridID(), Entry{Date: date, Value: values[0]})
	}
	return nil
}

// GridPointCount returns len(grid), the number of distinct sample
// locations.
func (e *Extractor) GridPointCount() int { return len(e.grid) }

// DataPointCount returns the total number of (date, value) samples
// accumulated across every cell so far.
func (e *Extractor) DataPointCount() int {
	total := 0
	for i := range e.shards {
		e.shards[i].mu.Lock()
		for _, entries := range e.shards[i].data {
			total += len(entries)
		}
		e.shards[i].mu.Unlock()
	}
	return total
}

// indexEntry is the summary document written as timeseries/index.json.
type indexEntry struct {
	Resolution float64         `json:"resolution"`
	Bounds     snodas.BoundingBox `json:"bounds"`
	CellCount  int             `json:"cell_count"`
	DateRange  dateRange       `json:"date_range"`
}

type dateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type cellDocument struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Data []Entry `json:"data"`
}

// WriteOutput finalizes every cell's series (sort + dedup by date,
// keeping one entry per date since inputs are deterministic) and
// writes timeseries/grid_<id>.json plus timeseries/index.json under
// outputDir.
func (e *Extractor) WriteOutput(outputDir string) error {
	tsDir := filepath.Join(outputDir, "timeseries")
	if err := os.MkdirAll(tsDir, 0o755); err != nil {
		return fmt.Errorf("create timeseries dir: %w", err)
	}

	var globalMin, globalMax string
	cellCount := 0

	for _, p := range e.grid {
		id := p.GridID()
		s := &e.shards[shardFor(id)]
		s.mu.Lock()
		entries := append([]Entry(nil), s.data[id]...)
		s.mu.Unlock()
		if len(entries) == 0 {
			continue
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
		entries = dedupByDate(entries)

		if globalMin == "" || entries[0].Date < globalMin {
			globalMin = entries[0].Date
		}
		if last := entries[len(entries)-1].Date; globalMax == "" || last > globalMax {
			globalMax = last
		}

		doc := cellDocument{Lat: p.Lat, Lng: p.Lng, Data: entries}
		if err := writeJSONFile(filepath.Join(tsDir, fmt.Sprintf("grid_%s.json", id)), doc); err != nil {
			return err
		}
		cellCount++
	}

	idx := indexEntry{
		Resolution: e.resolution,
		Bounds:     snodas.BBoxPost2013,
		CellCount:  cellCount,
		DateRange:  dateRange{Start: globalMin, End: globalMax},
	}
	return writeJSONFile(filepath.Join(tsDir, "index.json"), idx)
}

func dedupByDate(entries []Entry) []Entry {
	out := entries[:0:0]
	var lastDate string
	for i, e := range entries {
		if i == 0 || e.Date != lastDate {
			out = append(out, e)
			lastDate = e.Date
		}
	}
	return out
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
