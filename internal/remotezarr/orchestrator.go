// Package remotezarr is the Remote Zarr Append Orchestrator: it lets
// a Zarr store live primarily in object storage while the
// zarrstore.Accumulator only ever operates on a local staging
// directory. It fetches only the time chunks affected by new dates
// (plus the array metadata), runs the accumulator locally, and
// uploads every staged object back.
package remotezarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandonfcohen1/gnarmap/internal/errs"
	"github.com/brandonfcohen1/gnarmap/internal/objectstore"
	"github.com/brandonfcohen1/gnarmap/internal/snodas"
	"github.com/brandonfcohen1/gnarmap/internal/zarrstore"
)

const chunkTime = zarrstore.ChunkTime

// metadataKeys are fetched unconditionally (when present) alongside
// affected chunks, since a resize can rewrite the array's zarr.json.
var metadataKeys = []string{"zarr.json", "snow_depth/zarr.json"}

// fetchConcurrency bounds the async I/O fan-out for chunk downloads
// and uploads, per spec.md §5's "async I/O... cooperative" layer.
const fetchConcurrency = 8

// ProcessRemote implements spec.md §4.G's eight-step protocol: stage,
// fetch affected chunks, run the local accumulator, upload the staged
// objects, remove the staging directory. It returns the count of
// COGs successfully processed.
func ProcessRemote(ctx context.Context, cogDir string, store objectstore.Store, stagingRoot string, logger *zap.SugaredLogger) (int, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	staging := filepath.Join(stagingRoot, "gnarmap-remote-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	existing, hadExisting, err := fetchExistingDates(ctx, store, staging)
	if err != nil {
		return 0, fmt.Errorf("fetch existing dates: %w", err)
	}

	newDates, err := enumerateNewDates(cogDir, existing)
	if err != nil {
		return 0, fmt.Errorf("enumerate new dates: %w", err)
	}
	if len(newDates) == 0 {
		logger.Info("no new dates to process")
		return 0, nil
	}

	if hadExisting {
		affected := AffectedTimeChunks(existing, newDates)
		logger.Infof("fetching %d affected time chunks from remote store", len(affected))
		if err := fetchAffectedChunks(ctx, store, staging, affected); err != nil {
			return 0, fmt.Errorf("fetch affected chunks: %w", err)
		}
		if err := fetchMetadataKeys(ctx, store, staging); err != nil {
			return 0, fmt.Errorf("fetch array metadata: %w", err)
		}
	}

	var acc *zarrstore.Accumulator
	if hadExisting {
		acc, err = zarrstore.Open(staging, logger)
	} else {
		acc, err = zarrstore.Create(staging, logger)
	}
	if err != nil {
		return 0, fmt.Errorf("open local accumulator: %w", err)
	}

	processed, err := acc.ProcessCOGs(ctx, cogDir, hadExisting)
	if err != nil {
		return processed, fmt.Errorf("process cogs: %w", err)
	}

	logger.Info("uploading modified chunks to remote store")
	if err := uploadModified(ctx, store, staging); err != nil {
		return processed, fmt.Errorf("upload modified objects: %w", err)
	}

	return processed, nil
}

// fetchExistingDates attempts to load dates.json from the remote
// store into the staging directory. A NotFound error is treated as
// "fresh remote store" (hadExisting=false), not a failure.
func fetchExistingDates(ctx context.Context, store objectstore.Store, staging string) (dates []string, hadExisting bool, err error) {
	data, err := store.Get(ctx, "dates.json")
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := os.WriteFile(filepath.Join(staging, "dates.json"), data, 0o644); err != nil {
		return nil, false, fmt.Errorf("write staged dates.json: %w", err)
	}
	if err := json.Unmarshal(data, &dates); err != nil {
		return nil, false, fmt.Errorf("unmarshal dates.json: %w", err)
	}
	return dates, true, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}

// enumerateNewDates lists snow_depth COG dates in cogDir and returns
// those not already present in existing, ascending.
func enumerateNewDates(cogDir string, existing []string) ([]string, error) {
	entries, err := os.ReadDir(cogDir)
	if err != nil {
		return nil, err
	}
	existingSet := make(map[string]bool, len(existing))
	for _, d := range existing {
		existingSet[d] = true
	}

	var newDates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 4 || name[len(name)-4:] != ".tif" {
			continue
		}
		product, date, ok := snodas.ParseCOGFilename(name)
		if !ok || product != snodas.SnowDepth.Name() {
			continue
		}
		if !existingSet[date] {
			newDates = append(newDates, date)
		}
	}
	sort.Strings(newDates)
	return dedupSorted(newDates), nil
}

func dedupSorted(dates []string) []string {
	out := dates[:0:0]
	var last string
	for i, d := range dates {
		if i == 0 || d != last {
			out = append(out, d)
			last = d
		}
	}
	return out
}

// AffectedTimeChunks computes { p(d)/365 : d in newDates }, where
// p(d) is d's position in sort(existing ∪ newDates) — spec.md §4.G
// step 4 and §8's "affected-time-chunk set" property, grounded on
// original_source's get_affected_time_chunks.
func AffectedTimeChunks(existing, newDates []string) []int {
	all := make([]string, 0, len(existing)+len(newDates))
	all = append(all, existing...)
	all = append(all, newDates...)
	sort.Strings(all)

	positions := make(map[string]int, len(all))
	for i, d := range all {
		if _, ok := positions[d]; !ok {
			positions[d] = i
		}
	}

	chunkSet := map[int]bool{}
	for _, d := range newDates {
		chunkSet[positions[d]/chunkTime] = true
	}

	chunks := make([]int, 0, len(chunkSet))
	for c := range chunkSet {
		chunks = append(chunks, c)
	}
	sort.Ints(chunks)
	return chunks
}

func fetchAffectedChunks(ctx context.Context, store objectstore.Store, staging string, affected []int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, chunkIdx := range affected {
		chunkIdx := chunkIdx
		prefix := fmt.Sprintf("snow_depth/c/%d/", chunkIdx)
		keys, err := store.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, k := range keys {
			k := k
			g.Go(func() error {
				remoteKey := prefix + k
				localPath := filepath.Join(staging, filepath.FromSlash(remoteKey))
				return store.GetFile(ctx, remoteKey, localPath)
			})
		}
	}
	return g.Wait()
}

func fetchMetadataKeys(ctx context.Context, store objectstore.Store, staging string) error {
	for _, key := range metadataKeys {
		localPath := filepath.Join(staging, filepath.FromSlash(key))
		if err := store.GetFile(ctx, key, localPath); err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// uploadModified walks staging and puts every file back under the
// store, keyed by its path relative to staging, with the
// application/json vs application/octet-stream content-type rule
// spec.md §4.G step 7 and original_source's upload_zarr_to_r2 both
// apply. dates.json is uploaded last among the walked files is not
// separately guaranteed by WalkDir's lexical order (chunk files sort
// before "dates.json" is false in general), so it is uploaded in an
// explicit final pass after every other file succeeds, preserving the
// crash-safety ordering of §5: the axis pointer is the last write.
func uploadModified(ctx context.Context, store objectstore.Store, staging string) error {
	var datesPath string

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	err := filepath.WalkDir(staging, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}
		relSlash := filepath.ToSlash(rel)
		if relSlash == "dates.json" {
			datesPath = path
			return nil
		}
		g.Go(func() error {
			return store.PutFile(ctx, path, relSlash)
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk staging dir: %w", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if datesPath != "" {
		if err := store.PutFile(ctx, datesPath, "dates.json"); err != nil {
			return fmt.Errorf("upload dates.json: %w", err)
		}
	}
	return nil
}
