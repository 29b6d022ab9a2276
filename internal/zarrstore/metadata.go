package zarrstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brandonfcohen1/gnarmap/internal/snodas"
)

// Fixed chunking for the snow_depth array, per spec.md §3.
const (
	ChunkTime = 365
	ChunkY    = 256
	ChunkX    = 256

	arrayName = "snow_depth"
)

// groupMetadata is the Zarr v3 root group's zarr.json.
type groupMetadata struct {
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
}

// chunkGrid and chunkKeyEncoding mirror the subset of
// Zarr v3 core metadata this store needs to round-trip through its
// own reader; they are not a general-purpose Zarr v3 implementation.
type chunkGrid struct {
	Name          string           `json:"name"`
	Configuration chunkGridConfig  `json:"configuration"`
}

type chunkGridConfig struct {
	ChunkShape []int `json:"chunk_shape"`
}

type chunkKeyEncoding struct {
	Name          string                 `json:"name"`
	Configuration chunkKeyEncodingConfig `json:"configuration"`
}

type chunkKeyEncodingConfig struct {
	Separator string `json:"separator"`
}

type codecSpec struct {
	Name          string          `json:"name"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

type arrayMetadata struct {
	ZarrFormat       int              `json:"zarr_format"`
	NodeType         string           `json:"node_type"`
	Shape            []int            `json:"shape"`
	DataType         string           `json:"data_type"`
	ChunkGrid        chunkGrid        `json:"chunk_grid"`
	ChunkKeyEncoding chunkKeyEncoding `json:"chunk_key_encoding"`
	FillValue        int              `json:"fill_value"`
	Codecs           []codecSpec      `json:"codecs"`
	DimensionNames   []string         `json:"dimension_names"`
	Attributes       map[string]any   `json:"attributes"`
}

func newArrayMetadata(numDates int) arrayMetadata {
	gzipConf, _ := json.Marshal(map[string]int{"level": 6})
	return arrayMetadata{
		ZarrFormat: 3,
		NodeType:   "array",
		Shape:      []int{numDates, snodas.MaskedRows, snodas.MaskedCols},
		DataType:   "int16",
		ChunkGrid: chunkGrid{
			Name:          "regular",
			Configuration: chunkGridConfig{ChunkShape: []int{ChunkTime, ChunkY, ChunkX}},
		},
		ChunkKeyEncoding: chunkKeyEncoding{
			Name:          "default",
			Configuration: chunkKeyEncodingConfig{Separator: "/"},
		},
		FillValue: 0,
		Codecs: []codecSpec{
			{Name: "bytes"},
			{Name: "gzip", Configuration: gzipConf},
		},
		DimensionNames: []string{"time", "y", "x"},
		Attributes: map[string]any{
			"units":  "mm",
			"nodata": snodas.NodataValue,
			"crs":    "EPSG:4326",
			"bounds": map[string]float64{
				"west":  snodas.BBoxPost2013.West,
				"east":  snodas.BBoxPost2013.East,
				"north": snodas.BBoxPost2013.North,
				"south": snodas.BBoxPost2013.South,
			},
		},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	return atomicWriteFile(path, data)
}

// atomicWriteFile writes data to a temp file in the same directory
// as path and renames it into place, so dates.json and every
// zarr.json are never observed half-written.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file for %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

func readArrayMetadata(path string) (arrayMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return arrayMetadata{}, err
	}
	var m arrayMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return arrayMetadata{}, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return m, nil
}
