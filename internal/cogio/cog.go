// Package cogio is the COG Reader Adapter: it opens a Cloud-Optimized
// GeoTIFF, reports its size and affine transform, and reads pixel
// windows as signed 16-bit values. Reads that straddle the raster
// edge are rejected; callers are responsible for clamping window
// requests to the raster bounds.
package cogio

import (
	"fmt"

	"github.com/airbusgeo/godal"
	tiff "github.com/google/tiff"
	lru "github.com/hashicorp/golang-lru/v2"
)

// GeoTransform is the affine mapping from pixel (col, row) to
// geographic (x, y): x = ox + col*px, y = oy + row*py. py is
// negative for north-up rasters, matching spec.md's
// "(ox, px, _, oy, _, py)" contract.
type GeoTransform struct {
	OriginX, PixelWidth  float64
	OriginY, PixelHeight float64
}

// transformCache memoizes parsed geotransforms by the path passed to
// Open: both the time-series extractor and the Zarr accumulator open
// the same COGs within a single run. A cache hit skips only the
// geotransform query; Open still parses the TIFF and opens the GDAL
// dataset every time.
var transformCache, _ = lru.New[string, GeoTransform](512)

// Handle is an open COG ready for windowed pixel reads.
type Handle struct {
	path    string
	dataset *godal.Dataset
	width   int
	height  int
	xform   GeoTransform
}

// Open validates that path is a tiled TIFF and opens it; the band
// count is not checked, and ReadWindow reads band 1. The
// tiled-layout sanity check mirrors loader.go's sanityCheckIFD: a
// stripped (non-tiled) TIFF is rejected as "cannot open" before any
// pixel read is attempted.
func Open(path string) (*Handle, error) {
	if err := sanityCheckTiled(path); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}

	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}

	structure := ds.Structure()
	gt, err := geoTransformFor(path, ds)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}

	return &Handle{
		path:    path,
		dataset: ds,
		width:   structure.SizeX,
		height:  structure.SizeY,
		xform:   gt,
	}, nil
}

func geoTransformFor(path string, ds *godal.Dataset) (GeoTransform, error) {
	if cached, ok := transformCache.Get(path); ok {
		return cached, nil
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return GeoTransform{}, fmt.Errorf("geotransform: %w", err)
	}
	out := GeoTransform{
		OriginX:    gt[0],
		PixelWidth: gt[1],
		OriginY:    gt[3],
		PixelHeight: gt[5],
	}
	transformCache.Add(path, out)
	return out, nil
}

// sanityCheckTiled opens the file with the pure-Go TIFF parser and
// rejects stripped layouts, exactly as loader.go's sanityCheckIFD does
// for COG inputs to the teacher's rewriter: a COG must be tiled for
// windowed reads to be efficient, and a stripped file indicates the
// upstream envi_to_cog step was misconfigured. It checks tags 324/325
// (TileOffsets/TileByteCounts) are present and tags 272/279
// (StripOffsets/StripByteCounts) are absent, the same fields
// sanityCheckIFD checks.
func sanityCheckTiled(path string) error {
	r, err := tiffOpenReadAt(path)
	if err != nil {
		return err
	}
	defer r.Close()

	tif, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return fmt.Errorf("parse tiff: %w", err)
	}
	for _, ifd := range tif.IFDs() {
		if ifd.GetField(324) == nil || ifd.GetField(325) == nil {
			return fmt.Errorf("ifd is not tiled (missing TileOffsets/TileByteCounts)")
		}
		if ifd.GetField(272) != nil || ifd.GetField(279) != nil {
			return fmt.Errorf("ifd has strips (StripOffsets/StripByteCounts present)")
		}
	}
	return nil
}

// Size returns the raster's (width, height) in pixels.
func (h *Handle) Size() (int, int) { return h.width, h.height }

// Transform returns the affine geotransform.
func (h *Handle) Transform() GeoTransform { return h.xform }

// ReadWindow fills out (row-major, length w*h) with the signed 16-bit
// pixel values of band 1 in the window starting at (x0, y0) with size
// (w, h). The window must lie entirely within the raster; callers
// clamp before calling.
func (h *Handle) ReadWindow(x0, y0, w, h2 int) ([]int16, error) {
	if x0 < 0 || y0 < 0 || w <= 0 || h2 <= 0 || x0+w > h.width || y0+h2 > h.height {
		return nil, fmt.Errorf("read failed: window (%d,%d,%d,%d) out of raster bounds (%d,%d)", x0, y0, w, h2, h.width, h.height)
	}
	band := h.dataset.Bands()[0]
	buf := make([]int16, w*h2)
	if err := band.Read(x0, y0, buf, w, h2); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return buf, nil
}

// Close releases the underlying GDAL dataset handle. It must be
// called before the caller's task yields its chunk result, per the
// resource-scoping rule in §5 of the spec.
func (h *Handle) Close() error {
	h.dataset.Close()
	return nil
}
