// Package snodas decodes SNODAS product codes, bounding boxes, and
// filenames. It performs no I/O.
package snodas

import "time"

// Fixed masked-grid geometry for every SNODAS raster, regardless of
// product or date.
const (
	MaskedCols  = 6935
	MaskedRows  = 3351
	NodataValue = -9999
)

// CoordinateShiftDate is the day NSIDC's published bounding box
// changed its rounding. Dates on or after this shift use BBoxPost2013.
var CoordinateShiftDate = time.Date(2013, time.October, 1, 0, 0, 0, 0, time.UTC)

// Product is a closed enumeration of SNODAS product codes.
type Product int

const (
	Swe                 Product = 1034
	SnowDepth           Product = 1036
	SnowMeltRunoff      Product = 1044
	Sublimation         Product = 1050
	SublimationBlowing  Product = 1039
	Precipitation       Product = 1025
	SnowpackAverageTemp Product = 1038
)

// ProductFromCode returns the Product for a raw numeric code, or false
// if the code is not one of the known SNODAS products.
func ProductFromCode(code int) (Product, bool) {
	switch Product(code) {
	case Swe, SnowDepth, SnowMeltRunoff, Sublimation, SublimationBlowing, Precipitation, SnowpackAverageTemp:
		return Product(code), true
	default:
		return 0, false
	}
}

// Code returns the raw numeric SNODAS product code.
func (p Product) Code() int { return int(p) }

// Name returns the stable short name used in CogName and Zarr array
// paths, e.g. "snow_depth".
func (p Product) Name() string {
	switch p {
	case Swe:
		return "swe"
	case SnowDepth:
		return "snow_depth"
	case SnowMeltRunoff:
		return "snow_melt_runoff"
	case Sublimation:
		return "sublimation"
	case SublimationBlowing:
		return "sublimation_blowing"
	case Precipitation:
		return "precipitation"
	case SnowpackAverageTemp:
		return "snowpack_avg_temp"
	default:
		return ""
	}
}

func (p Product) String() string { return p.Name() }

// ScaleFactor is the divisor applied to raw SNODAS integer values to
// recover physical units.
func (p Product) ScaleFactor() float64 {
	switch p {
	case SnowMeltRunoff, Sublimation, SublimationBlowing:
		return 100000.0
	case Precipitation:
		return 10.0
	default:
		return 1.0
	}
}

// BoundingBox is a geographic extent in decimal degrees.
type BoundingBox struct {
	West, East, North, South float64
}

// PixelSizeX is the west-to-east pixel width in degrees.
func (b BoundingBox) PixelSizeX() float64 {
	return (b.East - b.West) / float64(MaskedCols)
}

// PixelSizeY is the north-to-south pixel height in degrees (negative:
// rows increase southward while Y decreases).
func (b BoundingBox) PixelSizeY() float64 {
	return (b.South - b.North) / float64(MaskedRows)
}

var (
	BBoxPre2013 = BoundingBox{
		West: -124.73375, East: -66.94208, North: 52.87458, South: 24.94958,
	}
	BBoxPost2013 = BoundingBox{
		West: -124.73333333333333, East: -66.94166666666666, North: 52.875, South: 24.95,
	}
)

// BBoxFor selects the bounding box in effect for date, per the
// coordinate shift on CoordinateShiftDate.
func BBoxFor(date time.Time) BoundingBox {
	if date.Before(CoordinateShiftDate) {
		return BBoxPre2013
	}
	return BBoxPost2013
}
