package snodas

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SnodasFile is the decoded identity of a raw SNODAS payload file
// (the `.dat`/`.dat.gz` member of an unpacked daily archive).
type SnodasFile struct {
	Date      time.Time
	Product   Product
	Filename  string
	IsModel   bool
	Hour      int
}

// ParsePayloadFilename decodes a raw SNODAS payload name of the form
// us_ssmvN(NNNNN)tS__T0001TTNATSYYYYMMDDHH....dat[.gz]. It is total:
// any deviation from the expected shape yields (zero, false) rather
// than an error, so batch callers can skip bad names without
// propagating anything.
func ParsePayloadFilename(filename string) (SnodasFile, bool) {
	if !strings.HasSuffix(filename, ".dat") && !strings.HasSuffix(filename, ".dat.gz") {
		return SnodasFile{}, false
	}

	base := strings.TrimSuffix(strings.TrimSuffix(filename, ".gz"), ".dat")

	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return SnodasFile{}, false
	}

	if parts[0] != "us" {
		return SnodasFile{}, false
	}

	productPart := parts[1]
	digits := extractLeadingDigitRun(productPart)
	if digits == "" {
		return SnodasFile{}, false
	}
	fullCode, err := strconv.Atoi(digits)
	if err != nil {
		return SnodasFile{}, false
	}
	productCode := fullCode % 10000

	product, ok := ProductFromCode(productCode)
	if !ok {
		return SnodasFile{}, false
	}

	isModel := strings.Contains(productPart, "Sl")

	ttnatsPos := strings.Index(base, "TTNATS")
	if ttnatsPos < 0 {
		return SnodasFile{}, false
	}
	dateStart := ttnatsPos + len("TTNATS")
	if dateStart+10 > len(base) {
		return SnodasFile{}, false
	}
	datePart := base[dateStart : dateStart+10]

	year, err := strconv.Atoi(datePart[0:4])
	if err != nil {
		return SnodasFile{}, false
	}
	month, err := strconv.Atoi(datePart[4:6])
	if err != nil {
		return SnodasFile{}, false
	}
	day, err := strconv.Atoi(datePart[6:8])
	if err != nil {
		return SnodasFile{}, false
	}
	hour, err := strconv.Atoi(datePart[8:10])
	if err != nil {
		return SnodasFile{}, false
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || date.Month() != time.Month(month) || date.Day() != day {
		return SnodasFile{}, false
	}

	return SnodasFile{
		Date:     date,
		Product:  product,
		Filename: filename,
		IsModel:  isModel,
		Hour:     hour,
	}, true
}

// extractLeadingDigitRun skips non-digit characters, then returns the
// run of digits that follows (the "take non-digits, then digits"
// rule the SNODAS product token encodes its code in).
func extractLeadingDigitRun(s string) string {
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	return s[i:j]
}

// OutputFilename returns the COG name a payload file's data should be
// written under once converted, e.g. "snodas_swe_20231201.tif".
func (f SnodasFile) OutputFilename() string {
	return fmt.Sprintf("snodas_%s_%s.tif", f.Product.Name(), f.Date.Format("20060102"))
}

// ParseCOGFilename decodes the strict COG naming form
// "snodas_<product_name>_YYYYMMDD.tif", returning the product's short
// name and the YYYYMMDD date string. It is total; any deviation
// yields (_, _, false).
func ParseCOGFilename(filename string) (productName, yyyymmdd string, ok bool) {
	const prefix = "snodas_"
	const suffix = ".tif"
	if !strings.HasPrefix(filename, prefix) || !strings.HasSuffix(filename, suffix) {
		return "", "", false
	}
	mid := filename[len(prefix) : len(filename)-len(suffix)]
	idx := strings.LastIndex(mid, "_")
	if idx < 0 {
		return "", "", false
	}
	name := mid[:idx]
	date := mid[idx+1:]
	if len(date) != 8 {
		return "", "", false
	}
	for _, c := range date {
		if c < '0' || c > '9' {
			return "", "", false
		}
	}
	return name, date, true
}

// ExtractDateFromCOGFilename is a narrower convenience used by the
// Zarr accumulator, which only ever ingests "snow_depth" COGs: it
// returns just the YYYYMMDD portion, or false if filename is not a
// well-formed COG name.
func ExtractDateFromCOGFilename(filename string) (string, bool) {
	_, date, ok := ParseCOGFilename(filename)
	return date, ok
}

// ParseProductIDs parses a comma-separated list of numeric product
// codes, silently dropping
// any token that isn't a recognized product code.
func ParseProductIDs(input string) []Product {
	var out []Product
	for _, tok := range strings.Split(input, ",") {
		tok = strings.TrimSpace(tok)
		code, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if p, ok := ProductFromCode(code); ok {
			out = append(out, p)
		}
	}
	return out
}
