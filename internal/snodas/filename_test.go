package snodas

import (
	"testing"
	"time"
)

func TestParsePayloadFilename(t *testing.T) {
	f, ok := ParsePayloadFilename("us_ssmv11034tS__T0001TTNATS2023120105HP001.dat.gz")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if f.Product != Swe {
		t.Errorf("product = %v, want Swe", f.Product)
	}
	want := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	if !f.Date.Equal(want) {
		t.Errorf("date = %v, want %v", f.Date, want)
	}
	if f.IsModel {
		t.Errorf("expected IsModel=false")
	}
	if f.Hour != 5 {
		t.Errorf("hour = %d, want 5", f.Hour)
	}
}

func TestParsePayloadFilenameModel(t *testing.T) {
	f, ok := ParsePayloadFilename("us_ssmv01036SlL01T0024TTNATS2024010105DP001.dat.gz")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if f.Product != SnowDepth {
		t.Errorf("product = %v, want SnowDepth", f.Product)
	}
	if !f.IsModel {
		t.Errorf("expected IsModel=true")
	}
}

func TestParsePayloadFilenameRejects(t *testing.T) {
	cases := []string{
		"",
		"not_a_snodas_file.txt",
		"ca_ssmv11034tS__T0001TTNATS2023120105HP001.dat.gz", // wrong region
		"us_ssmv19999tS__T0001TTNATS2023120105HP001.dat.gz", // unknown product
		"us_ssmv11034tS__T0001NOMARKER2023120105HP001.dat.gz",
	}
	for _, c := range cases {
		if _, ok := ParsePayloadFilename(c); ok {
			t.Errorf("expected parse to fail for %q", c)
		}
	}
}

func TestParseCOGFilename(t *testing.T) {
	name, date, ok := ParseCOGFilename("snodas_snow_depth_20231201.tif")
	if !ok || name != "snow_depth" || date != "20231201" {
		t.Errorf("got (%q, %q, %v)", name, date, ok)
	}

	if _, _, ok := ParseCOGFilename("snow_depth_20231201.tif"); ok {
		t.Errorf("expected missing prefix to fail")
	}
	if _, _, ok := ParseCOGFilename("snodas_snow_depth_2023120.tif"); ok {
		t.Errorf("expected short date to fail")
	}
}

func TestExtractDateFromCOGFilename(t *testing.T) {
	date, ok := ExtractDateFromCOGFilename("snodas_snow_depth_20231201.tif")
	if !ok || date != "20231201" {
		t.Errorf("got (%q, %v)", date, ok)
	}
}

func TestBBoxSelection(t *testing.T) {
	pre := time.Date(2013, time.September, 30, 0, 0, 0, 0, time.UTC)
	post := time.Date(2013, time.October, 1, 0, 0, 0, 0, time.UTC)

	if got := BBoxFor(pre); got != BBoxPre2013 {
		t.Errorf("BBoxFor(pre) = %+v, want %+v", got, BBoxPre2013)
	}
	if got := BBoxFor(post); got != BBoxPost2013 {
		t.Errorf("BBoxFor(post) = %+v, want %+v", got, BBoxPost2013)
	}
}

func TestOutputFilename(t *testing.T) {
	f := SnodasFile{Product: Swe, Date: time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)}
	if got, want := f.OutputFilename(), "snodas_swe_20231201.tif"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
