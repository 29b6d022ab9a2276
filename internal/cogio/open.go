package cogio

import "os"

// tiffOpenReadAt opens path for the pure-Go TIFF parser, which wants a
// tiff.ReadAtReadSeeker (ReadAt + Seek + Read); *os.File satisfies
// that directly, same as loader.go's callers pass os.File values in.
func tiffOpenReadAt(path string) (*os.File, error) {
	return os.Open(path)
}
