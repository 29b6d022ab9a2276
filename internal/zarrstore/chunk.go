package zarrstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/brandonfcohen1/gnarmap/internal/errs"
)

// chunkKey returns the store-relative key for chunk (t, y, x), in the
// zarr v3 default chunk key grid: "<array>/c/<t>/<y>/<x>".
func chunkKey(t, y, x int) string {
	return filepath.ToSlash(filepath.Join(arrayName, "c", itoa(t), itoa(y), itoa(x)))
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// encodeChunk serializes a (365*256*256) int16 chunk buffer as
// little-endian bytes, then gzip level 6, matching the array's
// [bytes, gzip(6)] codec chain.
func encodeChunk(values []int16) ([]byte, error) {
	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeChunk(data []byte) ([]int16, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(zr); err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	raw := buf.Bytes()
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("corrupt chunk: odd byte length %d", len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out, nil
}

// readChunk loads chunk (t, y, x) from root, or returns
// (nil, errs.ErrNotFound) if it has never been written.
func readChunk(root string, t, y, x int) ([]int16, error) {
	path := filepath.Join(root, filepath.FromSlash(chunkKey(t, y, x)))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("read chunk: %w", err)
	}
	return decodeChunk(data)
}

// writeChunk stores values as chunk (t, y, x) under root.
func writeChunk(root string, t, y, x int, values []int16) error {
	encoded, err := encodeChunk(values)
	if err != nil {
		return err
	}
	path := filepath.Join(root, filepath.FromSlash(chunkKey(t, y, x)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for chunk: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	return nil
}
