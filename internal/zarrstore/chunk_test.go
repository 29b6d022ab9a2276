package zarrstore

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeChunkRoundTrip(t *testing.T) {
	values := make([]int16, ChunkTime*ChunkY*ChunkX)
	values[0] = 100
	values[365*256*256-1] = -42

	encoded, err := encodeChunk(values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeChunk(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(values, decoded) {
		t.Errorf("round trip mismatch")
	}
}

func TestChunkKey(t *testing.T) {
	if got, want := chunkKey(0, 3, 7), "snow_depth/c/0/3/7"; got != want {
		t.Errorf("chunkKey = %q, want %q", got, want)
	}
}

func TestReadChunkNotFound(t *testing.T) {
	if _, err := readChunk(t.TempDir(), 0, 0, 0); err == nil {
		t.Errorf("expected error for missing chunk")
	}
}

func TestWriteReadChunk(t *testing.T) {
	root := t.TempDir()
	values := make([]int16, ChunkTime*ChunkY*ChunkX)
	values[100] = 7

	if err := writeChunk(root, 0, 3, 7, values); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readChunk(root, 0, 3, 7)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got[100] != 7 {
		t.Errorf("got[100] = %d, want 7", got[100])
	}
}
