// Package objectstore is the Object Store Adapter: a uniform get/put/
// list surface over a local filesystem or an S3-compatible endpoint.
// It is the only boundary through which the Zarr accumulator and the
// remote append orchestrator touch remote state.
package objectstore

import "context"

// Store is implemented by LocalStore and S3Store.
type Store interface {
	// Put writes bytes under key with the given content type.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get reads the bytes stored under key. It returns
	// internal/errs.ErrNotFound, wrapped, if key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns keys under prefix, relative to prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// PutFile uploads the contents of localPath under key.
	PutFile(ctx context.Context, localPath, key string) error
	// GetFile downloads key to localPath, creating parent directories
	// as needed.
	GetFile(ctx context.Context, key, localPath string) error
}

// joinKey implements the single prefix-joining rule both backends
// share (spec.md §9 Open Question #1): an empty prefix leaves key
// untouched; otherwise the prefix's trailing slash is trimmed and a
// single slash is inserted.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	trimmed := prefix
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed + "/" + key
}

// ContentTypeFor returns "application/json" for *.json keys and
// "application/octet-stream" otherwise, the rule the remote append
// orchestrator applies when walking a staging directory for upload.
func ContentTypeFor(key string) string {
	if len(key) >= 5 && key[len(key)-5:] == ".json" {
		return "application/json"
	}
	return "application/octet-stream"
}
