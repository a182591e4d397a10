package repository

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

const blobSuffix = ".llb.gz"

// BlobStore persists memory units as gzip-compressed JSON blobs, one file per
// unit under <base>/memory_store/compressed/. Reads go through a ristretto
// cache keyed by memory id so hot units skip decompression.
type BlobStore struct {
	dir   string
	level int
	cache *ristretto.Cache
}

type BlobOption func(*BlobStore)

// WithCompressionLevel sets the gzip level, gzip.DefaultCompression by default.
func WithCompressionLevel(level int) BlobOption {
	return func(s *BlobStore) {
		s.level = level
	}
}

func NewBlobStore(baseDir string, cacheMaxBytes int64, opts ...BlobOption) (*BlobStore, error) {
	dir := filepath.Join(baseDir, "memory_store", "compressed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create blob directory", goerr.V("dir", dir))
	}

	if cacheMaxBytes <= 0 {
		cacheMaxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     cacheMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create blob cache")
	}

	s := &BlobStore{
		dir:   dir,
		level: gzip.DefaultCompression,
		cache: cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *BlobStore) path(id model.MemoryID) string {
	return filepath.Join(s.dir, string(id)+blobSuffix)
}

// Save writes the unit to disk and refreshes the cache entry.
func (s *BlobStore) Save(ctx context.Context, unit *model.MemoryUnit) error {
	raw, err := json.Marshal(unit)
	if err != nil {
		return goerr.Wrap(err, "failed to encode memory unit", goerr.V("memory_id", unit.ID))
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, s.level)
	if err != nil {
		return goerr.Wrap(err, "invalid compression level", goerr.V("level", s.level))
	}
	if _, err := zw.Write(raw); err != nil {
		return goerr.Wrap(err, "failed to compress memory unit", goerr.V("memory_id", unit.ID))
	}
	if err := zw.Close(); err != nil {
		return goerr.Wrap(err, "failed to finish compression", goerr.V("memory_id", unit.ID))
	}

	path := s.path(unit.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write blob", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return goerr.Wrap(err, "failed to move blob into place", goerr.V("path", path))
	}

	s.cache.Set(string(unit.ID), raw, int64(len(raw)))
	// flush the buffered set so a reload cannot observe the previous version
	s.cache.Wait()

	logging.From(ctx).Debug("saved memory blob",
		"memory_id", unit.ID,
		"raw_bytes", len(raw),
		"compressed_bytes", buf.Len(),
	)
	return nil
}

// Load reads one unit, preferring the cache. A blob that cannot be
// decompressed or decoded surfaces ErrCorruptedMemory; a missing blob
// surfaces ErrNotFound.
func (s *BlobStore) Load(ctx context.Context, id model.MemoryID) (*model.MemoryUnit, error) {
	if cached, ok := s.cache.Get(string(id)); ok {
		if raw, ok := cached.([]byte); ok {
			var unit model.MemoryUnit
			if err := json.Unmarshal(raw, &unit); err == nil {
				return &unit, nil
			}
		}
	}

	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(model.ErrNotFound, "memory blob does not exist", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to open blob", goerr.V("memory_id", id))
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, goerr.Wrap(model.ErrCorruptedMemory, "blob is not valid gzip", goerr.V("memory_id", id))
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, goerr.Wrap(model.ErrCorruptedMemory, "blob decompression failed", goerr.V("memory_id", id))
	}

	var unit model.MemoryUnit
	if err := json.Unmarshal(raw, &unit); err != nil {
		return nil, goerr.Wrap(model.ErrCorruptedMemory, "blob holds invalid JSON", goerr.V("memory_id", id))
	}

	s.cache.Set(string(id), raw, int64(len(raw)))
	return &unit, nil
}

// Delete removes the blob and drops its cache entry. Deleting a missing blob
// is not an error.
func (s *BlobStore) Delete(ctx context.Context, id model.MemoryID) error {
	s.cache.Del(string(id))
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "failed to delete blob", goerr.V("memory_id", id))
	}
	return nil
}

// List returns the ids of all persisted units, in directory order.
func (s *BlobStore) List(ctx context.Context) ([]model.MemoryID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list blob directory", goerr.V("dir", s.dir))
	}

	var ids []model.MemoryID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blobSuffix) {
			continue
		}
		ids = append(ids, model.MemoryID(strings.TrimSuffix(name, blobSuffix)))
	}
	return ids, nil
}

func (s *BlobStore) Close() {
	s.cache.Close()
}
