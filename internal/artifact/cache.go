// Package artifact implements the Stage Artifact cache: a content-addressed
// mapping from a stage's canonical input fingerprint to its output artifact,
// backed by files under {cache_root}/{stage}/{key}.json. Artifacts are
// immutable; a cache hit short-circuits a stage.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Cache is a file-backed, content-addressed artifact store with an
// in-process index for fast existence checks without a stat call on every
// lookup.
type Cache struct {
	root string

	mu    sync.RWMutex
	index map[string]struct{} // "stage/key" -> present
}

// New creates (if absent) the cache root directory and builds the
// in-process index from whatever is already on disk.
func New(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating cache root %s: %w", root, err)
	}
	c := &Cache{root: root, index: make(map[string]struct{})}
	if err := c.rebuildIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) rebuildIndex() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("artifact: reading cache root: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, stageDir := range entries {
		if !stageDir.IsDir() {
			continue
		}
		stagePath := filepath.Join(c.root, stageDir.Name())
		files, err := os.ReadDir(stagePath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			key := strings.TrimSuffix(f.Name(), ".json")
			c.index[stageDir.Name()+"/"+key] = struct{}{}
		}
	}
	return nil
}

func (c *Cache) path(stage, key string) string {
	return filepath.Join(c.root, stage, key+".json")
}

// Has reports whether an artifact exists for (stage, key) without touching
// disk, consulting the in-process index only.
func (c *Cache) Has(stage, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[stage+"/"+key]
	return ok
}

// Get reads the cached artifact for (stage, key) into dest. found is false
// on a cache miss, including when the index says present but the file has
// since been removed out-of-band.
func (c *Cache) Get(ctx context.Context, stage, key string, dest any) (found bool, err error) {
	if !c.Has(stage, key) {
		return false, nil
	}
	data, err := os.ReadFile(c.path(stage, key))
	if os.IsNotExist(err) {
		c.mu.Lock()
		delete(c.index, stage+"/"+key)
		c.mu.Unlock()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("artifact: reading %s/%s: %w", stage, key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("artifact: unmarshaling %s/%s: %w", stage, key, err)
	}
	return true, nil
}

// Put writes value as the artifact for (stage, key). Artifacts are
// immutable in practice (a given (stage, key) fingerprint always maps to the
// same content), but Put does not itself enforce that — callers only write
// once a stage has actually produced output for that key.
func (c *Cache) Put(ctx context.Context, stage, key string, value any) error {
	dir := filepath.Join(c.root, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: creating stage dir %s: %w", stage, err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("artifact: marshaling %s/%s: %w", stage, key, err)
	}

	tmp := c.path(stage, key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("artifact: writing %s/%s: %w", stage, key, err)
	}
	if err := os.Rename(tmp, c.path(stage, key)); err != nil {
		return fmt.Errorf("artifact: committing %s/%s: %w", stage, key, err)
	}

	c.mu.Lock()
	c.index[stage+"/"+key] = struct{}{}
	c.mu.Unlock()
	return nil
}

// InvalidateStage removes every cached artifact under stage, letting an
// operator bulk-invalidate one stage's cache without restarting the
// process, via a prefix scan over the in-process index plus a directory
// removal.
func (c *Cache) InvalidateStage(stage string) error {
	dir := filepath.Join(c.root, stage)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("artifact: invalidating stage %s: %w", stage, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := stage + "/"
	for k := range c.index {
		if strings.HasPrefix(k, prefix) {
			delete(c.index, k)
		}
	}
	return nil
}
