package vectorstore

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	graphFileExt = ".graph"
	metaFileExt  = ".meta"
)

type hnswMetadata struct {
	Dims    int
	IDMap   map[string]uint64
	NextKey uint64
	Items   map[string]StoredItem
}

// Save writes every collection changed since the last save. Files are
// written to a temp path and renamed into place.
func (b *HNSWBackend) Save() error {
	if b.cfg.Dir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, col := range b.collections {
		if !col.dirty {
			continue
		}
		if err := b.saveCollection(name, col); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveCollection expects b.mu to be held.
func (b *HNSWBackend) saveCollection(name string, col *hnswCollection) error {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	base := filepath.Join(b.cfg.Dir, name)

	if err := writeFileAtomic(base+graphFileExt, func(f *os.File) error {
		return col.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("save graph %s failed: %w", name, err)
	}

	meta := hnswMetadata{
		Dims:    col.dims,
		IDMap:   col.idMap,
		NextKey: col.nextKey,
		Items:   col.items,
	}
	if err := writeFileAtomic(base+metaFileExt, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("save metadata %s failed: %w", name, err)
	}

	col.dirty = false
	return nil
}

// Load reads every collection saved under the configured directory. A
// missing directory is an empty index.
func (b *HNSWBackend) Load() error {
	if b.cfg.Dir == "" {
		return nil
	}
	entries, err := os.ReadDir(b.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index dir failed: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaFileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), metaFileExt)
		col, err := b.loadCollection(name)
		if err != nil {
			return err
		}
		b.collections[name] = col
	}
	return nil
}

func (b *HNSWBackend) loadCollection(name string) (*hnswCollection, error) {
	base := filepath.Join(b.cfg.Dir, name)

	metaFile, err := os.Open(base + metaFileExt)
	if err != nil {
		return nil, fmt.Errorf("open metadata %s failed: %w", name, err)
	}
	defer metaFile.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s failed: %w", name, err)
	}

	graphFile, err := os.Open(base + graphFileExt)
	if err != nil {
		return nil, fmt.Errorf("open graph %s failed: %w", name, err)
	}
	defer graphFile.Close()

	col := b.newCollection(meta.Dims)
	// Import needs an io.ByteReader.
	if err := col.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return nil, fmt.Errorf("import graph %s failed: %w", name, err)
	}

	if meta.IDMap != nil {
		col.idMap = meta.IDMap
	}
	if meta.Items != nil {
		col.items = meta.Items
	}
	col.nextKey = meta.NextKey
	for id, key := range col.idMap {
		col.keyMap[key] = id
	}
	return col, nil
}

func writeFileAtomic(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
