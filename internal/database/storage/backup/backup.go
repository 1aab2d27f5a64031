package backup

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrBackupNotFound = errors.New("backup not found")
	ErrFileNotFound   = errors.New("file not found in backup")
)

// ShardSnapshotter is implemented by the storage engine: each shard's data
// set can be serialized to, and restored from, a single file independently
// — the Go-native stand-in for per-column-family SST files in a RocksDB
// checkpoint.
type ShardSnapshotter interface {
	NumShards() int
	WriteShard(shardIndex int, w io.Writer) error
	LoadShard(shardIndex int, r io.Reader) error
}

// FileMeta describes one file belonging to a backup, along with the CRC32
// checksum the File Fetcher (C2) verifies after transfer.
type FileMeta struct {
	Filename string `yaml:"filename"`
	CRC32    uint32 `yaml:"crc32"`
}

// Meta is the manifest of a single backup: its monotonic ID, the WAL
// sequence number it was taken at (so a slave restoring from it knows
// where to resume PSYNC), and the files it contains.
type Meta struct {
	ID      uint64     `yaml:"id"`
	LastLSN uint64     `yaml:"last_lsn"`
	Files   []FileMeta `yaml:"files"`
}

func shardFilename(shardIndex int) string {
	return fmt.Sprintf("shard_%04d.dat", shardIndex)
}

func backupDirName(id uint64) string {
	return "backup_" + strconv.FormatUint(id, 10)
}

func manifestFilename(id uint64) string {
	return fmt.Sprintf("backup_%d.manifest", id)
}

// Manager owns a directory of backup snapshots on disk plus the manifest
// of the most recent one, keeping at most retainedCount backups around and
// purging older ones as new ones complete.
type Manager struct {
	dir           string
	retainedCount int

	mu      sync.Mutex
	nextID  uint64
	current *Meta
}

func NewManager(dir string, retainedCount int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if retainedCount <= 0 {
		retainedCount = 1
	}
	m := &Manager{dir: dir, retainedCount: retainedCount}
	if err := m.loadLatest(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadLatest() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}
	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(entry.Name(), "backup_%d.manifest", &id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	latest := ids[len(ids)-1]
	meta, err := m.readManifest(latest)
	if err != nil {
		return err
	}
	m.current = meta
	m.nextID = latest + 1
	return nil
}

func (m *Manager) readManifest(id uint64) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, manifestFilename(id)))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Create snapshots every shard of snapshotter into a new backup directory,
// records its CRC32 manifest alongside the WAL sequence number the
// snapshot was taken at, advances the current pointer to it, and purges
// backups beyond retainedCount.
func (m *Manager) Create(snapshotter ShardSnapshotter, lastLSN uint64) (*Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	meta := &Meta{ID: id, LastLSN: lastLSN}

	dir := filepath.Join(m.dir, backupDirName(id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	for i := 0; i < snapshotter.NumShards(); i++ {
		filename := shardFilename(i)
		crc, err := writeShardFile(filepath.Join(dir, filename), i, snapshotter)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot shard %d: %w", i, err)
		}
		meta.Files = append(meta.Files, FileMeta{Filename: filename, CRC32: crc})
	}

	if err := m.writeManifest(meta); err != nil {
		return nil, err
	}

	m.current = meta
	m.nextID++
	m.purgeOld()
	return meta, nil
}

func writeShardFile(path string, shardIndex int, snapshotter ShardSnapshotter) (uint32, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	crcWriter := &crc32Writer{w: f, hash: crc32.NewIEEE()}
	if err := snapshotter.WriteShard(shardIndex, crcWriter); err != nil {
		return 0, err
	}
	return crcWriter.hash.Sum32(), nil
}

type crc32Writer struct {
	w    io.Writer
	hash hash.Hash32
}

func (c *crc32Writer) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.hash.Write(p[:n])
	}
	return n, err
}

func (m *Manager) writeManifest(meta *Meta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, manifestFilename(meta.ID)), data, 0644)
}

func (m *Manager) purgeOld() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return
	}
	var ids []uint64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(entry.Name(), "backup_%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) <= m.retainedCount {
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids[:len(ids)-m.retainedCount] {
		os.RemoveAll(filepath.Join(m.dir, backupDirName(id)))
		os.Remove(filepath.Join(m.dir, manifestFilename(id)))
	}
}

// Current returns the manifest of the most recently completed backup, or
// nil if none has been taken yet.
func (m *Manager) Current() *Meta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// File is an open handle onto one file inside a backup, returned to the
// File Fetcher (C2) / master listener for streaming to a slave, and to a
// slave's restore coordinator (C6) once fetched locally.
type File struct {
	*os.File
	CRC32 uint32
}

// Open opens one file belonging to backupID by name, checked against that
// backup's manifest so a caller can only ever fetch a file the manifest
// actually lists.
func (m *Manager) Open(backupID uint64, filename string) (*File, error) {
	m.mu.Lock()
	meta := m.current
	m.mu.Unlock()

	if meta == nil || meta.ID != backupID {
		var err error
		meta, err = m.readManifest(backupID)
		if err != nil {
			return nil, ErrBackupNotFound
		}
	}

	var crc uint32
	found := false
	for _, fm := range meta.Files {
		if fm.Filename == filename {
			crc = fm.CRC32
			found = true
			break
		}
	}
	if !found {
		return nil, ErrFileNotFound
	}

	f, err := os.Open(filepath.Join(m.dir, backupDirName(backupID), filename))
	if err != nil {
		return nil, err
	}
	return &File{File: f, CRC32: crc}, nil
}

// Restore loads shard files (fetched from a master, or opened locally)
// back into the engine, verifying each one's CRC32 against the manifest
// entry the caller attached to it before this call.
func Restore(snapshotter ShardSnapshotter, shardFiles map[int]*File) error {
	for i := 0; i < snapshotter.NumShards(); i++ {
		file, ok := shardFiles[i]
		if !ok {
			return fmt.Errorf("missing shard file for shard %d", i)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		hasher := crc32.NewIEEE()
		reader := io.TeeReader(file, hasher)
		if err := snapshotter.LoadShard(i, reader); err != nil {
			return fmt.Errorf("failed to load shard %d: %w", i, err)
		}
		if hasher.Sum32() != file.CRC32 {
			return fmt.Errorf("shard %d CRC32 mismatch: got %d want %d", i, hasher.Sum32(), file.CRC32)
		}
	}
	return nil
}
