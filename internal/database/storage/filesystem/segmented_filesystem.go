package filesystem

import (
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/kvreplica/kvreplica/internal/logging"
	"go.uber.org/zap"
)

const metadataFileName = ".wal_metadata"

type SegmentedFileSystem struct {
	dataDir        string
	maxSegmentSize int
	currentSegment *Segment
	walFiles       []string
	metadata       *FileMetadataManager
}

func NewSegmentedFileSystem(dataDir string, maxSegmentSize int) *SegmentedFileSystem {
	fs := &SegmentedFileSystem{dataDir: dataDir, maxSegmentSize: maxSegmentSize}

	if err := fs.createDir(); err != nil {
		logging.Fatal("Failed to create directory for WAL logs", zap.Error(err))
	}

	metadata, err := NewFileMetadataManager(filepath.Join(dataDir, metadataFileName))
	if err != nil {
		logging.Fatal("Failed to open WAL segment metadata store", zap.Error(err))
	}
	fs.metadata = metadata

	walFiles, err := fs.discoverAndSortWALFiles()
	if err != nil {
		logging.Fatal("Failed to discover existing WAL segments", zap.Error(err))
	}
	fs.walFiles = walFiles

	if len(walFiles) > 0 {
		lastFile := filepath.Join(dataDir, walFiles[len(walFiles)-1])
		if canReuse, err := fs.canReuseSegment(lastFile); err == nil && canReuse {
			if err := fs.reuseLastSegment(lastFile); err == nil {
				return fs
			}
		}
	}

	if err := fs.rotateSegment(); err != nil {
		logging.Fatal("Failed to rotate initial segment", zap.Error(err))
	}
	return fs
}

// WriteSync appends data to the active segment, rotating to a new one first
// if the write would overflow it. lsnStart is the LSN of the first log entry
// in data; it is recorded against the segment's filename the first time the
// segment receives a write, so GetSegmentForLSN can later locate it.
func (fs *SegmentedFileSystem) WriteSync(data []byte, lsnStart uint64) error {
	isNewSegment := fs.currentSegment == nil || fs.currentSegment.checkOverflow(fs.maxSegmentSize, len(data))
	if isNewSegment {
		if err := fs.rotateSegment(); err != nil {
			return err
		}
	}

	firstWrite := fs.currentSegment.getCurrentSize() == 0
	if err := fs.currentSegment.writeSync(data); err != nil {
		return err
	}

	if firstWrite {
		segmentName := filepath.Base(fs.currentSegment.FileName)
		if err := fs.metadata.AddNewSegmentOffset(segmentName, lsnStart); err != nil {
			logging.Warn("Failed to record WAL segment metadata", zap.Error(err), zap.String("segment", segmentName))
		}
	}

	return nil
}

func (fs *SegmentedFileSystem) ReadAll() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		walFiles, err := fs.discoverAndSortWALFiles()
		if err != nil {
			yield(nil, err)
			return
		}

		for _, filename := range walFiles {
			path := filepath.Join(fs.dataDir, filename)
			data, err := os.ReadFile(path)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(data, nil) {
				return
			}
		}
	}
}

// GetSegmentForLSN returns the filename of the segment whose recorded
// starting LSN is the greatest one not exceeding lsn.
func (fs *SegmentedFileSystem) GetSegmentForLSN(lsn uint64) (string, error) {
	meta, err := fs.metadata.GetSegmentMetadataForLSN(lsn)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", ErrNoWALFilesFound
	}
	return meta.GetSegmentFilename(), nil
}

// ReadContinuouslyFromSegment streams the named segment and every segment
// that was rotated in after it, in order.
func (fs *SegmentedFileSystem) ReadContinuouslyFromSegment(segment string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		walFiles, err := fs.discoverAndSortWALFiles()
		if err != nil {
			yield(nil, err)
			return
		}

		start := 0
		for i, name := range walFiles {
			if name == segment {
				start = i
				break
			}
		}

		for _, name := range walFiles[start:] {
			data, err := os.ReadFile(filepath.Join(fs.dataDir, name))
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}

func (fs *SegmentedFileSystem) discoverAndSortWALFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, err
	}
	return fs.sortWALFiles(entries), nil
}

func (fs *SegmentedFileSystem) sortWALFiles(entries []os.DirEntry) []string {
	var walFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if checkFileName(name) {
			walFiles = append(walFiles, name)
		}
	}

	sort.Slice(walFiles, func(i, j int) bool {
		timestampI := walFiles[i][4 : len(walFiles[i])-4]
		timestampJ := walFiles[j][4 : len(walFiles[j])-4]

		tsI, errI := strconv.ParseInt(timestampI, 10, 64)
		tsJ, errJ := strconv.ParseInt(timestampJ, 10, 64)

		if errI != nil || errJ != nil {
			return timestampI < timestampJ
		}

		return tsI < tsJ
	})
	return walFiles
}

// canReuseSegment reports whether an existing segment file still has room
// under maxSegmentSize, so a restart can keep appending to it instead of
// rotating immediately.
func (fs *SegmentedFileSystem) canReuseSegment(filePath string) (bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return false, err
	}
	return info.Size() < int64(fs.maxSegmentSize), nil
}

func (fs *SegmentedFileSystem) reuseLastSegment(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}

	segment := NewSegment(filePath)
	if err := segment.openForAppend(); err != nil {
		return err
	}
	segment.setCurrentSize(int(info.Size()))

	fs.currentSegment = segment
	return nil
}

func (fs *SegmentedFileSystem) rotateSegment() error {
	if fs.currentSegment != nil {
		if err := fs.currentSegment.close(); err != nil {
			return err
		}
	}

	newFileName := filepath.Join(fs.dataDir, generateFileName())
	newSegment := NewSegment(newFileName)
	if err := newSegment.open(); err != nil {
		return err
	}

	fs.currentSegment = newSegment
	fs.walFiles = append(fs.walFiles, filepath.Base(newFileName))
	return nil
}

func (fs *SegmentedFileSystem) createDir() error {
	return os.MkdirAll(fs.dataDir, 0755)
}
