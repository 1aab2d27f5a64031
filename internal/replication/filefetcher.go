package replication

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kvreplica/kvreplica/internal/logging"
	"github.com/kvreplica/kvreplica/internal/protocol"
	"go.uber.org/zap"
	"go.uber.org/multierr"
)

// FetchFileCallback is invoked once per file after it has been verified
// and renamed into place.
type FetchFileCallback func(filename string, crc uint32)

// FileFetcher downloads the files listed in a BackupMeta from the master
// over P parallel connections, verifying each file's CRC32 before it is
// renamed into the target directory. Grounded on kvrocks's
// fetchFile/fetchFiles/parallelFetchFile: round-robin shard partitioning
// across P worker connections, cooperative cancellation via a shared stop
// flag, first-error-wins aggregation.
type FileFetcher struct {
	dial       func(ctx context.Context) (net.Conn, error)
	targetDir  string
	parallel   int
	onComplete FetchFileCallback
}

func NewFileFetcher(dial func(ctx context.Context) (net.Conn, error), targetDir string, parallel int, onComplete FetchFileCallback) *FileFetcher {
	if parallel < 1 {
		parallel = 1
	}
	return &FileFetcher{dial: dial, targetDir: targetDir, parallel: parallel, onComplete: onComplete}
}

// Fetch partitions files round-robin across f.parallel workers, each
// opening its own connection, and returns only once every shard has
// succeeded. A single shard's failure sets a shared stop flag so peers
// abandon remaining files between files (not mid-file); the first
// observed error is returned, wrapped with the other shards' errors via
// multierr if more than one failed before noticing the stop flag.
func (f *FileFetcher) Fetch(ctx context.Context, files []BackupFileMeta) error {
	if len(files) == 0 {
		return nil
	}
	if err := os.MkdirAll(f.targetDir, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	shards := make([][]BackupFileMeta, f.parallel)
	for i, file := range files {
		shard := i % f.parallel
		shards[shard] = append(shards[shard], file)
	}

	var stopped atomic.Bool
	var wg sync.WaitGroup
	errs := make([]error, f.parallel)
	var firstMu sync.Mutex
	var firstErr error

	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, shard []BackupFileMeta) {
			defer wg.Done()
			errs[i] = f.runShard(ctx, shard, &stopped)
			if errs[i] != nil && errs[i] != ErrFetchCancelled {
				firstMu.Lock()
				if firstErr == nil {
					firstErr = errs[i]
				}
				firstMu.Unlock()
			}
		}(i, shard)
	}
	wg.Wait()

	combined := firstErr
	for _, err := range errs {
		if err != nil && err != firstErr {
			combined = multierr.Append(combined, err)
		}
	}
	return combined
}

func (f *FileFetcher) runShard(ctx context.Context, shard []BackupFileMeta, stopped *atomic.Bool) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer conn.Close()

	writer := protocol.NewWriter(conn)
	reader := protocol.NewReader(conn)

	for _, file := range shard {
		if stopped.Load() {
			return ErrFetchCancelled
		}
		if err := f.fetchOne(writer, reader, file); err != nil {
			stopped.Store(true)
			return err
		}
		if f.onComplete != nil {
			f.onComplete(file.Filename, file.CRC32)
		}
	}
	return nil
}

func (f *FileFetcher) fetchOne(writer *protocol.Writer, reader *protocol.Reader, file BackupFileMeta) error {
	if err := writer.WriteInline("_fetch_file", file.Filename); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	length, err := reader.ReadBulkHeader()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	tmpPath := filepath.Join(f.targetDir, file.Filename+".tmp")
	finalPath := filepath.Join(f.targetDir, file.Filename)

	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	hasher := crc32.NewIEEE()
	_, copyErr := io.CopyN(io.MultiWriter(tmp, hasher), reader.BufferedReader(), length)
	closeErr := tmp.Close()

	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrIO, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrIO, closeErr)
	}

	if hasher.Sum32() != file.CRC32 {
		os.Remove(tmpPath)
		logging.Error("file fetch CRC mismatch",
			zap.String("file", file.Filename),
			zap.Uint32("want", file.CRC32),
			zap.Uint32("got", hasher.Sum32()))
		return fmt.Errorf("%w: %s", ErrCRCMismatch, file.Filename)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
