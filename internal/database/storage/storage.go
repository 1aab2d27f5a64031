package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/kvreplica/kvreplica/internal/configuration"
	"github.com/kvreplica/kvreplica/internal/database/compute"
	"github.com/kvreplica/kvreplica/internal/database/storage/backup"
	"github.com/kvreplica/kvreplica/internal/database/storage/engine/in_memory"
	"github.com/kvreplica/kvreplica/internal/database/storage/wal"
	"github.com/kvreplica/kvreplica/internal/logging"
	"github.com/kvreplica/kvreplica/internal/utils"
	"go.uber.org/zap"
)

var (
	ErrUnknownEngine       = errors.New("unknown engine type")
	ErrRecoveryFailed      = errors.New("WAL recovery failed")
	ErrLogReadFailed       = errors.New("failed to read log during recovery")
	ErrEmptyLogs           = errors.New("logs cannot be empty")
	ErrWALNotEnabled       = errors.New("WAL is not enabled for this storage")
	ErrWALWriteFailed      = errors.New("failed to write logs to WAL")
	ErrLogNilEntry         = errors.New("log entry cannot be nil")
	ErrLogNoArguments      = errors.New("log entry has no arguments")
	ErrSetInvalidArguments = errors.New("SET log entry requires exactly 2 arguments")
	ErrDelInvalidArguments = errors.New("DEL log entry requires exactly 1 argument")
	ErrUnknownCommand      = errors.New("unknown command in log entry")
	ErrNoBackupTaken       = errors.New("no backup has been taken yet")
)

type Engine interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Shutdown()
}

// WAL is the subset of *wal.WAL that the storage layer and the replication
// core drive it through.
type WAL interface {
	Recover() iter.Seq2[*wal.LogEntry, error]
	Set(key, value string) *wal.Future
	Delete(key string) *wal.Future
	Shutdown()
	SetLastLSN(lsn uint64)
	GetLastLSN() uint64
	WriteLogs(logs []*wal.LogEntry) error
	ReadLogsFromLSN(ctx context.Context, lsn uint64) iter.Seq2[*wal.LogEntry, error]
}

type Storage struct {
	engine Engine
	wal    WAL
	backup *backup.Manager
}

func NewStorage(cfg *configuration.Config) (*Storage, error) {
	var engine Engine
	switch cfg.Engine.Type {
	case configuration.EngineInMemoryKey:
		inMemEngine, err := in_memory.NewEngine()
		if err != nil {
			return nil, err
		}
		engine = inMemEngine
	default:
		return nil, ErrUnknownEngine
	}

	s := &Storage{engine: engine}

	if cfg.Backup != nil {
		backupManager, err := backup.NewManager(cfg.Backup.Directory, cfg.Backup.RetainedCount)
		if err != nil {
			return nil, fmt.Errorf("failed to open backup manager: %w", err)
		}
		s.backup = backupManager
	}

	if cfg.WAL == nil {
		return s, nil
	}

	s.wal = wal.NewWAL(cfg.WAL)
	if err := s.recover(); err != nil {
		s.wal.Shutdown()
		return nil, fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}

	return s, nil
}

// recover replays every log entry the WAL already has on disk into the
// engine before the storage layer starts serving requests.
func (s *Storage) recover() error {
	var lastLSN uint64
	for log, err := range s.wal.Recover() {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogReadFailed, err)
		}
		if err := s.applyLogToEngine(log); err != nil {
			return err
		}
		lastLSN = log.LSN
	}
	s.wal.SetLastLSN(lastLSN)
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.engine.Get(ctx, key)
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, err := s.handleWALOperation(ctx, func() *wal.Future {
		return s.wal.Set(key, value)
	})
	if err != nil {
		return err
	}

	return s.engine.Set(ctx, key, value)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, err := s.handleWALOperation(ctx, func() *wal.Future {
		return s.wal.Delete(key)
	})
	if err != nil {
		return err
	}

	return s.engine.Delete(ctx, key)
}

// handleWALOperation submits a WAL write via submit and, on success, stamps
// the assigned LSN onto ctx so the engine can order it against concurrent
// replicated writes to the same key. With no WAL configured it is a no-op.
func (s *Storage) handleWALOperation(ctx context.Context, submit func() *wal.Future) (context.Context, error) {
	if s.wal == nil {
		return ctx, nil
	}

	future := submit()
	lsn, err := future.Wait()
	if err != nil {
		return ctx, fmt.Errorf("%w: %w", ErrWALWriteFailed, err)
	}

	return utils.ContextWithLSN(ctx, lsn), nil
}

func (s *Storage) Shutdown() {
	if s.wal != nil {
		s.wal.Shutdown()
	}
	s.engine.Shutdown()
}

// ApplyLogs writes a batch of already-ordered log entries to the WAL and
// then applies each one to the engine, in the order given. Used by the
// replication client (C5) to apply a stream of logs received from the
// master.
func (s *Storage) ApplyLogs(logs []*wal.LogEntry) error {
	if len(logs) == 0 {
		return ErrEmptyLogs
	}
	if s.wal == nil {
		return ErrWALNotEnabled
	}

	if err := s.wal.WriteLogs(logs); err != nil {
		return fmt.Errorf("%w: %w", ErrWALWriteFailed, err)
	}

	for _, log := range logs {
		if err := s.applyLogToEngine(log); err != nil {
			return err
		}
	}

	return nil
}

func (s *Storage) applyLogToEngine(log *wal.LogEntry) error {
	if log == nil {
		return ErrLogNilEntry
	}
	if len(log.Arguments) == 0 {
		return ErrLogNoArguments
	}

	ctx := utils.ContextWithLSN(context.Background(), log.LSN)

	switch log.Command {
	case compute.SetCommandID:
		if len(log.Arguments) != 2 {
			return ErrSetInvalidArguments
		}
		return s.engine.Set(ctx, log.Arguments[0], log.Arguments[1])
	case compute.DelCommandID:
		if len(log.Arguments) != 1 {
			return ErrDelInvalidArguments
		}
		return s.engine.Delete(ctx, log.Arguments[0])
	default:
		return ErrUnknownCommand
	}
}

func (s *Storage) GetLastLSN() uint64 {
	if s.wal == nil {
		return 0
	}
	return s.wal.GetLastLSN()
}

// ReadLogsFromLSN streams every log entry recorded at or after lsn, for the
// replication feeder (C3) to push to a connected slave.
func (s *Storage) ReadLogsFromLSN(ctx context.Context, lsn uint64) iter.Seq2[*wal.LogEntry, error] {
	if s.wal == nil {
		return func(yield func(*wal.LogEntry, error) bool) {
			yield(nil, ErrWALNotEnabled)
		}
	}
	return s.wal.ReadLogsFromLSN(ctx, lsn)
}

// Namespace maps a WAL command ID to the logical namespace it belongs to,
// the Go-native stand-in for a RocksDB column family: data-plane commands
// live in the default namespace, while pubsub/propagate traffic gets its
// own namespace tag carried purely through the reserved command-ID range
// (see compute.PublishCommandID / compute.PropagateCommandID).
func (s *Storage) Namespace(commandID int) string {
	switch commandID {
	case compute.PublishCommandID:
		return "pubsub"
	case compute.PropagateCommandID:
		return "propagate"
	default:
		return "default"
	}
}

// CreateBackup snapshots the engine's shards to disk for a full sync
// (C6/C2) and returns the resulting manifest.
func (s *Storage) CreateBackup() (*backup.Meta, error) {
	if s.backup == nil {
		return nil, ErrNoBackupTaken
	}
	snapshotter, ok := s.engine.(backup.ShardSnapshotter)
	if !ok {
		return nil, fmt.Errorf("engine does not support snapshotting")
	}
	meta, err := s.backup.Create(snapshotter, s.GetLastLSN())
	if err != nil {
		logging.Error("Failed to create backup", zap.Error(err))
	}
	return meta, err
}

// CurrentBackupMeta returns the manifest of the most recent backup, or nil
// if none has been taken.
func (s *Storage) CurrentBackupMeta() *backup.Meta {
	if s.backup == nil {
		return nil
	}
	return s.backup.Current()
}

// OpenBackupFile opens one file belonging to a given backup for the File
// Fetcher (C2) to stream to a connecting slave.
func (s *Storage) OpenBackupFile(backupID uint64, filename string) (*backup.File, error) {
	if s.backup == nil {
		return nil, ErrNoBackupTaken
	}
	return s.backup.Open(backupID, filename)
}

// ReplaceDataDir atomically swaps the engine's contents for the shard files
// just fetched from a master, then rewinds the WAL to lastLSN so replayed
// logs after full sync line up with the fetched snapshot.
func (s *Storage) ReplaceDataDir(shardFiles map[int]*backup.File, lastLSN uint64) error {
	snapshotter, ok := s.engine.(backup.ShardSnapshotter)
	if !ok {
		return fmt.Errorf("engine does not support snapshot restore")
	}
	if err := backup.Restore(snapshotter, shardFiles); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	if s.wal != nil {
		s.wal.SetLastLSN(lastLSN)
	}
	return nil
}
