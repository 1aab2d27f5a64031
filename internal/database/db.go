package database

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/kvreplica/kvreplica/internal/configuration"
	"github.com/kvreplica/kvreplica/internal/database/compute"
	"github.com/kvreplica/kvreplica/internal/database/storage"
	"github.com/kvreplica/kvreplica/internal/database/storage/backup"
	"github.com/kvreplica/kvreplica/internal/database/storage/wal"
	"github.com/kvreplica/kvreplica/internal/logging"
)

type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Shutdown()

	// for replication purposes
	ApplyLogs(logs []*wal.Log) error
	GetLastLSN() uint64
	ReadLogsFromLSN(ctx context.Context, lsn uint64) iter.Seq2[*wal.LogEntry, error]
	CurrentBackupMeta() *backup.Meta
	CreateBackup() (*backup.Meta, error)
	OpenBackupFile(backupID uint64, filename string) (*backup.File, error)
	ReplaceDataDir(shardFiles map[int]*backup.File, lastLSN uint64) error
}

type Database struct {
	compute      *compute.Compute
	storage      Storage
	readOnlyMode bool
	restoring    atomic.Bool
}

func NewDatabase(cfg *configuration.Config) (*Database, error) {
	compute := compute.NewCompute()
	storage, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	return &Database{compute: compute, storage: storage, readOnlyMode: false}, nil
}

func (db *Database) Start(ctx context.Context) error {
	return nil
}

func (db *Database) SetReadOnly() {
	db.readOnlyMode = true
}

// SetRestoring marks the engine as mid full-sync swap: every request is
// rejected until the restore coordinator (C6) clears the flag again,
// since shard files are being replaced out from under the live engine.
func (db *Database) SetRestoring(restoring bool) {
	db.restoring.Store(restoring)
}

func (db *Database) HandleRequest(ctx context.Context, data []byte) []byte {
	if db.restoring.Load() {
		return []byte("This instance is restoring from a full sync")
	}
	query, err := db.compute.Parse(string(data))
	if err != nil {
		return []byte(err.Error())
	}
	switch query.CommandID() {
	case compute.GetCommandID:
		return db.HandleGetRequest(ctx, query)
	case compute.SetCommandID:
		if db.readOnlyMode {
			return []byte("This instance is in read-only mode")
		}
		return db.HandleSetRequest(ctx, query)
	case compute.DelCommandID:
		if db.readOnlyMode {
			return []byte("This instance is in read-only mode")
		}
		return db.HandleDelRequest(ctx, query)
	default:
		logging.Error("Compute layer is incorrect and returns an unknown command")
		return []byte("Internal error")
	}
}

func (db *Database) HandleGetRequest(ctx context.Context, query compute.Query) []byte {
	value, err := db.storage.Get(ctx, query.Arguments()[0])
	if err != nil {
		return []byte(err.Error())
	}
	return []byte(value)
}

func (db *Database) HandleSetRequest(ctx context.Context, query compute.Query) []byte {
	err := db.storage.Set(ctx, query.Arguments()[0], query.Arguments()[1])
	if err != nil {
		return []byte(err.Error())
	}
	return []byte("OK")
}

func (db *Database) HandleDelRequest(ctx context.Context, query compute.Query) []byte {
	err := db.storage.Delete(ctx, query.Arguments()[0])
	if err != nil {
		return []byte(err.Error())
	}
	return []byte("OK")
}

func (db *Database) Shutdown() {
	db.storage.Shutdown()
}

// for replication purposes
func (db *Database) ApplyLogs(logs []*wal.Log) error {
	return db.storage.ApplyLogs(logs)
}

func (db *Database) GetLastLSN() uint64 {
	return db.storage.GetLastLSN()
}

func (db *Database) ReadLogsFromLSN(ctx context.Context, lsn uint64) iter.Seq2[*wal.LogEntry, error] {
	return db.storage.ReadLogsFromLSN(ctx, lsn)
}

func (db *Database) CurrentBackupMeta() *backup.Meta {
	return db.storage.CurrentBackupMeta()
}

func (db *Database) CreateBackup() (*backup.Meta, error) {
	return db.storage.CreateBackup()
}

func (db *Database) OpenBackupFile(backupID uint64, filename string) (*backup.File, error) {
	return db.storage.OpenBackupFile(backupID, filename)
}

func (db *Database) ReplaceDataDir(shardFiles map[int]*backup.File, lastLSN uint64) error {
	return db.storage.ReplaceDataDir(shardFiles, lastLSN)
}
