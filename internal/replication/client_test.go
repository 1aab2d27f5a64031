package replication

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kvreplica/kvreplica/internal/database/compute"
	"github.com/kvreplica/kvreplica/internal/database/storage/backup"
	"github.com/kvreplica/kvreplica/internal/database/storage/encoders"
	"github.com/kvreplica/kvreplica/internal/database/storage/wal"
	"github.com/kvreplica/kvreplica/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	mu sync.Mutex

	applied    []*wal.LogEntry
	applyErr   error
	lastLSN    uint64
	restoring  bool
	replaceErr error

	replacedLSN   uint64
	replacedFiles map[int][]byte
}

func (a *fakeApplier) ApplyLogs(logs []*wal.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applyErr != nil {
		return a.applyErr
	}
	a.applied = append(a.applied, logs...)
	for _, l := range logs {
		a.lastLSN = l.LSN
	}
	return nil
}

func (a *fakeApplier) GetLastLSN() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastLSN
}

func (a *fakeApplier) ReplaceDataDir(shardFiles map[int]*backup.File, lastLSN uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.replaceErr != nil {
		return a.replaceErr
	}
	a.replacedFiles = make(map[int][]byte, len(shardFiles))
	for i, f := range shardFiles {
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		a.replacedFiles[i] = data
	}
	a.replacedLSN = lastLSN
	return nil
}

func (a *fakeApplier) SetRestoring(restoring bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restoring = restoring
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs [][2]string
}

func (p *fakePublisher) Publish(channel, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, [2]string{channel, message})
}

type fakeMasterConfig struct {
	namespace       string
	auth            string
	needFullSync    bool
	batches         [][]byte
	purgedAfterSync bool
	backupMeta      BackupMeta
	fileData        map[string][]byte
}

func startFakeMaster(t *testing.T, cfg fakeMasterConfig) (host, port string, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleFakeMasterConn(conn, cfg)
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return h, p, func() { ln.Close() }
}

func handleFakeMasterConn(conn net.Conn, cfg fakeMasterConfig) {
	defer conn.Close()
	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)

	for {
		line, err := reader.ReadLine()
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch strings.ToUpper(parts[0]) {
		case "AUTH":
			if cfg.auth == "" || (len(parts) > 1 && parts[1] == cfg.auth) {
				writer.WriteOK()
			} else {
				writer.WriteError("WRONGPASS invalid password")
			}
		case "_DB_NAME":
			writer.WriteBulkString([]byte(cfg.namespace))
		case "REPLCONF":
			writer.WriteOK()
		case "PSYNC":
			if cfg.needFullSync {
				writer.WriteError("ERR Can't SYNC: NeedFullSync")
				continue
			}
			writer.WriteOK()
			for _, b := range cfg.batches {
				writer.WriteBulkString(b)
			}
			if cfg.purgedAfterSync {
				writer.WriteError("StoragePurged restart replication")
			}
			time.Sleep(50 * time.Millisecond)
			return
		case "_FETCH_META":
			var content strings.Builder
			fmt.Fprintf(&content, "LSN %d\n", cfg.backupMeta.LastLSN)
			for _, f := range cfg.backupMeta.Files {
				fmt.Fprintf(&content, "%s %d\n", f.Filename, f.CRC32)
			}
			writer.WriteBulkString([]byte(strconv.FormatUint(cfg.backupMeta.ID, 10)))
			writer.WriteBulkString([]byte(strconv.Itoa(content.Len())))
			writer.WriteBulkString([]byte(content.String()))
		case "_FETCH_FILE":
			data := cfg.fileData[parts[1]]
			if err := writer.WriteBulkHeader(int64(len(data))); err != nil {
				return
			}
			writer.Write(data)
			writer.Flush()
		default:
			writer.WriteError("ERR unknown command")
		}
	}
}

func newTestClient(t *testing.T, host, port string, applier *fakeApplier, endpointAuth string) *Client {
	t.Helper()
	endpoint := Endpoint{MasterHost: host, MasterPort: port, Auth: endpointAuth, Namespace: "testns", ListenPort: "9"}
	restore := NewRestoreCoordinator(
		func() error { return nil },
		func(ok bool) error { return nil },
	)
	return NewClient(endpoint, applier, &fakePublisher{}, restore, t.TempDir(), 1)
}

func TestClient_Attempt_IncrementalSync_AppliesBatches(t *testing.T) {
	batch := encodeBatch(t, &encoders.Log{LSN: 1, Command: compute.SetCommandID, Arguments: []string{"a", "1"}})
	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{namespace: "testns", batches: [][]byte{batch}})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "")

	err := c.attempt(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	applier.mu.Lock()
	defer applier.mu.Unlock()
	require.Len(t, applier.applied, 1)
	assert.Equal(t, uint64(1), applier.applied[0].LSN)
	assert.Equal(t, "a", applier.applied[0].Arguments[0])
}

func TestClient_Attempt_IncrementalSync_StoragePurged_ReturnsErrStoragePurged(t *testing.T) {
	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{namespace: "testns", purgedAfterSync: true})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "")

	err := c.attempt(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoragePurged)
}

func TestClient_Attempt_AuthFailure_IsFatal(t *testing.T) {
	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{namespace: "testns", auth: "secret"})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "wrong")

	err := c.attempt(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.True(t, isFatal(err))
}

func TestClient_Attempt_DBNameMismatch_IsFatal(t *testing.T) {
	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{namespace: "othernamespace"})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "")

	err := c.attempt(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDBNameMismatch)
	assert.True(t, isFatal(err))
}

func TestClient_Attempt_FullSync_SwapsDataDir(t *testing.T) {
	data := []byte("shard payload contents")
	crc := crc32.ChecksumIEEE(data)

	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{
		namespace:    "testns",
		needFullSync: true,
		backupMeta: BackupMeta{
			ID:      3,
			LastLSN: 99,
			Files:   []BackupFileMeta{{Filename: "shard_0000.dat", CRC32: crc}},
		},
		fileData: map[string][]byte{"shard_0000.dat": data},
	})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "")

	err := c.attempt(context.Background())
	require.NoError(t, err)

	applier.mu.Lock()
	defer applier.mu.Unlock()
	assert.Equal(t, uint64(99), applier.replacedLSN)
	require.Contains(t, applier.replacedFiles, 0)
	assert.Equal(t, data, applier.replacedFiles[0])
}

func TestClient_Attempt_FullSync_CRCMismatchPropagates(t *testing.T) {
	data := []byte("shard payload contents")

	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{
		namespace:    "testns",
		needFullSync: true,
		backupMeta: BackupMeta{
			ID:      3,
			LastLSN: 99,
			Files:   []BackupFileMeta{{Filename: "shard_0000.dat", CRC32: 0xbad}},
		},
		fileData: map[string][]byte{"shard_0000.dat": data},
	})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "")

	err := c.attempt(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestClient_Run_StopsOnFatalError(t *testing.T) {
	host, port, closeFn := startFakeMaster(t, fakeMasterConfig{namespace: "wrongns"})
	defer closeFn()

	applier := &fakeApplier{}
	c := newTestClient(t, host, port, applier, "")

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after fatal error")
	}
	assert.Equal(t, StateError, c.State())
}

func TestParseBackupFileList_LSNAndFiles(t *testing.T) {
	content := []byte("LSN 42\nshard_0000.dat 111\nshard_0001.dat 222\n")
	lsn, files, err := parseBackupFileList(content)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), lsn)
	require.Len(t, files, 2)
	assert.Equal(t, "shard_0000.dat", files[0].Filename)
	assert.Equal(t, uint32(111), files[0].CRC32)
}

func TestParseBackupFileList_NoLSNLine(t *testing.T) {
	content := []byte("shard_0000.dat 111\n")
	lsn, files, err := parseBackupFileList(content)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lsn)
	require.Len(t, files, 1)
}

func TestParseBackupFileList_Malformed(t *testing.T) {
	_, _, err := parseBackupFileList([]byte("not-a-valid-record\n"))
	assert.Error(t, err)
}
