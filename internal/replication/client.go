package replication

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kvreplica/kvreplica/internal/database/storage/backup"
	"github.com/kvreplica/kvreplica/internal/database/storage/wal"
	"github.com/kvreplica/kvreplica/internal/logging"
	"github.com/kvreplica/kvreplica/internal/protocol"
	"go.uber.org/zap"
)

// StorageApplier is the subset of *storage.Storage the replication client
// needs on the slave side: apply a decoded batch (advancing the engine's
// sequence atomically), read back the last applied sequence to resume
// from after a restart, swap in a full-sync snapshot, and mark the host
// as mid-restore so it can reject reads/writes against a half-swapped
// engine.
type StorageApplier interface {
	ApplyLogs(logs []*wal.LogEntry) error
	GetLastLSN() uint64
	ReplaceDataDir(shardFiles map[int]*backup.File, lastLSN uint64) error
	SetRestoring(restoring bool)
}

// Publisher fans a Publish update out to the host's pubsub subscribers.
type Publisher interface {
	Publish(channel, message string)
}

// Endpoint is the immutable configuration for one replication client:
// where to connect, how to authenticate, and which logical namespace to
// expect back from the master. Created once per AddMaster; destroyed on
// RemoveMaster or process exit.
type Endpoint struct {
	MasterHost string
	MasterPort string
	Auth       string
	Namespace  string
	ListenPort string
}

func (e Endpoint) address() string {
	return net.JoinHostPort(e.MasterHost, e.MasterPort)
}

// Client drives the PSYNC and full-sync state machines and exposes the
// public ReplState observable described in spec section 3. Grounded on
// kvrocks's ReplicationThread (the handshake + incremental-loop step list)
// merged with the teacher's slave.go connect-with-backoff loop, replacing
// the teacher's JSON/LSN-sync push protocol with the wire handshake this
// core's external interface mandates.
type Client struct {
	endpoint     Endpoint
	applier      StorageApplier
	publisher    Publisher
	fetchDir     string
	fetchThreads int

	restore *RestoreCoordinator

	state      atomic.Int32
	lastIOTime atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewClient(endpoint Endpoint, applier StorageApplier, publisher Publisher, restore *RestoreCoordinator, fetchDir string, fetchThreads int) *Client {
	c := &Client{
		endpoint:     endpoint,
		applier:      applier,
		publisher:    publisher,
		restore:      restore,
		fetchDir:     fetchDir,
		fetchThreads: fetchThreads,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Client) State() ReplState {
	return ReplState(c.state.Load())
}

func (c *Client) setState(s ReplState) {
	c.state.Store(int32(s))
}

// LastIOTime is updated on every successful read or write so an external
// watchdog can distinguish a stall from a fast failure.
func (c *Client) LastIOTime() time.Time {
	return time.Unix(0, c.lastIOTime.Load())
}

func (c *Client) touchIO() {
	c.lastIOTime.Store(time.Now().UnixNano())
}

// Stop requests the client's loop to exit and waits for it to do so.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}

// Run drives the connect/handshake/incremental-loop cycle until Stop is
// called. It never returns while the host wants the client running;
// transient errors reconnect with capped exponential backoff, fatal
// errors (auth failure, namespace mismatch) leave ReplState = Error and
// halt the loop until the host explicitly restarts the client.
func (c *Client) Run(ctx context.Context) {
	defer close(c.doneCh)

	bo := newBackoff(10 * time.Second)

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.setState(StateConnecting)
		err := c.attempt(ctx)
		if err == nil {
			bo.reset()
			continue
		}

		if isFatal(err) {
			c.setState(StateError)
			logging.Error("replication client stopped on fatal error", zap.Error(err))
			return
		}

		c.setState(StateError)
		logging.Warn("replication attempt failed, reconnecting", zap.Error(err))
		d := bo.next()
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}

func isFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrDBNameMismatch) || errors.Is(err, ErrFatal)
}

// attempt runs one connect → handshake → (incremental | full-sync) cycle.
// It returns nil when the incremental loop stops because of Stop or ctx
// cancellation, or when a full sync has completed; after a full sync it
// does not send PSYNC itself, Run's next iteration reconnects and sends
// it. A disconnect during the incremental loop returns an ErrIO error.
func (c *Client) attempt(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", c.endpoint.address(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer conn.Close()
	c.touchIO()

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)

	if err := c.handshake(conn, reader, writer); err != nil {
		if err == ErrNeedFullSync {
			return c.fullSyncThenPSync(ctx, conn, reader, writer)
		}
		return err
	}

	c.setState(StateConnected)
	return c.incrementalLoop(ctx, reader)
}

// handshake runs the PSYNC step list (spec section 4.5) as an explicit
// ordered Step table driven by the Callback State Machine (C4), rather
// than a hand-rolled sequence of if-statements: auth, db-name check,
// replconf, psync. Returns ErrNeedFullSync (a signal, not a failure) when
// the master refuses PSYNC and asks for a full sync instead.
func (c *Client) handshake(conn net.Conn, reader *protocol.Reader, writer *protocol.Writer) error {
	var handshakeErr error

	steps := []Step{
		{Direction: DirectionWrite, Label: "auth", Handler: func(net.Conn) (Outcome, error) {
			c.setState(StateSendAuth)
			if c.endpoint.Auth == "" {
				return OutcomeNext, nil
			}
			if err := writer.WriteInline("AUTH", c.endpoint.Auth); err != nil {
				handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
		{Direction: DirectionRead, Label: "auth-reply", Handler: func(net.Conn) (Outcome, error) {
			if c.endpoint.Auth == "" {
				return OutcomeNext, nil
			}
			_, err := reader.ReadReply()
			c.touchIO()
			if err != nil {
				if replyErr, ok := err.(*protocol.ReplyError); ok {
					handshakeErr = fmt.Errorf("%w: %s", ErrAuth, replyErr.Message)
				} else {
					handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				}
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
		{Direction: DirectionWrite, Label: "db-name", Handler: func(net.Conn) (Outcome, error) {
			c.setState(StateCheckDBName)
			if err := writer.WriteInline("_db_name"); err != nil {
				handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
		{Direction: DirectionRead, Label: "db-name-reply", Handler: func(net.Conn) (Outcome, error) {
			dbName, err := reader.ReadBulkString()
			c.touchIO()
			if err != nil {
				handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				return OutcomeQuit, handshakeErr
			}
			if string(dbName) != c.endpoint.Namespace {
				handshakeErr = fmt.Errorf("%w: master=%q want=%q", ErrDBNameMismatch, dbName, c.endpoint.Namespace)
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
		{Direction: DirectionWrite, Label: "replconf", Handler: func(net.Conn) (Outcome, error) {
			c.setState(StateReplConf)
			if err := writer.WriteInline("REPLCONF", "listening-port", c.endpoint.ListenPort); err != nil {
				handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
		{Direction: DirectionRead, Label: "replconf-reply", Handler: func(net.Conn) (Outcome, error) {
			if _, err := reader.ReadReply(); err != nil {
				c.touchIO()
				// -ERR unknown command is tolerated for older masters per
				// the compatibility decision recorded for this open
				// question; any other -ERR reply is a protocol error and
				// any other I/O error is transient.
				replyErr, ok := err.(*protocol.ReplyError)
				if !ok {
					handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
					return OutcomeQuit, handshakeErr
				}
				if !strings.Contains(strings.ToLower(replyErr.Message), "unknown command") {
					handshakeErr = fmt.Errorf("%w: unexpected replconf reply %q", ErrProtocol, replyErr.Message)
					return OutcomeQuit, handshakeErr
				}
				return OutcomeNext, nil
			}
			c.touchIO()
			return OutcomeNext, nil
		}},
		{Direction: DirectionWrite, Label: "psync", Handler: func(net.Conn) (Outcome, error) {
			c.setState(StateSendPSync)
			nextSeq := c.applier.GetLastLSN() + 1
			if err := writer.WriteInline("PSYNC", strconv.FormatUint(nextSeq, 10)); err != nil {
				handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
		{Direction: DirectionRead, Label: "psync-reply", Handler: func(net.Conn) (Outcome, error) {
			reply, err := reader.ReadReply()
			c.touchIO()
			if err != nil {
				if replyErr, ok := err.(*protocol.ReplyError); ok {
					handshakeErr = classifyPSyncError(replyErr.Message)
				} else {
					handshakeErr = fmt.Errorf("%w: %w", ErrIO, err)
				}
				return OutcomeQuit, handshakeErr
			}
			if reply != "OK" {
				handshakeErr = fmt.Errorf("%w: unexpected psync reply %q", ErrProtocol, reply)
				return OutcomeQuit, handshakeErr
			}
			return OutcomeNext, nil
		}},
	}

	sm := NewStateMachine(steps, 10*time.Second)
	outcome, _ := sm.RunOnce(conn, c.stopCh)
	if outcome == OutcomeQuit && handshakeErr != nil {
		return handshakeErr
	}
	return nil
}

// incrementalLoop alternates AwaitingBatchSize/AwaitingBatchBody: read a
// `$<n>\r\n` header, read the n-byte batch, extract its updates, apply
// non-publish updates to storage (advancing its sequence atomically), and
// dispatch publish updates to the pubsub fan-out, per the Open Question
// decision recorded for publish/apply ordering (storage first).
func (c *Client) incrementalLoop(ctx context.Context, reader *protocol.Reader) error {
	for {
		select {
		case <-c.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := reader.ReadBulkOrError()
		c.touchIO()
		if err != nil {
			var replyErr *protocol.ReplyError
			if errors.As(err, &replyErr) {
				return ErrStoragePurged
			}
			return fmt.Errorf("%w: %w", ErrIO, err)
		}

		records, err := ExtractBatch(batch)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}

		var toApply []*wal.LogEntry
		var toPublish []UpdateRecord
		for _, rec := range records {
			switch rec.Kind {
			case UpdateKindPublish:
				toPublish = append(toPublish, rec)
			default:
				toApply = append(toApply, &wal.LogEntry{LSN: rec.LSN, Command: rec.Command, Arguments: rec.Arguments})
			}
		}

		if len(toApply) > 0 {
			if err := c.applier.ApplyLogs(toApply); err != nil {
				return fmt.Errorf("%w: %w", ErrFatal, err)
			}
		}

		if c.publisher != nil {
			for _, rec := range toPublish {
				if len(rec.Arguments) >= 2 {
					c.publisher.Publish(rec.Arguments[0], rec.Arguments[1])
				}
			}
		}
	}
}

// fullSyncThenPSync runs the full-sync steps (fetch meta, bracket the
// download with the restore coordinator, fetch files) and leaves the
// client in Connecting; PSYNC follows over a fresh connection on Run's
// next attempt, per spec section 4.5 step 6.
func (c *Client) fullSyncThenPSync(ctx context.Context, conn net.Conn, reader *protocol.Reader, writer *protocol.Writer) error {
	c.setState(StateFetchMeta)
	if err := writer.WriteInline("_fetch_meta"); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	idLine, err := reader.ReadBulkString()
	c.touchIO()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	backupID, err := strconv.ParseUint(strings.TrimSpace(string(idLine)), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed backup id %q", ErrProtocol, idLine)
	}

	sizeLine, err := reader.ReadBulkString()
	c.touchIO()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if _, err := strconv.Atoi(strings.TrimSpace(string(sizeLine))); err != nil {
		return fmt.Errorf("%w: malformed meta size %q", ErrProtocol, sizeLine)
	}

	content, err := reader.ReadBulkString()
	c.touchIO()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	lastLSN, files, err := parseBackupFileList(content)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	c.setState(StateFetchSST)
	meta := BackupMeta{ID: backupID, LastLSN: lastLSN, Files: files}

	fetchErr := c.restore.Run(func() error {
		return c.fetchAndApplyBackup(ctx, meta)
	})
	if fetchErr != nil {
		return fmt.Errorf("%w: %w", ErrCRCMismatch, fetchErr)
	}

	c.setState(StateConnecting)
	return nil
}

// fetchAndApplyBackup downloads every file the manifest lists into
// fetchDir, reopens each one keyed by its position in meta.Files (the
// same order backup.Manager.Create wrote them in, i.e. shard index), and
// swaps them into the engine via ReplaceDataDir. Runs inside the restore
// coordinator's bracket (C6), so the host sees SetRestoring(true) for the
// whole download-and-swap, not just the swap itself.
func (c *Client) fetchAndApplyBackup(ctx context.Context, meta BackupMeta) error {
	dial := func(ctx context.Context) (net.Conn, error) {
		return net.DialTimeout("tcp", c.endpoint.address(), 5*time.Second)
	}
	fetcher := NewFileFetcher(dial, c.fetchDir, c.fetchThreads, nil)
	if err := fetcher.Fetch(ctx, meta.Files); err != nil {
		return err
	}

	shardFiles := make(map[int]*backup.File, len(meta.Files))
	for i, fm := range meta.Files {
		f, err := os.Open(filepath.Join(c.fetchDir, fm.Filename))
		if err != nil {
			return fmt.Errorf("failed to open fetched shard file %q: %w", fm.Filename, err)
		}
		shardFiles[i] = &backup.File{File: f, CRC32: fm.CRC32}
	}
	defer func() {
		for _, f := range shardFiles {
			f.Close()
		}
	}()

	return c.applier.ReplaceDataDir(shardFiles, meta.LastLSN)
}

// parseBackupFileList parses `_fetch_meta`'s content bulk string: a
// leading "LSN <n>" record naming the WAL sequence number the backup was
// taken at (so PSYNC can resume from the right place after the swap),
// followed by one "<name> <crc>" record per file.
func parseBackupFileList(content []byte) (uint64, []BackupFileMeta, error) {
	var lastLSN uint64
	var files []BackupFileMeta
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) == 2 && strings.EqualFold(parts[0], "LSN") {
			lsn, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed LSN record %q: %w", line, err)
			}
			lastLSN = lsn
			continue
		}
		if len(parts) != 2 {
			return 0, nil, fmt.Errorf("malformed backup file record %q", line)
		}
		crc, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("malformed crc in record %q: %w", line, err)
		}
		files = append(files, BackupFileMeta{Filename: parts[0], CRC32: uint32(crc)})
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, err
	}
	return lastLSN, files, nil
}
