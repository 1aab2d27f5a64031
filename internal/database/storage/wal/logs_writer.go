package wal

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/kvreplica/kvreplica/internal/logging"
	"github.com/kvreplica/kvreplica/internal/utils"
	"go.uber.org/zap"
)

var ErrNilLogEntry = errors.New("log entry cannot be nil")

type FileSystemWriteSyncer interface {
	WriteSync(data []byte, lsnStart uint64) error
}

type FileLogsWriter struct {
	filesystem FileSystemWriteSyncer
	buf        *bytes.Buffer
}

func NewFileLogsWriter(fileSystem FileSystemWriteSyncer) *FileLogsWriter {
	buf := &bytes.Buffer{}
	buf.Grow(9192)
	return &FileLogsWriter{filesystem: fileSystem, buf: buf}
}

func (l *FileLogsWriter) Write(logs []*Log) (err error) {
	if len(logs) == 0 {
		return nil
	}

	for _, log := range logs {
		if log == nil {
			return ErrNilLogEntry
		}
	}

	defer func() {
		if v := recover(); v != nil {
			err = errors.New("Write logs to disk failed due to panic")
			logging.Error(
				"Failed to write logs to disk",
				zap.String("component", "WAL Logs Writer"),
				zap.String("method", "Write"),
				zap.Any("panic", v),
			)
		}
	}()

	l.buf.Reset()
	for _, log := range logs {
		l.encodeLog(log, l.buf)
	}
	return l.filesystem.WriteSync(l.buf.Bytes(), logs[0].LSN)
}

func (l *FileLogsWriter) encodeLog(log *Log, buf *bytes.Buffer) {
	var lsnBuf [10]byte
	n := binary.PutUvarint(lsnBuf[:], log.LSN)
	buf.Write(lsnBuf[:n])

	var cmdBuf [5]byte
	n = binary.PutUvarint(cmdBuf[:], uint64(log.Command))
	buf.Write(cmdBuf[:n])

	n = binary.PutUvarint(lsnBuf[:], uint64(len(log.Arguments)))
	buf.Write(lsnBuf[:n])

	for _, arg := range log.Arguments {
		n = binary.PutUvarint(lsnBuf[:], uint64(len(arg)))
		buf.Write(lsnBuf[:n])
		buf.Write(utils.StringToBytes(arg))
	}
}
