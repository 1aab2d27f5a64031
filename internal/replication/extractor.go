package replication

import (
	"bytes"
	"fmt"

	"github.com/kvreplica/kvreplica/internal/database/compute"
	"github.com/kvreplica/kvreplica/internal/database/storage/encoders"
)

// ExtractBatch decodes a raw write-batch as produced by the storage
// engine's WAL writer into a sequence of UpdateRecords, classifying each
// entry by its command's namespace. Entries tagged with
// compute.PublishCommandID become Publish updates (channel/message carried
// in Arguments); entries tagged compute.PropagateCommandID become
// Propagate updates carried through for raw replay. Everything else is a
// plain data mutation (SET/DEL) and is also surfaced as a Propagate update
// so the slave applies it via the normal storage path.
//
// This is the Go-native C1: the teacher's storage engine has no RocksDB
// column families to inspect, so namespace classification reads the
// command ID range Storage.Namespace already uses instead of a
// column-family byte.
func ExtractBatch(batch []byte) ([]UpdateRecord, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrDecodeBatch)
	}

	reader := bytes.NewReader(batch)
	var records []UpdateRecord
	for reader.Len() > 0 {
		log, _, err := encoders.DecodeLog(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeBatch, err)
		}

		switch log.Command {
		case compute.PublishCommandID:
			if len(log.Arguments) < 2 {
				continue
			}
			records = append(records, UpdateRecord{
				Kind:      UpdateKindPublish,
				LSN:       log.LSN,
				Command:   log.Command,
				Arguments: log.Arguments,
			})
		default:
			records = append(records, UpdateRecord{
				Kind:      UpdateKindPropagate,
				LSN:       log.LSN,
				Command:   log.Command,
				Arguments: log.Arguments,
			})
		}
	}

	return records, nil
}
