package configuration

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	EngineInMemoryKey = "in_memory"

	RoleMaster = "master"
	RoleSlave  = "slave"
)

var (
	ErrConfigFileMissing = errors.New("no config file path provided")
	ErrWALMustBeEnabled  = errors.New("replication requires WAL to be configured")
)

type EngineConfig struct {
	Type string `yaml:"type"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

type NetworkConfig struct {
	Ip                      string `yaml:"ip"`
	Port                    string `yaml:"port"`
	MaxConnections          int    `yaml:"max_connections"`
	MaxMessageSize          int    `yaml:"max_message_size"`
	IdleTimeout             int    `yaml:"idle_timeout"`
	GracefulShutdownTimeout int    `yaml:"graceful_shutdown_timeout"`
}

type WALConfig struct {
	FlushBatchSize    int    `yaml:"flush_batch_size"`
	FlushBatchTimeout int    `yaml:"flush_batch_timeout"`
	MaxSegmentSize    int    `yaml:"max_segment_size"`
	DataDirectory     string `yaml:"data_directory"`
}

// BackupConfig controls where full-sync snapshots are written on the
// master and how many are kept before older ones are purged. Nothing
// restores from a kept snapshot when a slave's restore fails.
type BackupConfig struct {
	Directory     string `yaml:"directory"`
	RetainedCount int    `yaml:"retained_count"`
}

// ReplicationConfig configures this node's role in master-slave
// replication (spec.md section 6, "Configuration options recognized by
// this core").
type ReplicationConfig struct {
	Role          string `yaml:"role" validate:"required,oneof=master slave"`
	MasterAddress string `yaml:"master_address"`
	MasterPort    string `yaml:"master_port"`
	SlaveID       string `yaml:"slave_id"`

	// MasterAuth is the password sent in the AUTH step; empty skips AUTH.
	MasterAuth string `yaml:"masterauth"`
	// Namespace is the logical database identifier exchanged with
	// `_db_name`; a mismatch against the master's reply is fatal.
	Namespace string `yaml:"repl_namespace"`
	// ServeStaleData controls whether the data port answers reads while
	// this node's replication client is not in the Connected state.
	ServeStaleData bool `yaml:"replica_serve_stale_data"`
	// MaxReplicationMB is an advisory per-feeder write-rate ceiling,
	// applied at flush time.
	MaxReplicationMB int `yaml:"max_replication_mb"`
	// FetchFileThreads bounds File Fetcher (C2) parallelism.
	FetchFileThreads int `yaml:"fetch_file_threads"`
}

type Config struct {
	Engine      EngineConfig       `yaml:"engine"`
	Logging     LoggingConfig      `yaml:"logging"`
	Network     NetworkConfig      `yaml:"network"`
	WAL         *WALConfig         `yaml:"wal"`
	Backup      *BackupConfig      `yaml:"backup"`
	Replication *ReplicationConfig `yaml:"replication"`
}

func NewConfig() (*Config, error) {
	configFilePath := os.Getenv("CONFIG_FILEPATH")
	if configFilePath == "" {
		return nil, ErrConfigFileMissing
	}

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Replication == nil {
		return nil
	}

	if config.WAL == nil {
		return ErrWALMustBeEnabled
	}

	v := validator.New()
	if err := v.Struct(config.Replication); err != nil {
		return err
	}

	if config.Replication.Role == RoleSlave {
		if config.Replication.MasterAddress == "" || config.Replication.MasterPort == "" {
			return fmt.Errorf("replication role %q requires master_address and master_port", RoleSlave)
		}
	}

	return nil
}

func applyDefaults(config *Config) {
	if config.Replication == nil {
		return
	}

	if config.Replication.FetchFileThreads <= 0 {
		config.Replication.FetchFileThreads = 4
	}

	if config.Backup == nil {
		config.Backup = &BackupConfig{
			Directory:     "backup",
			RetainedCount: 1,
		}
		return
	}

	if config.Backup.Directory == "" {
		config.Backup.Directory = "backup"
	}
	if config.Backup.RetainedCount <= 0 {
		config.Backup.RetainedCount = 1
	}
}
