package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultGRPCAddr is the default TCP address the journal/rpc server listens on.
	DefaultGRPCAddr = ":43127"
	// DefaultFirehoseAddr is the default TCP address the firehose HTTP/WS server listens on.
	DefaultFirehoseAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for firehose WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes is the default for Config.MaxPayloadBytes. The
	// value is validated and stored, but the firehose hub does not read it and
	// sets no limit on inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent firehose WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultRetentionSweepInterval controls how often the file journal's
	// cleaner sweeps for entities past their retention policy.
	DefaultRetentionSweepInterval = time.Minute
	// DefaultRetentionMaxEntities bounds how many distinct persistence ids'
	// journal segments the cleaner keeps on disk; 0 disables the bound.
	DefaultRetentionMaxEntities = 0

	// DefaultLogLevel controls verbosity for eventactord logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "eventactord.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultMaxBatchSize bounds how many journal envelopes a single entity
	// will offer to the journal in one WriteMessages round trip (C3).
	DefaultMaxBatchSize = 200

	// DefaultJournalBackend selects the durable on-disk journal unless
	// overridden.
	DefaultJournalBackend = JournalBackendFile
	// JournalBackendMemory keeps everything in-process; state is lost on restart.
	JournalBackendMemory = "memory"
	// JournalBackendFile durably persists to EVENTACTOR_JOURNAL_DIR.
	JournalBackendFile = "file"
	// JournalBackendRPC delegates to a remote journal/rpc server.
	JournalBackendRPC = "rpc"
)

// Config captures all runtime tunables for the eventactord host process.
type Config struct {
	GRPCAddress     string
	FirehoseAddress string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string
	SharedSecret    string

	JournalBackend         string
	JournalDir             string
	JournalRPCAddr         string
	RetentionSweepInterval time.Duration
	RetentionMaxEntities   int

	MaxBatchSize int

	FirehoseEnabled bool

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the eventactord configuration from environment variables,
// applying sane defaults and returning descriptive errors for invalid
// overrides.
func Load() (*Config, error) {
	cfg := &Config{
		GRPCAddress:     getString("EVENTACTOR_GRPC_ADDR", DefaultGRPCAddr),
		FirehoseAddress: getString("EVENTACTOR_FIREHOSE_ADDR", DefaultFirehoseAddr),
		AllowedOrigins:  parseList(os.Getenv("EVENTACTOR_ALLOWED_ORIGINS")),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		MaxClients:      DefaultMaxClients,
		TLSCertPath:     strings.TrimSpace(os.Getenv("EVENTACTOR_TLS_CERT")),
		TLSKeyPath:      strings.TrimSpace(os.Getenv("EVENTACTOR_TLS_KEY")),
		SharedSecret:    strings.TrimSpace(os.Getenv("EVENTACTOR_SHARED_SECRET")),

		JournalBackend:         strings.ToLower(getString("EVENTACTOR_JOURNAL_BACKEND", DefaultJournalBackend)),
		JournalDir:             getString("EVENTACTOR_JOURNAL_DIR", "eventactor-journal"),
		JournalRPCAddr:         strings.TrimSpace(os.Getenv("EVENTACTOR_JOURNAL_RPC_ADDR")),
		RetentionSweepInterval: DefaultRetentionSweepInterval,
		RetentionMaxEntities:   DefaultRetentionMaxEntities,

		MaxBatchSize: DefaultMaxBatchSize,

		FirehoseEnabled: true,

		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("EVENTACTOR_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("EVENTACTOR_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_RETENTION_SWEEP_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_RETENTION_SWEEP_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.RetentionSweepInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_RETENTION_MAX_ENTITIES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_RETENTION_MAX_ENTITIES must be a non-negative integer, got %q", raw))
		} else {
			cfg.RetentionMaxEntities = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_MAX_BATCH_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_MAX_BATCH_SIZE must be a positive integer, got %q", raw))
		} else {
			cfg.MaxBatchSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("EVENTACTOR_FIREHOSE_ENABLED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("EVENTACTOR_FIREHOSE_ENABLED must be a boolean value, got %q", raw))
		} else {
			cfg.FirehoseEnabled = value
		}
	}

	switch cfg.JournalBackend {
	case JournalBackendMemory, JournalBackendFile, JournalBackendRPC:
	default:
		problems = append(problems, fmt.Sprintf("EVENTACTOR_JOURNAL_BACKEND must be one of memory|file|rpc, got %q", cfg.JournalBackend))
	}
	if cfg.JournalBackend == JournalBackendRPC && cfg.JournalRPCAddr == "" {
		problems = append(problems, "EVENTACTOR_JOURNAL_RPC_ADDR must be set when EVENTACTOR_JOURNAL_BACKEND=rpc")
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "EVENTACTOR_TLS_CERT and EVENTACTOR_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
