package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EVENTACTOR_GRPC_ADDR", "")
	t.Setenv("EVENTACTOR_FIREHOSE_ADDR", "")
	t.Setenv("EVENTACTOR_ALLOWED_ORIGINS", "")
	t.Setenv("EVENTACTOR_MAX_PAYLOAD_BYTES", "")
	t.Setenv("EVENTACTOR_PING_INTERVAL", "")
	t.Setenv("EVENTACTOR_MAX_CLIENTS", "")
	t.Setenv("EVENTACTOR_TLS_CERT", "")
	t.Setenv("EVENTACTOR_TLS_KEY", "")
	t.Setenv("EVENTACTOR_SHARED_SECRET", "")
	t.Setenv("EVENTACTOR_LOG_LEVEL", "")
	t.Setenv("EVENTACTOR_LOG_PATH", "")
	t.Setenv("EVENTACTOR_LOG_MAX_SIZE_MB", "")
	t.Setenv("EVENTACTOR_LOG_MAX_BACKUPS", "")
	t.Setenv("EVENTACTOR_LOG_MAX_AGE_DAYS", "")
	t.Setenv("EVENTACTOR_LOG_COMPRESS", "")
	t.Setenv("EVENTACTOR_JOURNAL_DIR", "")
	t.Setenv("EVENTACTOR_RETENTION_SWEEP_INTERVAL", "")
	t.Setenv("EVENTACTOR_RETENTION_MAX_ENTITIES", "")
	t.Setenv("EVENTACTOR_MAX_BATCH_SIZE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.GRPCAddress != DefaultGRPCAddr {
		t.Fatalf("expected default grpc addr %q, got %q", DefaultGRPCAddr, cfg.GRPCAddress)
	}
	if cfg.FirehoseAddress != DefaultFirehoseAddr {
		t.Fatalf("expected default firehose addr %q, got %q", DefaultFirehoseAddr, cfg.FirehoseAddress)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("expected default ping interval %v, got %v", DefaultPingInterval, cfg.PingInterval)
	}
	if cfg.MaxClients != DefaultMaxClients {
		t.Fatalf("expected default max clients %d, got %d", DefaultMaxClients, cfg.MaxClients)
	}
	if cfg.TLSCertPath != "" || cfg.TLSKeyPath != "" {
		t.Fatalf("expected TLS paths to be empty, got cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	if cfg.SharedSecret != "" {
		t.Fatalf("expected shared secret to be empty by default")
	}
	if cfg.JournalDir != "eventactor-journal" {
		t.Fatalf("expected default journal dir, got %q", cfg.JournalDir)
	}
	if cfg.RetentionSweepInterval != DefaultRetentionSweepInterval {
		t.Fatalf("expected default retention sweep interval %v, got %v", DefaultRetentionSweepInterval, cfg.RetentionSweepInterval)
	}
	if cfg.RetentionMaxEntities != DefaultRetentionMaxEntities {
		t.Fatalf("expected default retention max entities %d, got %d", DefaultRetentionMaxEntities, cfg.RetentionMaxEntities)
	}
	if cfg.MaxBatchSize != DefaultMaxBatchSize {
		t.Fatalf("expected default max batch size %d, got %d", DefaultMaxBatchSize, cfg.MaxBatchSize)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("expected default log path %q, got %q", DefaultLogPath, cfg.Logging.Path)
	}
	if cfg.Logging.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Fatalf("expected default log max size %d, got %d", DefaultLogMaxSizeMB, cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups != DefaultLogMaxBackups {
		t.Fatalf("expected default log max backups %d, got %d", DefaultLogMaxBackups, cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays != DefaultLogMaxAgeDays {
		t.Fatalf("expected default log max age %d, got %d", DefaultLogMaxAgeDays, cfg.Logging.MaxAgeDays)
	}
	if cfg.Logging.Compress != DefaultLogCompress {
		t.Fatalf("expected default log compress %t, got %t", DefaultLogCompress, cfg.Logging.Compress)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EVENTACTOR_GRPC_ADDR", "127.0.0.1:50051")
	t.Setenv("EVENTACTOR_FIREHOSE_ADDR", "127.0.0.1:8090")
	t.Setenv("EVENTACTOR_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("EVENTACTOR_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("EVENTACTOR_PING_INTERVAL", "45s")
	t.Setenv("EVENTACTOR_MAX_CLIENTS", "12")
	t.Setenv("EVENTACTOR_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("EVENTACTOR_TLS_KEY", "/tmp/key.pem")
	t.Setenv("EVENTACTOR_SHARED_SECRET", "s3cret")
	t.Setenv("EVENTACTOR_LOG_LEVEL", "debug")
	t.Setenv("EVENTACTOR_LOG_PATH", "/var/log/eventactord.log")
	t.Setenv("EVENTACTOR_LOG_MAX_SIZE_MB", "512")
	t.Setenv("EVENTACTOR_LOG_MAX_BACKUPS", "4")
	t.Setenv("EVENTACTOR_LOG_MAX_AGE_DAYS", "2")
	t.Setenv("EVENTACTOR_LOG_COMPRESS", "false")
	t.Setenv("EVENTACTOR_JOURNAL_DIR", "/var/run/eventactor/journal")
	t.Setenv("EVENTACTOR_RETENTION_SWEEP_INTERVAL", "2m")
	t.Setenv("EVENTACTOR_RETENTION_MAX_ENTITIES", "500")
	t.Setenv("EVENTACTOR_MAX_BATCH_SIZE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.GRPCAddress != "127.0.0.1:50051" {
		t.Fatalf("unexpected grpc address %q", cfg.GRPCAddress)
	}
	if cfg.FirehoseAddress != "127.0.0.1:8090" {
		t.Fatalf("unexpected firehose address %q", cfg.FirehoseAddress)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != 2048 {
		t.Fatalf("expected overridden max payload, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval.String() != "45s" {
		t.Fatalf("expected ping interval 45s, got %v", cfg.PingInterval)
	}
	if cfg.MaxClients != 12 {
		t.Fatalf("expected max clients 12, got %d", cfg.MaxClients)
	}
	if cfg.TLSCertPath != "/tmp/cert.pem" || cfg.TLSKeyPath != "/tmp/key.pem" {
		t.Fatalf("unexpected TLS paths cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	if cfg.SharedSecret != "s3cret" {
		t.Fatalf("expected overridden shared secret, got %q", cfg.SharedSecret)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected overridden log level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Path != "/var/log/eventactord.log" {
		t.Fatalf("unexpected log path %q", cfg.Logging.Path)
	}
	if cfg.Logging.MaxSizeMB != 512 {
		t.Fatalf("expected log max size 512, got %d", cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups != 4 {
		t.Fatalf("expected log max backups 4, got %d", cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays != 2 {
		t.Fatalf("expected log max age 2, got %d", cfg.Logging.MaxAgeDays)
	}
	if cfg.Logging.Compress {
		t.Fatalf("expected log compression disabled")
	}
	if cfg.JournalDir != "/var/run/eventactor/journal" {
		t.Fatalf("unexpected journal dir %q", cfg.JournalDir)
	}
	if cfg.RetentionSweepInterval != 2*time.Minute {
		t.Fatalf("expected retention sweep interval 2m, got %v", cfg.RetentionSweepInterval)
	}
	if cfg.RetentionMaxEntities != 500 {
		t.Fatalf("expected retention max entities 500, got %d", cfg.RetentionMaxEntities)
	}
	if cfg.MaxBatchSize != 50 {
		t.Fatalf("expected max batch size 50, got %d", cfg.MaxBatchSize)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("EVENTACTOR_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("EVENTACTOR_PING_INTERVAL", "abc")
	t.Setenv("EVENTACTOR_MAX_CLIENTS", "-1")
	t.Setenv("EVENTACTOR_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("EVENTACTOR_TLS_KEY", "")
	t.Setenv("EVENTACTOR_LOG_MAX_SIZE_MB", "-1")
	t.Setenv("EVENTACTOR_LOG_MAX_BACKUPS", "-2")
	t.Setenv("EVENTACTOR_LOG_MAX_AGE_DAYS", "-3")
	t.Setenv("EVENTACTOR_LOG_COMPRESS", "notabool")
	t.Setenv("EVENTACTOR_RETENTION_SWEEP_INTERVAL", "-")
	t.Setenv("EVENTACTOR_RETENTION_MAX_ENTITIES", "-2")
	t.Setenv("EVENTACTOR_MAX_BATCH_SIZE", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"EVENTACTOR_MAX_PAYLOAD_BYTES",
		"EVENTACTOR_PING_INTERVAL",
		"EVENTACTOR_MAX_CLIENTS",
		"EVENTACTOR_TLS_CERT",
		"EVENTACTOR_LOG_MAX_SIZE_MB",
		"EVENTACTOR_LOG_MAX_BACKUPS",
		"EVENTACTOR_LOG_MAX_AGE_DAYS",
		"EVENTACTOR_LOG_COMPRESS",
		"EVENTACTOR_RETENTION_SWEEP_INTERVAL",
		"EVENTACTOR_RETENTION_MAX_ENTITIES",
		"EVENTACTOR_MAX_BATCH_SIZE",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	t.Setenv("EVENTACTOR_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAllowsUnlimitedClients(t *testing.T) {
	t.Setenv("EVENTACTOR_MAX_CLIENTS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.MaxClients != 0 {
		t.Fatalf("expected zero to disable limit, got %d", cfg.MaxClients)
	}
}

func TestLoadWithCustomTLSPair(t *testing.T) {
	certFile := createTempFile(t)
	keyFile := createTempFile(t)

	t.Setenv("EVENTACTOR_TLS_CERT", certFile)
	t.Setenv("EVENTACTOR_TLS_KEY", keyFile)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TLSCertPath != certFile || cfg.TLSKeyPath != keyFile {
		t.Fatalf("unexpected TLS pair cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
}

func createTempFile(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "eventactor-config-test-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	name := f.Name()
	f.Close()
	t.Cleanup(func() { _ = os.Remove(name) })
	return name
}
