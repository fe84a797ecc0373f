package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config controls orchestration policy.
type Config struct {
	// SyncTimeout bounds one repository sync, network included.
	SyncTimeout time.Duration
	// RestartTimeout bounds one container restart attempt.
	RestartTimeout time.Duration
	// RestartOnSyncFailure, when set, runs restart discovery against
	// last-known-good code even after a failed sync. Default off:
	// containers are not restarted against a tree that did not update.
	RestartOnSyncFailure bool
	// QueueSyncs makes a second signal for an in-flight repository wait
	// instead of being rejected with ErrSyncInProgress.
	QueueSyncs bool
	// LogQueueSize bounds the async operation log queue.
	LogQueueSize int
}

// DefaultConfig returns the stock orchestration policy.
func DefaultConfig() Config {
	return Config{
		SyncTimeout:    2 * time.Minute,
		RestartTimeout: 30 * time.Second,
		LogQueueSize:   64,
	}
}

// LoadConfigFromEnv loads orchestration config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if value := strings.TrimSpace(os.Getenv("REPODOCK_SYNC_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REPODOCK_SYNC_TIMEOUT: %s", value)
		}
		if parsed > 0 {
			cfg.SyncTimeout = parsed
		}
	}

	if value := strings.TrimSpace(os.Getenv("REPODOCK_RESTART_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REPODOCK_RESTART_TIMEOUT: %s", value)
		}
		if parsed > 0 {
			cfg.RestartTimeout = parsed
		}
	}

	cfg.RestartOnSyncFailure = strings.EqualFold(os.Getenv("REPODOCK_RESTART_ON_SYNC_FAILURE"), "true")
	cfg.QueueSyncs = strings.EqualFold(os.Getenv("REPODOCK_QUEUE_SYNCS"), "true")

	return cfg, nil
}
