// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// NodeID uniquely identifies this edge node to the central authority.
	NodeID string
	// NodeKey authenticates this node against the central gateway.
	NodeKey string

	// ServerHost is the host address the status API server will bind to.
	ServerHost string
	// ServerPort is the port number the status API server will listen on.
	ServerPort int

	// DBDriver is the database driver to use ("sqlite" or "postgres").
	DBDriver string
	// DBConnectionString is the connection string for the local store.
	DBConnectionString string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// GatewayServerHost is the host address the central gateway server binds to.
	GatewayServerHost string
	// GatewayServerPort is the port number the central gateway server listens on.
	GatewayServerPort int

	// GatewayURL is the base URL of the central authority's sync gateway.
	GatewayURL string
	// GatewayTimeout is the per-call timeout for ordinary change submissions.
	GatewayTimeout time.Duration
	// GatewayCriticalTimeout is the shorter per-call timeout for critical submissions.
	GatewayCriticalTimeout time.Duration

	// WorkerPoolSize bounds concurrent transmissions across distinct entity keys.
	WorkerPoolSize int
	// WorkerBatchSize is the maximum number of ready entries claimed per cycle.
	WorkerBatchSize int
	// WorkerInterval is the delay between dispatch cycles when the queue is idle.
	WorkerInterval time.Duration
	// WorkerLeaseDuration is how long an InFlight claim remains valid before
	// the entry reverts to Pending for another worker to pick up.
	WorkerLeaseDuration time.Duration

	// RetryMaxAttempts quarantines an entry after this many failed transmissions.
	RetryMaxAttempts int
	// RetryInitialInterval is the first backoff delay after a transient failure.
	RetryInitialInterval time.Duration
	// RetryMaxInterval caps the exponential backoff delay.
	RetryMaxInterval time.Duration

	// PullEnabled toggles the periodic inbound master-data pull.
	PullEnabled bool
	// PullInterval is the period between inbound master-data pulls.
	PullInterval time.Duration

	// ProbeInterval is the period between connectivity probes.
	ProbeInterval time.Duration
	// ProbeTimeout is the timeout for a single connectivity probe.
	ProbeTimeout time.Duration

	// OfflineAlertAge raises an operator alert when the oldest pending entry
	// has been queued longer than this duration. Alert only, no cutoff.
	OfflineAlertAge time.Duration

	// RateLimitEnabled indicates whether outbound request pacing is enabled.
	RateLimitEnabled bool
	// RateLimitRequestsPerSec is the number of gateway requests allowed per second.
	RateLimitRequestsPerSec float64
	// RateLimitBurst is the burst size for outbound request pacing.
	RateLimitBurst int

	// CriticalEntityTypes lists entity types routed through the critical
	// submission sub-engine (query-before-retry semantics).
	CriticalEntityTypes []string
	// CriticalPriority is the priority band assigned to critical submissions.
	CriticalPriority int
	// CriticalStatusWarnAfter is the number of failed reconciliation status
	// queries after which each further miss is logged at warning level.
	// Reconciliation itself never gives up.
	CriticalStatusWarnAfter int

	// ConflictPolicies maps entity types to conflict resolution policies,
	// parsed from a comma-separated "entityType=policy" list.
	ConflictPolicies map[string]string
	// ConflictPolicyDefault applies to entity types absent from ConflictPolicies.
	ConflictPolicyDefault string

	// CORSEnabled indicates whether CORS is enabled on the gateway.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Node identity
		NodeID:  env.GetString("NODE_ID", "node-local"),
		NodeKey: env.GetString("NODE_KEY", ""),

		// Status API server
		ServerHost: env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// Local store configuration
		DBDriver:             env.GetString("DB_DRIVER", "sqlite"),
		DBConnectionString:   env.GetString("DB_CONNECTION_STRING", "file:edgesync.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 10),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 5),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME", 5, time.Minute),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Central gateway
		GatewayServerHost: env.GetString("GATEWAY_SERVER_HOST", "0.0.0.0"),
		GatewayServerPort: env.GetInt("GATEWAY_SERVER_PORT", 9090),
		GatewayURL:             env.GetString("GATEWAY_URL", "http://localhost:9090"),
		GatewayTimeout:         env.GetDuration("GATEWAY_TIMEOUT_SECONDS", 30, time.Second),
		GatewayCriticalTimeout: env.GetDuration("GATEWAY_CRITICAL_TIMEOUT_SECONDS", 10, time.Second),

		// Sync worker
		WorkerPoolSize:      env.GetInt("WORKER_POOL_SIZE", 4),
		WorkerBatchSize:     env.GetInt("WORKER_BATCH_SIZE", 32),
		WorkerInterval:      env.GetDuration("WORKER_INTERVAL_MS", 500, time.Millisecond),
		WorkerLeaseDuration: env.GetDuration("WORKER_LEASE_SECONDS", 120, time.Second),

		// Retry controller
		RetryMaxAttempts:     env.GetInt("RETRY_MAX_ATTEMPTS", 8),
		RetryInitialInterval: env.GetDuration("RETRY_INITIAL_INTERVAL_MS", 500, time.Millisecond),
		RetryMaxInterval:     env.GetDuration("RETRY_MAX_INTERVAL_SECONDS", 300, time.Second),

		// Inbound pull
		PullEnabled:  env.GetBool("PULL_ENABLED", true),
		PullInterval: env.GetDuration("PULL_INTERVAL_SECONDS", 60, time.Second),

		// Connectivity monitor
		ProbeInterval: env.GetDuration("PROBE_INTERVAL_SECONDS", 15, time.Second),
		ProbeTimeout:  env.GetDuration("PROBE_TIMEOUT_SECONDS", 5, time.Second),

		// Offline-age alerting
		OfflineAlertAge: env.GetDuration("OFFLINE_ALERT_AGE_HOURS", 24, time.Hour),

		// Outbound pacing
		RateLimitEnabled:        env.GetBool("RATE_LIMIT_ENABLED", false),
		RateLimitRequestsPerSec: env.GetFloat64("RATE_LIMIT_REQUESTS_PER_SEC", 20.0),
		RateLimitBurst:          env.GetInt("RATE_LIMIT_BURST", 40),

		// Critical submissions
		CriticalEntityTypes:     splitList(env.GetString("CRITICAL_ENTITY_TYPES", "tax-invoice,momo-payment")),
		CriticalPriority:        env.GetInt("CRITICAL_PRIORITY", 100),
		CriticalStatusWarnAfter: env.GetInt("CRITICAL_STATUS_WARN_AFTER", 10),

		// Conflict policy table
		ConflictPolicies: parsePolicyTable(env.GetString(
			"CONFLICT_POLICY",
			"price=authoritative-central,catalog=authoritative-central,promotion=authoritative-central,customer=lww,stock-count=manual",
		)),
		ConflictPolicyDefault: env.GetString("CONFLICT_POLICY_DEFAULT", "manual"),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "edgesync"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// IsCriticalEntityType reports whether the entity type is routed through the
// critical submission sub-engine.
func (c *Config) IsCriticalEntityType(entityType string) bool {
	for _, t := range c.CriticalEntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	case "info", "warn", "error":
		return "release"
	default:
		return "release"
	}
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parsePolicyTable parses a comma-separated "entityType=policy" list.
// Malformed items are skipped rather than failing startup.
func parsePolicyTable(value string) map[string]string {
	table := make(map[string]string)
	for _, item := range splitList(value) {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		entityType := strings.TrimSpace(parts[0])
		policy := strings.TrimSpace(parts[1])
		if entityType == "" || policy == "" {
			continue
		}
		table[entityType] = policy
	}
	return table
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}
