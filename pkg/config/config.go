// Package config loads runtime configuration for the context engine: required
// infra settings from the environment (following the teacher's getEnv/
// LoadConfigFromEnv idiom) plus an optional operational YAML file merged over
// built-in defaults with dario.cat/mergo, following pkg/config/loader.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/contextengine/pkg/database"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// RCRTAPIURL is the base URL of the record store's HTTP/SSE surface
	// (§6): the change-stream subscription and any REST fallback calls.
	RCRTAPIURL string
	// OwnerID scopes every gateway operation to a single tenant (§3).
	OwnerID uuid.UUID
	// AgentID identifies this process as an event-loop consumer of its own
	// (distinct from the downstream agent consumers it assembles context for).
	AgentID string

	Database database.Config

	Operational Operational
}

// Operational holds the tunables the core does not mandate a fixed value
// for (§4.1 blacklist refresh cadence, §9 shared mutable caches) — loaded
// from an optional YAML file and merged over DefaultOperational.
type Operational struct {
	// BlacklistRefreshInterval is how often the gateway re-loads the
	// context.blacklist.v1 record; zero disables the periodic refresh (the
	// blacklist is still loaded once, fatally, at startup).
	BlacklistRefreshInterval time.Duration `yaml:"blacklist_refresh_interval"`
	// SubgraphRadius is the hop count for load_subgraph (§4.7 step 4 uses
	// radius=2). It is loaded and merged like the other fields, but nothing
	// passes it to the assembler, which always uses radius 2.
	SubgraphRadius int `yaml:"subgraph_radius"`
	// BackfillBatchSize bounds the startup entity backfill scan (§4.8).
	BackfillBatchSize int `yaml:"backfill_batch_size"`
	// DebugListenAddr is the address pkg/debugapi binds, empty disables it.
	DebugListenAddr string `yaml:"debug_listen_addr"`
	// DashboardPushEnabled turns on the optional websocket fan-out of
	// freshly assembled context records.
	DashboardPushEnabled bool `yaml:"dashboard_push_enabled"`
}

// DefaultOperational mirrors the spec's literal defaults (radius=2 per
// §4.7 step 4, backfill cap 10000 per §4.8, refresh off per §4.1 "the core
// does not mandate a refresh cadence").
var DefaultOperational = Operational{
	BlacklistRefreshInterval: 0,
	SubgraphRadius:           2,
	BackfillBatchSize:        10000,
	DebugListenAddr:          ":8090",
	DashboardPushEnabled:     false,
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Load reads environment variables and, if present, an operational YAML file
// at operationalConfigPath, returning a validated Config.
func Load(operationalConfigPath string) (*Config, error) {
	ownerRaw := getEnv("OWNER_ID", "00000000-0000-0000-0000-000000000001")
	ownerID, err := uuid.Parse(ownerRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid OWNER_ID: %w", err)
	}

	maxDBConns, err := strconv.Atoi(getEnv("MAX_DB_CONNECTIONS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_DB_CONNECTIONS: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	dbCfg.MaxOpenConns = maxDBConns

	op, err := loadOperational(operationalConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load operational config: %w", err)
	}

	cfg := &Config{
		RCRTAPIURL:  getEnv("RCRT_API_URL", "http://localhost:8080"),
		OwnerID:     ownerID,
		AgentID:     getEnv("AGENT_ID", "context-engine"),
		Database:    dbCfg,
		Operational: op,
	}

	return cfg, nil
}

// loadOperational merges an optional YAML file's contents over
// DefaultOperational. A missing file is not an error — the defaults apply.
func loadOperational(path string) (Operational, error) {
	op := DefaultOperational

	if path == "" {
		return op, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return op, nil
		}
		return op, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fromFile Operational
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return op, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := mergo.Merge(&op, fromFile, mergo.WithOverride); err != nil {
		return op, fmt.Errorf("failed to merge operational config: %w", err)
	}

	return op, nil
}

// CacheSizeMB and MaxSessions are read directly by callers that size
// in-process caches (§6); they are not part of Operational because they
// describe resource budgets, not engine behavior.
func CacheSizeMB() int {
	v, err := strconv.Atoi(getEnv("CACHE_SIZE_MB", "1024"))
	if err != nil {
		return 1024
	}
	return v
}

// MaxSessions bounds how many distinct sessions the process keeps warm state for.
func MaxSessions() int {
	v, err := strconv.Atoi(getEnv("MAX_SESSIONS", "100"))
	if err != nil {
		return 100
	}
	return v
}
