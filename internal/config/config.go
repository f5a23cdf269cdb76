package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// StoreConfig selects where activities, clusters and personas live.
// Driver is "sqlite" or "memgraph".
type StoreConfig struct {
	Driver        string   `toml:"driver"`
	SQLitePath    string   `toml:"sqlite_path"`
	LookupTimeout Duration `toml:"lookup_timeout"`
}

type ExtractionConfig struct {
	MinConfidence string   `toml:"min_confidence"`
	ToolTypes     []string `toml:"tool_types"`
	IncludeURL    bool     `toml:"include_url"`
}

type ClusteringConfig struct {
	MinClusterSize int `toml:"min_cluster_size"`
}

type GatesConfig struct {
	MinActivities    int     `toml:"min_activities"`
	MinToolTypes     int     `toml:"min_tool_types"`
	MaxObserverRatio float64 `toml:"max_observer_ratio"`
}

type NarrativeConfig struct {
	Framework            string   `toml:"framework"`
	MaxSourcesPerSection int      `toml:"max_sources_per_section"`
	RelevanceFloor       float64  `toml:"relevance_floor"`
	ConfidenceFloor      float64  `toml:"confidence_floor"`
	ConfidenceBonus      float64  `toml:"confidence_bonus"`
	MaxSpan              Duration `toml:"max_span"`
}

type EnrichmentConfig struct {
	Enabled           bool     `toml:"enabled"`
	Prompt            string   `toml:"prompt"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Concurrency       int      `toml:"concurrency"`
}

type ConcurrencyConfig struct {
	BulkGenerate int `toml:"bulk_generate"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	Store       StoreConfig       `toml:"store"`
	Extraction  ExtractionConfig  `toml:"extraction"`
	Clustering  ClusteringConfig  `toml:"clustering"`
	Gates       GatesConfig       `toml:"gates"`
	Narrative   NarrativeConfig   `toml:"narrative"`
	Enrichment  EnrichmentConfig  `toml:"enrichment"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Log         LogConfig         `toml:"log"`
}

// Duration reads TOML strings such as "30s" or "4320h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		LLM:      LLMConfig{Provider: "none", MaxTokens: 1000},
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		Store: StoreConfig{
			Driver:        "sqlite",
			SQLitePath:    "storyline.db",
			LookupTimeout: Duration{10 * time.Second},
		},
		Extraction: ExtractionConfig{MinConfidence: "low"},
		Clustering: ClusteringConfig{MinClusterSize: 2},
		Gates:      GatesConfig{MinActivities: 2, MinToolTypes: 2, MaxObserverRatio: 0.5},
		Narrative: NarrativeConfig{
			Framework:            "star",
			MaxSourcesPerSection: 3,
			RelevanceFloor:       0.3,
			ConfidenceFloor:      0.6,
			ConfidenceBonus:      0.15,
			MaxSpan:              Duration{180 * 24 * time.Hour},
		},
		Enrichment: EnrichmentConfig{
			Enabled:           true,
			Timeout:           Duration{30 * time.Second},
			RequestsPerSecond: 2,
			Burst:             2,
			Concurrency:       4,
		},
		Concurrency: ConcurrencyConfig{BulkGenerate: 4},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a TOML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set and exists, else the defaults.
// Environment overrides are applied either way.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if cfg, err = Load(path); err != nil {
				return nil, err
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"LLM_PROVIDER":      &c.LLM.Provider,
		"LLM_MODEL":         &c.LLM.Model,
		"LLM_API_KEY":       &c.LLM.APIKey,
		"LLM_BASE_URL":      &c.LLM.BaseURL,
		"MEMGRAPH_URI":      &c.Memgraph.URI,
		"MEMGRAPH_USER":     &c.Memgraph.User,
		"MEMGRAPH_PASSWORD": &c.Memgraph.Password,
		"STORE_DRIVER":      &c.Store.Driver,
		"SQLITE_PATH":       &c.Store.SQLitePath,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("ENRICHMENT_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENRICHMENT_ENABLED %q: %w", v, err)
		}
		c.Enrichment.Enabled = b
	}
	if v, ok := os.LookupEnv("BULK_GENERATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BULK_GENERATE %q: %w", v, err)
		}
		c.Concurrency.BulkGenerate = n
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	return nil
}
