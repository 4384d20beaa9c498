package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultNetworkName = "quest-local"
	DefaultEnvironment = "dev"
)

type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	NetworkName   string          `toml:"NetworkName"`
	Environment   string          `toml:"Environment"`
	Storage       StorageConfig   `toml:"Storage"`
	Indexer       IndexerConfig   `toml:"Indexer"`
	Quest         QuestConfig     `toml:"Quest"`
	RPC           RPCConfig       `toml:"RPC"`
	Logging       LoggingConfig   `toml:"Logging"`
	Telemetry     TelemetryConfig `toml:"Telemetry"`
	Genesis       GenesisConfig   `toml:"Genesis"`
}

// StorageConfig selects the key-value engine backing chain state.
type StorageConfig struct {
	// Backend is one of "leveldb", "bolt" or "memory".
	Backend string `toml:"Backend"`
}

// IndexerConfig controls the SQL event index. An empty driver disables it.
type IndexerConfig struct {
	Driver    string `toml:"Driver"`
	DSN       string `toml:"DSN"`
	ExportDir string `toml:"ExportDir"`
}

type QuestConfig struct {
	// Randomness is "timestamp" or "beacon".
	Randomness           string `toml:"Randomness"`
	BeaconSeed           string `toml:"BeaconSeed"`
	Paused               bool   `toml:"Paused"`
	MaxTitleLength       int    `toml:"MaxTitleLength"`
	MaxDescriptionLength int    `toml:"MaxDescriptionLength"`
}

type RPCConfig struct {
	RateLimitPerMinute  int    `toml:"RateLimitPerMinute"`
	RateLimitBurst      int    `toml:"RateLimitBurst"`
	JWTSecret           string `toml:"JWTSecret"`
	JWTSecretEnv        string `toml:"JWTSecretEnv"`
	JWTIssuer           string `toml:"JWTIssuer"`
	SignatureTTLSeconds int64  `toml:"SignatureTTLSeconds"`
	ReadHeaderTimeout   int    `toml:"ReadHeaderTimeout"`
}

// JWTKey resolves the admin token secret, preferring the environment.
func (c RPCConfig) JWTKey() string {
	if name := strings.TrimSpace(c.JWTSecretEnv); name != "" {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.JWTSecret)
}

type LoggingConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

type TelemetryConfig struct {
	Enabled  bool              `toml:"Enabled"`
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	// SampleRatio keeps this fraction of root traces; 0 keeps all.
	SampleRatio float64 `toml:"SampleRatio"`
}

type GenesisConfig struct {
	Tokens   []GenesisToken   `toml:"Tokens"`
	Balances []GenesisBalance `toml:"Balances"`
}

type GenesisToken struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// GenesisBalance credits Amount (base-10 integer) of Token to Address when
// the state database is first created.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

// Load loads the configuration from the given path, writing a default file
// first if none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8547",
		DataDir:       "./quest-data",
		NetworkName:   DefaultNetworkName,
		Environment:   DefaultEnvironment,
		Storage:       StorageConfig{Backend: "leveldb"},
		Indexer:       IndexerConfig{Driver: "sqlite", DSN: "quest-index.db", ExportDir: "exports"},
		Quest: QuestConfig{
			Randomness:           "timestamp",
			MaxTitleLength:       128,
			MaxDescriptionLength: 2048,
		},
		RPC: RPCConfig{
			RateLimitPerMinute:  600,
			RateLimitBurst:      60,
			JWTSecretEnv:        "QUEST_RPC_JWT_SECRET",
			JWTIssuer:           "questchain",
			SignatureTTLSeconds: 300,
			ReadHeaderTimeout:   5,
		},
		Logging: LoggingConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Genesis: GenesisConfig{
			Tokens: []GenesisToken{{Symbol: "QST", Name: "Quest Token", Decimals: 18}},
		},
	}
	return cfg
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = def.NetworkName
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = def.Environment
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if strings.TrimSpace(c.Quest.Randomness) == "" {
		c.Quest.Randomness = def.Quest.Randomness
	}
	c.Quest.Randomness = strings.ToLower(strings.TrimSpace(c.Quest.Randomness))
	if c.RPC.SignatureTTLSeconds == 0 {
		c.RPC.SignatureTTLSeconds = def.RPC.SignatureTTLSeconds
	}
	if c.RPC.ReadHeaderTimeout == 0 {
		c.RPC.ReadHeaderTimeout = def.RPC.ReadHeaderTimeout
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := Persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Persist writes cfg to path as TOML.
func Persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
