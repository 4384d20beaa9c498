package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	switch c.Indexer.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unknown driver %q", c.Indexer.Driver)
	}
	if c.Indexer.Driver != "" && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: dsn required for driver %s", c.Indexer.Driver)
	}
	switch c.Quest.Randomness {
	case "timestamp":
	case "beacon":
		seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(c.Quest.BeaconSeed), "0x"))
		if err != nil || len(seed) == 0 {
			return fmt.Errorf("quest: beacon randomness needs a hex BeaconSeed")
		}
	default:
		return fmt.Errorf("quest: unknown randomness source %q", c.Quest.Randomness)
	}
	if c.Quest.MaxTitleLength < 0 || c.Quest.MaxDescriptionLength < 0 {
		return fmt.Errorf("quest: text limits must not be negative")
	}
	if c.RPC.RateLimitPerMinute < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.SignatureTTLSeconds < 0 {
		return fmt.Errorf("rpc: signature ttl must not be negative")
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when enabled")
	}
	tokens := make(map[string]bool, len(c.Genesis.Tokens))
	for _, tok := range c.Genesis.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(tok.Symbol))
		if symbol == "" {
			return fmt.Errorf("genesis: token symbol required")
		}
		if tokens[symbol] {
			return fmt.Errorf("genesis: duplicate token %s", symbol)
		}
		tokens[symbol] = true
	}
	for i, bal := range c.Genesis.Balances {
		if !tokens[strings.ToUpper(strings.TrimSpace(bal.Token))] {
			return fmt.Errorf("genesis: balance %d references unknown token %q", i, bal.Token)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(bal.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("genesis: balance %d has invalid amount %q", i, bal.Amount)
		}
		if strings.TrimSpace(bal.Address) == "" {
			return fmt.Errorf("genesis: balance %d missing address", i)
		}
	}
	return nil
}

// BeaconBytes decodes the configured beacon seed.
func (q QuestConfig) BeaconBytes() []byte {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(q.BeaconSeed), "0x"))
	if err != nil {
		return nil
	}
	return seed
}
