package main

import (
	"path/filepath"
	"testing"

	"questchain/config"
	"questchain/crypto"
	"questchain/native/quest"
)

func TestBuildGenesisParsesAddresses(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	genesis, err := buildGenesis(config.GenesisConfig{
		Tokens:   []config.GenesisToken{{Symbol: "QST", Name: "Quest Token", Decimals: 18}},
		Balances: []config.GenesisBalance{{Address: addr.String(), Token: "QST", Amount: "5000"}},
	})
	if err != nil {
		t.Fatalf("build genesis: %v", err)
	}
	if len(genesis.Balances) != 1 || genesis.Balances[0].Address != addr.Raw() {
		t.Fatalf("unexpected balances %+v", genesis.Balances)
	}
	if genesis.Balances[0].Amount.Int64() != 5000 {
		t.Fatalf("unexpected amount %s", genesis.Balances[0].Amount)
	}

	if _, err := buildGenesis(config.GenesisConfig{Balances: []config.GenesisBalance{{Address: "nope", Token: "QST", Amount: "1"}}}); err == nil {
		t.Fatalf("expected address error")
	}
}

func TestNodeOptionsSelectsRandomness(t *testing.T) {
	cfg := config.Default()
	cfg.Quest.Paused = true
	opts, err := nodeOptions(cfg, nil)
	if err != nil {
		t.Fatalf("node options: %v", err)
	}
	if _, ok := opts.Randomness.(quest.TimestampRandomness); !ok {
		t.Fatalf("expected timestamp randomness, got %T", opts.Randomness)
	}
	if !opts.Pauses.IsPaused(quest.ModuleName) {
		t.Fatalf("expected quest module paused")
	}

	cfg.Quest.Randomness = "beacon"
	cfg.Quest.BeaconSeed = "0xdeadbeef"
	opts, err = nodeOptions(cfg, nil)
	if err != nil {
		t.Fatalf("node options: %v", err)
	}
	beacon, ok := opts.Randomness.(quest.BeaconRandomness)
	if !ok || len(beacon.Beacon) != 4 {
		t.Fatalf("expected beacon randomness, got %#v", opts.Randomness)
	}
}

func TestOpenStoreAndIndexerDSN(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = "bolt"
	db, err := openStore(cfg)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	db.Close()

	cfg.Storage.Backend = "tape"
	if _, err := openStore(cfg); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	if got := indexerDSN(cfg); got != filepath.Join(cfg.DataDir, "quest-index.db") {
		t.Fatalf("unexpected dsn %s", got)
	}
	cfg.Indexer.Driver = "postgres"
	cfg.Indexer.DSN = "postgres://quest@localhost/quest"
	if got := indexerDSN(cfg); got != cfg.Indexer.DSN {
		t.Fatalf("postgres dsn rewritten to %s", got)
	}
}
