package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"questchain/cmd/internal/passphrase"
	"questchain/config"
	"questchain/crypto"
	"questchain/indexer"
)

const (
	defaultPassEnv = "QUEST_KEYSTORE_PASS"
	defaultConfig  = "./config.toml"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, passphrase.NewSource(defaultPassEnv).Get))
}

func run(args []string, stdout, stderr io.Writer, pass func() (string, error)) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	var err error
	switch args[0] {
	case "keygen":
		err = runKeygen(args[1:], stdout, stderr, pass)
	case "address":
		err = runAddress(args[1:], stdout)
	case "init-config":
		err = runInitConfig(args[1:], stdout, stderr)
	case "export-events":
		err = runExport(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: questctl <command> [flags]")
	fmt.Fprintln(w, "  keygen --out FILE [--light]           create an encrypted keystore")
	fmt.Fprintln(w, "  address ADDR|KEYSTORE                 show an address in bech32 and hex")
	fmt.Fprintln(w, "  init-config --out FILE [--force]      write the default node config")
	fmt.Fprintln(w, "  export-events --config FILE --format parquet|csv --out FILE [--quest N]")
}

func runKeygen(args []string, stdout, stderr io.Writer, pass func() (string, error)) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "keystore output path")
	light := fs.Bool("light", false, "use light scrypt parameters (devnet only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return fmt.Errorf("--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}
	passphrase, err := pass()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardScrypt
	if *light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystore(*out, key, passphrase, params); err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func runAddress(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one address expected")
	}
	var raw [20]byte
	if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
		addr, err := crypto.KeystoreAddress(args[0])
		if err != nil {
			return err
		}
		raw = addr.Raw()
	} else {
		parsed, err := crypto.ParseAddress(args[0])
		if err != nil {
			return err
		}
		raw = parsed
	}
	fmt.Fprintln(stdout, crypto.AddressFromRaw(raw).String())
	fmt.Fprintln(stdout, "0x"+hex.EncodeToString(raw[:]))
	return nil
}

func runInitConfig(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", defaultConfig, "config output path")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *out)
	}
	if err := config.Persist(*out, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

func runExport(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export-events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfig, "node config")
	format := fs.String("format", "parquet", "parquet or csv")
	out := fs.String("out", "", "output file (defaults under the export dir)")
	questID := fs.Int64("quest", -1, "only events for this quest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Indexer.Driver == "" {
		return fmt.Errorf("event index disabled in %s", *configPath)
	}
	dsn := cfg.Indexer.DSN
	if cfg.Indexer.Driver == "sqlite" && !filepath.IsAbs(dsn) && !strings.HasPrefix(dsn, "file:") {
		dsn = filepath.Join(cfg.DataDir, dsn)
	}
	db, err := indexer.Open(cfg.Indexer.Driver, dsn)
	if err != nil {
		return err
	}
	ix, err := indexer.New(db, nil)
	if err != nil {
		return err
	}
	return exportEvents(context.Background(), ix, cfg, *format, *out, *questID, stdout)
}

func exportEvents(ctx context.Context, ix *indexer.Indexer, cfg *config.Config, format, out string, questID int64, stdout io.Writer) error {
	filter := indexer.Filter{}
	if questID >= 0 {
		id := uint64(questID)
		filter.QuestID = &id
	}
	var rows []indexer.QuestEvent
	for {
		page, err := ix.List(ctx, filter)
		if err != nil {
			return err
		}
		rows = append(rows, page...)
		if len(page) == 0 {
			break
		}
		filter.AfterSequence = page[len(page)-1].Sequence
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if out == "" {
		out = filepath.Join(cfg.DataDir, cfg.Indexer.ExportDir, "quest-events."+format)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	switch format {
	case "parquet":
		if err := indexer.WriteParquet(out, rows); err != nil {
			return err
		}
	case "csv":
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := indexer.WriteCSV(f, rows); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	fmt.Fprintf(stdout, "exported %d events to %s\n", len(rows), out)
	return nil
}
