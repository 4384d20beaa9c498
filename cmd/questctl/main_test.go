package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"questchain/config"
	"questchain/core/types"
	"questchain/crypto"
	"questchain/indexer"
)

type fakeEvent struct{ evt *types.Event }

func (e fakeEvent) EventType() string   { return e.evt.Type }
func (e fakeEvent) Event() *types.Event { return e.evt }

func staticPass() func() (string, error) {
	return func() (string, error) { return "correct horse", nil }
}

func TestKeygenWritesLoadableKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	var stdout, stderr bytes.Buffer
	code := run([]string{"keygen", "--out", path, "--light"}, &stdout, &stderr, staticPass())
	require.Equal(t, 0, code, stderr.String())

	key, err := crypto.LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), strings.TrimSpace(stdout.String()))

	code = run([]string{"keygen", "--out", path, "--light"}, &stdout, &stderr, staticPass())
	require.Equal(t, 1, code)
}

func TestAddressRoundTrip(t *testing.T) {
	var stdout bytes.Buffer
	raw := [20]byte{0xAB}
	code := run([]string{"address", crypto.AddressFromRaw(raw).String()}, &stdout, &bytes.Buffer{}, nil)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "0xab00000000000000000000000000000000000000", lines[1])
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	var stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"init-config", "--out", path}, &bytes.Buffer{}, &stderr, nil))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default().ListenAddress, cfg.ListenAddress)

	require.Equal(t, 1, run([]string{"init-config", "--out", path}, &bytes.Buffer{}, &stderr, nil))
	require.Equal(t, 0, run([]string{"init-config", "--out", path, "--force"}, &bytes.Buffer{}, &stderr, nil))
}

func TestExportEventsWritesCSV(t *testing.T) {
	db, err := indexer.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	ix, err := indexer.New(db, nil)
	require.NoError(t, err)
	for _, id := range []string{"0", "1", "0"} {
		ix.Emit(fakeEvent{evt: &types.Event{Type: "quest.registered", Attributes: map[string]string{"questId": id}}})
	}

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	var stdout bytes.Buffer
	require.NoError(t, exportEvents(context.Background(), ix, cfg, "csv", "", 0, &stdout))
	require.Contains(t, stdout.String(), "exported 2 events")

	f, err := os.Open(filepath.Join(cfg.DataDir, cfg.Indexer.ExportDir, "quest-events.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Error(t, exportEvents(context.Background(), ix, cfg, "xml", "", -1, &stdout))
}
