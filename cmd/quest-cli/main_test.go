package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"questchain/core"
	"questchain/crypto"
	"questchain/rpc"
	"questchain/storage"
)

const questYAML = `
rewardToken: QST
rewardPerWinner: "50"
maxWinners: 2
distribution: raffle
condition:
  kind: token_hold
  amount: "10"
  token: QST
  holdDuration: 3600
durationSeconds: 600
rewardPool: "100"
title: Hold QST for an hour
metadata:
  category: holding
  difficulty: 2
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadQuestFile(t *testing.T) {
	payload, err := loadQuestFile(writeFile(t, "quest.yaml", questYAML))
	require.NoError(t, err)
	require.Equal(t, "raffle", payload.Distribution)
	require.Equal(t, uint64(3600), payload.Condition.HoldDuration)
	require.NotNil(t, payload.Metadata)
	require.Equal(t, uint32(2), payload.Metadata.Difficulty)

	_, err = loadQuestFile(writeFile(t, "bad.yaml", questYAML+"bonus: 1\n"))
	require.Error(t, err)
}

func TestCreateAndQueryAgainstNode(t *testing.T) {
	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "admin.keystore")
	require.NoError(t, crypto.SaveToKeystore(keyPath, admin, "pass", crypto.LightScrypt))

	node, err := core.NewNode(storage.NewMemDB(), core.Options{})
	require.NoError(t, err)
	_, err = node.ApplyGenesis(core.Genesis{
		Tokens:   []core.GenesisToken{{Symbol: "QST", Name: "Quest Token", Decimals: 18}},
		Balances: []core.GenesisBalance{{Address: admin.PubKey().Address().Raw(), Token: "QST", Amount: big.NewInt(500)}},
	})
	require.NoError(t, err)
	server := httptest.NewServer(rpc.NewServer(node, rpc.Options{}).Router())
	defer server.Close()

	var stdout, stderr bytes.Buffer
	env := &cliEnv{
		endpoint: server.URL,
		pass:     func() (string, error) { return "pass", nil },
		stdout:   &stdout,
		stderr:   &stderr,
	}
	code := run(env, []string{"create", "--key", keyPath, "--file", writeFile(t, "quest.yaml", questYAML)})
	require.Equal(t, 0, code, stderr.String())
	var created rpc.QuestJSON
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &created))
	require.Equal(t, "raffle", created.Distribution)
	require.Equal(t, "token_hold", created.Condition.Kind)

	stdout.Reset()
	code = run(env, []string{"balance", "--address", admin.PubKey().Address().String()})
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), `"balance": "400"`)

	stdout.Reset()
	code = run(env, []string{"active"})
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, "[\n  0\n]", strings.TrimSpace(stdout.String()))

	stderr.Reset()
	code = run(env, []string{"resolve", "--key", keyPath, "--id", "0"})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "not finished")
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	env := &cliEnv{endpoint: "http://127.0.0.1:1", stdout: &bytes.Buffer{}, stderr: &stderr}
	require.Equal(t, 1, run(env, []string{"teleport"}))
	require.Contains(t, stderr.String(), "Unknown command")
}
