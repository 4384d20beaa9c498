package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"questchain/cmd/internal/passphrase"
	"questchain/crypto"
	"questchain/rpc"
)

const (
	defaultEndpoint = "http://127.0.0.1:8547"
	endpointEnv     = "QUEST_RPC_URL"
	tokenEnv        = "QUEST_RPC_TOKEN"
	keystorePassEnv = "QUEST_KEYSTORE_PASS"
)

// cliEnv carries the process dependencies so tests can swap them.
type cliEnv struct {
	endpoint string
	bearer   string
	pass     func() (string, error)
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	env := &cliEnv{
		endpoint: defaultEndpoint,
		bearer:   os.Getenv(tokenEnv),
		pass:     passphrase.NewSource(keystorePassEnv).Get,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	if v := strings.TrimSpace(os.Getenv(endpointEnv)); v != "" {
		env.endpoint = v
	}
	os.Exit(run(env, os.Args[1:]))
}

func run(env *cliEnv, args []string) int {
	global := flag.NewFlagSet("quest-cli", flag.ContinueOnError)
	global.SetOutput(env.stderr)
	global.StringVar(&env.endpoint, "rpc", env.endpoint, "JSON-RPC endpoint")
	if err := global.Parse(args); err != nil {
		return 1
	}
	args = global.Args()
	if len(args) == 0 {
		fmt.Fprintln(env.stderr, usage())
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(env.stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(env.stderr, usage())
		return 1
	}
	client := rpc.NewClient(env.endpoint).WithBearer(env.bearer)
	if err := cmd(env, client, args[1:]); err != nil {
		fmt.Fprintf(env.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type command func(env *cliEnv, client *rpc.Client, args []string) error

var commands = map[string]command{
	"create":       runCreate,
	"register":     signedIDCommand("register", "quest_register"),
	"mark":         runMark,
	"resolve":      signedIDCommand("resolve", "quest_resolve"),
	"distribute":   signedIDCommand("distribute", "quest_distributeRewards"),
	"cancel":       signedIDCommand("cancel", "quest_cancel"),
	"withdraw":     signedIDCommand("withdraw", "quest_withdrawRemainder"),
	"get":          readIDCommand("get", "quest_get"),
	"participants": readIDCommand("participants", "quest_participants"),
	"winners":      readIDCommand("winners", "quest_winners"),
	"stats":        readIDCommand("stats", "quest_stats"),
	"list":         runList,
	"active":       runActive,
	"user-stats":   readUserCommand("user-stats", "quest_userStats"),
	"user-quests":  readUserCommand("user-quests", "quest_userQuests"),
	"balance":      runBalance,
	"events":       runEvents,
}

func usage() string {
	return strings.TrimSpace(`
Usage: quest-cli [--rpc URL] <command> [flags]

Signed commands (require --key <keystore>):
  create --file quest.yaml      open a quest from a YAML definition
  register --id N               register the key holder for quest N
  mark --id N --user ADDR       mark ADDR as having completed quest N
  resolve --id N                close quest N and select winners
  distribute --id N             pay the winners of quest N
  cancel --id N                 cancel quest N and refund the pool
  withdraw --id N               return the unused pool of quest N

Queries:
  get|participants|winners|stats --id N
  list [--status all|active|inactive]
  active
  user-stats|user-quests --user ADDR
  balance --address ADDR --token SYMBOL
  events [--quest N] [--type TYPE] [--after SEQ] [--limit N]`)
}

func newFlagSet(name string, env *cliEnv) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

func loadKey(env *cliEnv, path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	pass, err := env.pass()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func callTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// loadQuestFile reads a quest definition written in YAML.
func loadQuestFile(path string) (rpc.QuestCreatePayload, error) {
	var payload rpc.QuestCreatePayload
	data, err := os.ReadFile(path)
	if err != nil {
		return payload, err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&payload); err != nil {
		return payload, fmt.Errorf("parse %s: %w", path, err)
	}
	return payload, nil
}

func runCreate(env *cliEnv, client *rpc.Client, args []string) error {
	fs := newFlagSet("create", env)
	keyPath := fs.String("key", "", "keystore of the quest admin")
	file := fs.String("file", "", "YAML quest definition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return fmt.Errorf("--file is required")
	}
	payload, err := loadQuestFile(*file)
	if err != nil {
		return err
	}
	key, err := loadKey(env, *keyPath)
	if err != nil {
		return err
	}
	ctx, cancel := callTimeout()
	defer cancel()
	var out rpc.QuestJSON
	if err := client.CallSigned(ctx, "quest_create", key, payload, &out); err != nil {
		return err
	}
	return printJSON(env.stdout, out)
}

func signedIDCommand(name, method string) command {
	return func(env *cliEnv, client *rpc.Client, args []string) error {
		fs := newFlagSet(name, env)
		keyPath := fs.String("key", "", "signing keystore")
		id := fs.Uint64("id", 0, "quest id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		key, err := loadKey(env, *keyPath)
		if err != nil {
			return err
		}
		ctx, cancel := callTimeout()
		defer cancel()
		var out json.RawMessage
		if err := client.CallSigned(ctx, method, key, rpc.QuestIDPayload{ID: *id}, &out); err != nil {
			return err
		}
		return printJSON(env.stdout, out)
	}
}

func runMark(env *cliEnv, client *rpc.Client, args []string) error {
	fs := newFlagSet("mark", env)
	keyPath := fs.String("key", "", "keystore of the quest admin")
	id := fs.Uint64("id", 0, "quest id")
	user := fs.String("user", "", "participant address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return fmt.Errorf("--user is required")
	}
	key, err := loadKey(env, *keyPath)
	if err != nil {
		return err
	}
	ctx, cancel := callTimeout()
	defer cancel()
	var out json.RawMessage
	if err := client.CallSigned(ctx, "quest_markEligible", key, rpc.QuestUserPayload{ID: *id, User: *user}, &out); err != nil {
		return err
	}
	return printJSON(env.stdout, out)
}

func readIDCommand(name, method string) command {
	return func(env *cliEnv, client *rpc.Client, args []string) error {
		fs := newFlagSet(name, env)
		id := fs.Uint64("id", 0, "quest id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return query(env, client, method, rpc.QuestIDPayload{ID: *id})
	}
}

func readUserCommand(name, method string) command {
	return func(env *cliEnv, client *rpc.Client, args []string) error {
		fs := newFlagSet(name, env)
		user := fs.String("user", "", "account address")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*user) == "" {
			return fmt.Errorf("--user is required")
		}
		return query(env, client, method, rpc.UserPayload{User: *user})
	}
}

func runList(env *cliEnv, client *rpc.Client, args []string) error {
	fs := newFlagSet("list", env)
	status := fs.String("status", "all", "all, active or inactive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return query(env, client, "quest_list", rpc.ListPayload{Status: *status})
}

func runActive(env *cliEnv, client *rpc.Client, _ []string) error {
	return query(env, client, "quest_listActive", nil)
}

func runBalance(env *cliEnv, client *rpc.Client, args []string) error {
	fs := newFlagSet("balance", env)
	address := fs.String("address", "", "account address")
	token := fs.String("token", "QST", "token symbol")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return query(env, client, "bank_balance", rpc.BalancePayload{Address: *address, Token: *token})
}

func runEvents(env *cliEnv, client *rpc.Client, args []string) error {
	fs := newFlagSet("events", env)
	questID := fs.Int64("quest", -1, "only events for this quest")
	eventType := fs.String("type", "", "only events of this type")
	after := fs.Uint64("after", 0, "only events after this sequence")
	limit := fs.Int("limit", 100, "maximum events returned")
	if err := fs.Parse(args); err != nil {
		return err
	}
	payload := rpc.EventsPayload{Type: *eventType, AfterSequence: *after, Limit: *limit}
	if *questID >= 0 {
		id := uint64(*questID)
		payload.QuestID = &id
	}
	return query(env, client, "quest_events", payload)
}

func query(env *cliEnv, client *rpc.Client, method string, params interface{}) error {
	ctx, cancel := callTimeout()
	defer cancel()
	var out json.RawMessage
	if err := client.Call(ctx, method, params, &out); err != nil {
		return err
	}
	return printJSON(env.stdout, out)
}
