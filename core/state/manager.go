package state

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"questchain/storage"
)

var (
	ErrEmptyKey        = errors.New("state: empty key")
	ErrTokenExists     = errors.New("state: token already registered")
	ErrTokenUnknown    = errors.New("state: token not registered")
	ErrNegativeBalance = errors.New("state: negative balance")
)

// Manager exposes typed reads and writes over the node's key-value store.
// Writes are staged in a journal and only reach the database on Commit;
// Discard drops them. One manager models one atomic unit of work.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	journal journal
}

// journal keeps staged writes in first-touch order so commits are
// deterministic. A nil value marks a deletion.
type journal struct {
	staged map[string][]byte
	order  []string
}

func (j *journal) get(key string) (value []byte, staged bool) {
	value, staged = j.staged[key]
	return value, staged
}

func (j *journal) set(key string, value []byte) {
	if j.staged == nil {
		j.staged = make(map[string][]byte)
	}
	if _, ok := j.staged[key]; !ok {
		j.order = append(j.order, key)
	}
	j.staged[key] = value
}

func (j *journal) reset() {
	j.staged = nil
	j.order = nil
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// hashKey maps a logical key to its storage key.
func hashKey(key []byte) string {
	return string(ethcrypto.Keccak256(key))
}

func (m *Manager) read(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	hashed := hashKey(key)
	if value, ok := m.journal.get(hashed); ok {
		return value, nil
	}
	if m.db == nil {
		return nil, errors.New("state: database not configured")
	}
	data, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Dirty reports the number of keys touched since the last Commit or Discard.
func (m *Manager) Dirty() int { return len(m.journal.order) }

// Commit flushes every staged write to the database as one batch.
func (m *Manager) Commit() error {
	if len(m.journal.order) == 0 {
		return nil
	}
	batch := storage.NewBatch()
	for _, key := range m.journal.order {
		if value := m.journal.staged[key]; value != nil {
			batch.Put([]byte(key), value)
		} else {
			batch.Delete([]byte(key))
		}
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.journal.reset()
	return nil
}

// Discard drops all staged writes.
func (m *Manager) Discard() { m.journal.reset() }

// KVPut RLP-encodes value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	if encoded == nil {
		encoded = []byte{}
	}
	m.journal.set(hashKey(key), encoded)
	return nil
}

// KVGet decodes the value under key into out and reports whether it existed.
// A nil out only checks existence.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := m.read(key)
	if err != nil || len(data) == 0 {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) KVHas(key []byte) (bool, error) {
	return m.KVGet(key, nil)
}

func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	m.journal.set(hashKey(key), nil)
	return nil
}

// KVGetList decodes an RLP list stored under key into the slice pointed to by
// out. A missing key yields an empty, non-nil slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Ptr || dst.IsNil() || dst.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("state: list destination must be a non-nil slice pointer, got %T", out)
	}
	found, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !found {
		dst.Elem().Set(reflect.MakeSlice(dst.Elem().Type(), 0, 0))
	}
	return nil
}

// TokenMetadata describes a native token registered at genesis.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var tokenListKey = []byte("token/list")

func tokenKey(symbol string) []byte { return []byte("token/meta/" + symbol) }

func balanceKey(addr []byte, symbol string) []byte {
	return []byte(fmt.Sprintf("balance/%s/%x", symbol, addr))
}

func normalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", errors.New("state: token symbol required")
	}
	return normalized, nil
}

// RegisterToken records a native token and adds it to the sorted token index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("state: token %s needs a name", normalized)
	}
	exists, err := m.KVHas(tokenKey(normalized))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, normalized)
	}
	var list []string
	if err := m.KVGetList(tokenListKey, &list); err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.KVPut(tokenListKey, list); err != nil {
		return err
	}
	return m.KVPut(tokenKey(normalized), &TokenMetadata{Symbol: normalized, Name: strings.TrimSpace(name), Decimals: decimals})
}

// Token returns the metadata for symbol, or nil when it is not registered.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	meta := new(TokenMetadata)
	found, err := m.KVGet(tokenKey(normalized), meta)
	if err != nil || !found {
		return nil, err
	}
	return meta, nil
}

// TokenList returns every registered symbol in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	var list []string
	err := m.KVGetList(tokenListKey, &list)
	return list, err
}

func (m *Manager) TokenExists(symbol string) bool {
	meta, err := m.Token(symbol)
	return err == nil && meta != nil
}

// SetBalance stores the balance of addr in a registered token.
func (m *Manager) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	if len(addr) == 0 {
		return errors.New("state: address required")
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	meta, err := m.Token(symbol)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrTokenUnknown, strings.ToUpper(strings.TrimSpace(symbol)))
	}
	return m.KVPut(balanceKey(addr, meta.Symbol), amount)
}

// Balance returns the balance of addr, zero when never set.
func (m *Manager) Balance(addr []byte, symbol string) (*big.Int, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if _, err := m.KVGet(balanceKey(addr, normalized), amount); err != nil {
		return nil, err
	}
	return amount, nil
}
