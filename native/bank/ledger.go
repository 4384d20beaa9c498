package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const vaultSeedPrefix = "questchain/vault/"

var (
	// ErrInsufficientBalance is returned when the sender cannot cover a transfer.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrUnknownToken marks transfers in tokens absent from the registry.
	ErrUnknownToken = errors.New("bank: token not registered")
	// ErrInvalidAmount marks negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
)

// balanceStore is the subset of the state manager used by the ledger.
type balanceStore interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	TokenExists(symbol string) bool
}

// Ledger moves native token balances between accounts. Every transfer either
// fully applies to the staged state or returns an error without touching it.
type Ledger struct {
	store balanceStore
}

// NewLedger binds a ledger to the supplied balance store.
func NewLedger(store balanceStore) *Ledger {
	return &Ledger{store: store}
}

// NormalizeToken returns the canonical upper-case symbol.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("bank: token symbol required")
	}
	return trimmed, nil
}

// ModuleVault derives the custody address holding a module's escrowed funds
// for the given token.
func ModuleVault(module, token string) [20]byte {
	seed := vaultSeedPrefix + strings.ToLower(strings.TrimSpace(module)) + "/" + strings.ToUpper(strings.TrimSpace(token))
	hash := ethcrypto.Keccak256([]byte(seed))
	var addr [20]byte
	copy(addr[:], hash[len(hash)-20:])
	return addr
}

func (l *Ledger) token(symbol string) (string, error) {
	if l == nil || l.store == nil {
		return "", errors.New("bank: ledger not initialised")
	}
	normalized, err := NormalizeToken(symbol)
	if err != nil {
		return "", err
	}
	if !l.store.TokenExists(normalized) {
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, normalized)
	}
	return normalized, nil
}

// Balance returns the account balance for token.
func (l *Ledger) Balance(addr [20]byte, token string) (*big.Int, error) {
	normalized, err := l.token(token)
	if err != nil {
		return nil, err
	}
	return l.store.Balance(addr[:], normalized)
}

// Transfer debits from and credits to by amount. A zero amount is a no-op.
func (l *Ledger) Transfer(from, to [20]byte, token string, amount *big.Int) error {
	normalized, err := l.token(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromBal, err := l.store.Balance(from[:], normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.store.Balance(to[:], normalized)
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(from[:], normalized, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.store.SetBalance(to[:], normalized, new(big.Int).Add(toBal, amount))
}

// Credit mints amount into addr. Only genesis seeding uses it.
func (l *Ledger) Credit(addr [20]byte, token string, amount *big.Int) error {
	normalized, err := l.token(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	current, err := l.store.Balance(addr[:], normalized)
	if err != nil {
		return err
	}
	return l.store.SetBalance(addr[:], normalized, new(big.Int).Add(current, amount))
}
