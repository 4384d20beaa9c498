package core

import (
	"fmt"
	"math/big"

	"questchain/core/state"
	"questchain/native/bank"
)

var genesisMarkerKey = []byte("genesis/applied")

type GenesisToken struct {
	Symbol   string
	Name     string
	Decimals uint8
}

type GenesisBalance struct {
	Address [20]byte
	Token   string
	Amount  *big.Int
}

// Genesis seeds tokens and balances into an empty database.
type Genesis struct {
	Tokens   []GenesisToken
	Balances []GenesisBalance
}

// ApplyGenesis writes g once. It reports false without touching state when the
// database was already initialised.
func (n *Node) ApplyGenesis(g Genesis) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	applied, err := manager.KVHas(genesisMarkerKey)
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}
	for _, tok := range g.Tokens {
		if err := manager.RegisterToken(tok.Symbol, tok.Name, tok.Decimals); err != nil {
			manager.Discard()
			return false, fmt.Errorf("genesis: %w", err)
		}
	}
	ledger := bank.NewLedger(manager)
	for _, bal := range g.Balances {
		if err := ledger.Credit(bal.Address, bal.Token, bal.Amount); err != nil {
			manager.Discard()
			return false, fmt.Errorf("genesis: credit %x: %w", bal.Address, err)
		}
	}
	if err := manager.KVPut(genesisMarkerKey, true); err != nil {
		manager.Discard()
		return false, err
	}
	if err := manager.Commit(); err != nil {
		return false, err
	}
	n.logger.Info("genesis applied", "tokens", len(g.Tokens), "balances", len(g.Balances))
	return true, nil
}
