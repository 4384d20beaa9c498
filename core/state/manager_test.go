package state

import (
	"errors"
	"math/big"
	"testing"

	"questchain/storage"
)

type storedPair struct {
	Name  string
	Count uint64
}

func TestKVRoundTripAndCommit(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("pair/1"), &storedPair{Name: "alpha", Count: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var staged storedPair
	ok, err := mgr.KVGet([]byte("pair/1"), &staged)
	if err != nil || !ok {
		t.Fatalf("expected staged value visible to the same manager: ok=%v err=%v", ok, err)
	}

	other := NewManager(db)
	if ok, _ := other.KVHas([]byte("pair/1")); ok {
		t.Fatalf("uncommitted write leaked to another manager")
	}

	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.Dirty() != 0 {
		t.Fatalf("expected journal to be empty after commit")
	}

	var loaded storedPair
	ok, err = other.KVGet([]byte("pair/1"), &loaded)
	if err != nil || !ok {
		t.Fatalf("expected committed value: ok=%v err=%v", ok, err)
	}
	if loaded.Name != "alpha" || loaded.Count != 3 {
		t.Fatalf("unexpected value: %+v", loaded)
	}
}

func TestDiscardDropsStagedWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("counter"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Discard()

	if ok, _ := mgr.KVHas([]byte("counter")); ok {
		t.Fatalf("discarded value still visible")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if ok, _ := NewManager(db).KVHas([]byte("counter")); ok {
		t.Fatalf("discarded value reached storage")
	}
}

func TestKVDeleteAndEmptyList(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("ids"), []uint64{1, 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mgr.KVDelete([]byte("ids")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var ids []uint64
	if err := mgr.KVGetList([]byte("ids"), &ids); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", ids)
	}
	if _, err := mgr.KVGet(nil, nil); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestBalancesRequireRegisteredToken(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := []byte{0x01, 0x02}

	if err := mgr.SetBalance(addr, "QST", big.NewInt(10)); err == nil {
		t.Fatalf("expected unregistered token to be rejected")
	}
	if err := mgr.RegisterToken("qst", "Quest Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := mgr.RegisterToken("QST", "Quest Token", 18); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if !mgr.TokenExists(" qst ") {
		t.Fatalf("expected token to exist")
	}
	if err := mgr.SetBalance(addr, "qst", big.NewInt(10)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.SetBalance(addr, "QST", big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
	bal, err := mgr.Balance(addr, "QST")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected balance %s", bal)
	}
	list, err := mgr.TokenList()
	if err != nil || len(list) != 1 || list[0] != "QST" {
		t.Fatalf("unexpected token list %v (err=%v)", list, err)
	}
}

func TestTokenErrorsAreTyped(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.SetBalance([]byte{0x01}, "gem", big.NewInt(1)); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("expected ErrTokenUnknown, got %v", err)
	}
	if err := mgr.RegisterToken("GEM", "Gem", 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.RegisterToken("gem", "Gem", 0); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	if err := mgr.SetBalance([]byte{0x01}, "GEM", big.NewInt(-5)); !errors.Is(err, ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}
	bal, err := mgr.Balance([]byte{0x02}, "GEM")
	if err != nil || bal.Sign() != 0 {
		t.Fatalf("expected zero balance for untouched account, got %v (err=%v)", bal, err)
	}
	if meta, err := mgr.Token("missing"); err != nil || meta != nil {
		t.Fatalf("expected nil metadata for unknown token, got %+v (err=%v)", meta, err)
	}
}
