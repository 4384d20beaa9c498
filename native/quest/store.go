package quest

import (
	"fmt"
	"math/big"
)

// kvStore is the subset of the state manager used by the quest module.
type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

// storedQuest is the RLP form of Quest. RLP has no signed integers or
// interfaces so the condition is flattened into tagged fields.
type storedQuest struct {
	ID              uint64
	Admin           [20]byte
	RewardToken     string
	RewardPerWinner *big.Int
	MaxWinners      uint32
	Distribution    uint8
	ConditionKind   uint8
	ConditionAmount *big.Int
	ConditionTarget [20]byte
	ConditionToken  string
	ConditionHold   uint64
	CreatedAt       uint64
	EndTimestamp    uint64
	Active          bool
	TotalRewardPool *big.Int
	Title           string
	Description     string
	HasMetadata     bool
	Metadata        storedMetadata
	Cancelled       bool
	ResolvedAt      uint64
	CancelledAt     uint64
}

type storedMetadata struct {
	Category                string
	Difficulty              uint32
	EstimatedCompletionSecs uint64
	ExternalURL             string
	ImageURL                string
}

type storedRegistration struct {
	RegisteredAt uint64
}

type storedPayout struct {
	DistributedAt uint64
	Winners       uint32
	Amount        *big.Int
}

func newStoredQuest(q *Quest) (*storedQuest, error) {
	rec := &storedQuest{
		ID:              q.ID,
		Admin:           q.Admin,
		RewardToken:     q.RewardToken,
		RewardPerWinner: cloneBigInt(q.RewardPerWinner),
		MaxWinners:      q.MaxWinners,
		Distribution:    uint8(q.Distribution),
		CreatedAt:       q.CreatedAt,
		EndTimestamp:    q.EndTimestamp,
		Active:          q.Active,
		TotalRewardPool: cloneBigInt(q.TotalRewardPool),
		Title:           q.Title,
		Description:     q.Description,
		Cancelled:       q.Cancelled,
		ResolvedAt:      q.ResolvedAt,
		CancelledAt:     q.CancelledAt,
		ConditionAmount: big.NewInt(0),
	}
	switch c := q.Condition.(type) {
	case TradeVolume:
		rec.ConditionKind = uint8(ConditionTradeVolume)
		rec.ConditionAmount = cloneBigInt(c.TargetVolume)
		rec.ConditionTarget = c.Venue
	case PoolPosition:
		rec.ConditionKind = uint8(ConditionPoolPosition)
		rec.ConditionAmount = cloneBigInt(c.MinPosition)
		rec.ConditionTarget = c.Pool
	case TokenHold:
		rec.ConditionKind = uint8(ConditionTokenHold)
		rec.ConditionAmount = cloneBigInt(c.MinAmount)
		rec.ConditionToken = c.Token
		rec.ConditionHold = c.HoldDuration
	default:
		return nil, fmt.Errorf("%w: unsupported condition %T", ErrInvalidQuest, q.Condition)
	}
	if q.Metadata != nil {
		rec.HasMetadata = true
		rec.Metadata = storedMetadata(*q.Metadata)
	}
	return rec, nil
}

func (s *storedQuest) toQuest() (*Quest, error) {
	q := &Quest{
		ID:              s.ID,
		Admin:           s.Admin,
		RewardToken:     s.RewardToken,
		RewardPerWinner: cloneBigInt(s.RewardPerWinner),
		MaxWinners:      s.MaxWinners,
		Distribution:    Distribution(s.Distribution),
		CreatedAt:       s.CreatedAt,
		EndTimestamp:    s.EndTimestamp,
		Active:          s.Active,
		TotalRewardPool: cloneBigInt(s.TotalRewardPool),
		Title:           s.Title,
		Description:     s.Description,
		Cancelled:       s.Cancelled,
		ResolvedAt:      s.ResolvedAt,
		CancelledAt:     s.CancelledAt,
	}
	switch ConditionKind(s.ConditionKind) {
	case ConditionTradeVolume:
		q.Condition = TradeVolume{TargetVolume: cloneBigInt(s.ConditionAmount), Venue: s.ConditionTarget}
	case ConditionPoolPosition:
		q.Condition = PoolPosition{MinPosition: cloneBigInt(s.ConditionAmount), Pool: s.ConditionTarget}
	case ConditionTokenHold:
		q.Condition = TokenHold{Token: s.ConditionToken, MinAmount: cloneBigInt(s.ConditionAmount), HoldDuration: s.ConditionHold}
	default:
		return nil, fmt.Errorf("quest: corrupt condition kind %d for quest %d", s.ConditionKind, s.ID)
	}
	if s.HasMetadata {
		meta := Metadata(s.Metadata)
		q.Metadata = &meta
	}
	return q, nil
}

// ledger wraps the raw KV store with typed accessors for quest records and
// their membership sets. Lists keep insertion order; flag keys give O(1)
// membership checks.
type ledger struct {
	kv kvStore
}

func (l ledger) counter() (uint64, error) {
	var count uint64
	if _, err := l.kv.KVGet(questCounterKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (l ledger) setCounter(count uint64) error {
	return l.kv.KVPut(questCounterKey, count)
}

func (l ledger) quest(id uint64) (*Quest, error) {
	var rec storedQuest
	ok, err := l.kv.KVGet(questRecordKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuestNotFound
	}
	return rec.toQuest()
}

func (l ledger) putQuest(q *Quest) error {
	rec, err := newStoredQuest(q)
	if err != nil {
		return err
	}
	return l.kv.KVPut(questRecordKey(q.ID), rec)
}

func (l ledger) questIDs() ([]uint64, error) {
	var ids []uint64
	if err := l.kv.KVGetList(questIndexKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (l ledger) appendQuestID(id uint64) error {
	ids, err := l.questIDs()
	if err != nil {
		return err
	}
	return l.kv.KVPut(questIndexKey, append(ids, id))
}

func (l ledger) flag(key []byte) (bool, error) {
	var marker bool
	ok, err := l.kv.KVGet(key, &marker)
	if err != nil {
		return false, err
	}
	return ok && marker, nil
}

func (l ledger) addresses(key []byte) ([][20]byte, error) {
	var list [][20]byte
	if err := l.kv.KVGetList(key, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = [][20]byte{}
	}
	return list, nil
}

func (l ledger) isRegistered(id uint64, addr [20]byte) (bool, error) {
	var reg storedRegistration
	return l.kv.KVGet(registrationKey(id, addr), &reg)
}

func (l ledger) register(id uint64, addr [20]byte, at uint64) error {
	if err := l.kv.KVPut(registrationKey(id, addr), storedRegistration{RegisteredAt: at}); err != nil {
		return err
	}
	count, err := l.registrationCount(id)
	if err != nil {
		return err
	}
	if err := l.kv.KVPut(registrationCountKey(id), count+1); err != nil {
		return err
	}
	quests, err := l.userQuests(addr)
	if err != nil {
		return err
	}
	return l.kv.KVPut(userQuestsKey(addr), append(quests, id))
}

func (l ledger) registrationCount(id uint64) (uint32, error) {
	var count uint32
	if _, err := l.kv.KVGet(registrationCountKey(id), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (l ledger) userQuests(addr [20]byte) ([]uint64, error) {
	var ids []uint64
	if err := l.kv.KVGetList(userQuestsKey(addr), &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func (l ledger) participants(id uint64) ([][20]byte, error) {
	return l.addresses(participantListKey(id))
}

func (l ledger) isParticipant(id uint64, addr [20]byte) (bool, error) {
	return l.flag(participantFlagKey(id, addr))
}

func (l ledger) addParticipant(id uint64, addr [20]byte) error {
	list, err := l.participants(id)
	if err != nil {
		return err
	}
	if err := l.kv.KVPut(participantListKey(id), append(list, addr)); err != nil {
		return err
	}
	return l.kv.KVPut(participantFlagKey(id, addr), true)
}

func (l ledger) winners(id uint64) ([][20]byte, error) {
	return l.addresses(winnerListKey(id))
}

func (l ledger) isWinner(id uint64, addr [20]byte) (bool, error) {
	return l.flag(winnerFlagKey(id, addr))
}

func (l ledger) addWinner(id uint64, addr [20]byte) error {
	list, err := l.winners(id)
	if err != nil {
		return err
	}
	return l.setWinners(id, append(list, addr))
}

func (l ledger) setWinners(id uint64, winners [][20]byte) error {
	if err := l.kv.KVPut(winnerListKey(id), winners); err != nil {
		return err
	}
	for _, addr := range winners {
		if err := l.kv.KVPut(winnerFlagKey(id, addr), true); err != nil {
			return err
		}
	}
	return nil
}

func (l ledger) escrow(id uint64) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := l.kv.KVGet(escrowKey(id), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (l ledger) setEscrow(id uint64, amount *big.Int) error {
	return l.kv.KVPut(escrowKey(id), cloneBigInt(amount))
}

func (l ledger) payout(id uint64) (*Payout, bool, error) {
	var rec storedPayout
	ok, err := l.kv.KVGet(payoutKey(id), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Payout{QuestID: id, DistributedAt: rec.DistributedAt, Winners: rec.Winners, Amount: cloneBigInt(rec.Amount)}, true, nil
}

func (l ledger) putPayout(p *Payout) error {
	return l.kv.KVPut(payoutKey(p.QuestID), storedPayout{DistributedAt: p.DistributedAt, Winners: p.Winners, Amount: cloneBigInt(p.Amount)})
}

func (l ledger) withdrawn(id uint64) (bool, error) {
	return l.flag(withdrawalKey(id))
}

func (l ledger) markWithdrawn(id uint64) error {
	return l.kv.KVPut(withdrawalKey(id), true)
}
