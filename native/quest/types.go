package quest

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

// ModuleName identifies the quest module for pause guards, vaults and metrics.
const ModuleName = "quest"

// Distribution selects how winners are chosen.
type Distribution uint8

const (
	// DistributionRaffle draws winners from the eligible pool at resolution.
	DistributionRaffle Distribution = iota
	// DistributionFCFS admits the first MaxWinners eligible users as winners.
	DistributionFCFS
)

// Valid reports whether the distribution value is supported.
func (d Distribution) Valid() bool {
	return d == DistributionRaffle || d == DistributionFCFS
}

func (d Distribution) String() string {
	switch d {
	case DistributionRaffle:
		return "raffle"
	case DistributionFCFS:
		return "fcfs"
	default:
		return fmt.Sprintf("distribution(%d)", uint8(d))
	}
}

// ParseDistribution accepts "raffle" or "fcfs" in any case.
func ParseDistribution(raw string) (Distribution, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "raffle":
		return DistributionRaffle, nil
	case "fcfs":
		return DistributionFCFS, nil
	default:
		return 0, fmt.Errorf("%w: unknown distribution %q", ErrInvalidQuest, raw)
	}
}

// ConditionKind tags the task a participant must complete off-chain.
type ConditionKind uint8

const (
	ConditionTradeVolume ConditionKind = iota + 1
	ConditionPoolPosition
	ConditionTokenHold
)

func (k ConditionKind) String() string {
	switch k {
	case ConditionTradeVolume:
		return "trade_volume"
	case ConditionPoolPosition:
		return "pool_position"
	case ConditionTokenHold:
		return "token_hold"
	default:
		return fmt.Sprintf("condition(%d)", uint8(k))
	}
}

// Condition describes the quest task. The engine stores and returns it
// verbatim; verification happens in the trusted off-chain process that calls
// MarkEligible.
type Condition interface {
	Kind() ConditionKind
	validate() error
}

// TradeVolume requires the user to trade at least TargetVolume, optionally on
// a specific venue.
type TradeVolume struct {
	TargetVolume *big.Int
	Venue        [20]byte
}

// PoolPosition requires a liquidity position of at least MinPosition.
type PoolPosition struct {
	MinPosition *big.Int
	Pool        [20]byte
}

// TokenHold requires holding MinAmount of Token for HoldDuration seconds.
type TokenHold struct {
	Token        string
	MinAmount    *big.Int
	HoldDuration uint64
}

func (TradeVolume) Kind() ConditionKind  { return ConditionTradeVolume }
func (PoolPosition) Kind() ConditionKind { return ConditionPoolPosition }
func (TokenHold) Kind() ConditionKind    { return ConditionTokenHold }

func (c TradeVolume) validate() error {
	if c.TargetVolume == nil || c.TargetVolume.Sign() <= 0 {
		return fmt.Errorf("%w: trade volume target must be positive", ErrInvalidQuest)
	}
	return nil
}

func (c PoolPosition) validate() error {
	if c.MinPosition == nil || c.MinPosition.Sign() <= 0 {
		return fmt.Errorf("%w: pool position minimum must be positive", ErrInvalidQuest)
	}
	return nil
}

func (c TokenHold) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("%w: token hold requires a token", ErrInvalidQuest)
	}
	if c.MinAmount == nil || c.MinAmount.Sign() <= 0 {
		return fmt.Errorf("%w: token hold amount must be positive", ErrInvalidQuest)
	}
	return nil
}

// Metadata carries optional presentation details shown by frontends.
type Metadata struct {
	Category                string
	Difficulty              uint32 // 1-5, 0 when unset
	EstimatedCompletionSecs uint64
	ExternalURL             string
	ImageURL                string
}

func (m *Metadata) validate() error {
	if m == nil {
		return nil
	}
	if m.Difficulty > 5 {
		return fmt.Errorf("%w: difficulty must be between 1 and 5", ErrInvalidQuest)
	}
	for _, raw := range []string{m.ExternalURL, m.ImageURL} {
		if raw == "" {
			continue
		}
		parsed, err := url.ParseRequestURI(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("%w: invalid url %q", ErrInvalidQuest, raw)
		}
	}
	return nil
}

// Quest is the campaign record.
type Quest struct {
	ID              uint64
	Admin           [20]byte
	RewardToken     string
	RewardPerWinner *big.Int
	MaxWinners      uint32
	Distribution    Distribution
	Condition       Condition
	CreatedAt       uint64
	EndTimestamp    uint64
	Active          bool
	TotalRewardPool *big.Int
	Title           string
	Description     string
	Metadata        *Metadata
	Cancelled       bool
	ResolvedAt      uint64
	CancelledAt     uint64
}

// Status is the lifecycle state derived from the record.
type Status uint8

const (
	StatusActive Status = iota
	StatusResolved
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Status reports the lifecycle state. Resolved and cancelled are terminal.
func (q *Quest) Status() Status {
	switch {
	case q.Active:
		return StatusActive
	case q.Cancelled:
		return StatusCancelled
	default:
		return StatusResolved
	}
}

// Clone returns a deep copy of the quest so callers can safely mutate it.
func (q *Quest) Clone() *Quest {
	if q == nil {
		return nil
	}
	clone := *q
	clone.RewardPerWinner = cloneBigInt(q.RewardPerWinner)
	clone.TotalRewardPool = cloneBigInt(q.TotalRewardPool)
	if q.Metadata != nil {
		meta := *q.Metadata
		clone.Metadata = &meta
	}
	switch c := q.Condition.(type) {
	case TradeVolume:
		c.TargetVolume = cloneBigInt(c.TargetVolume)
		clone.Condition = c
	case PoolPosition:
		c.MinPosition = cloneBigInt(c.MinPosition)
		clone.Condition = c
	case TokenHold:
		c.MinAmount = cloneBigInt(c.MinAmount)
		clone.Condition = c
	}
	return &clone
}

// CreateParams are the terms supplied when opening a quest.
type CreateParams struct {
	Admin           [20]byte
	RewardToken     string
	RewardPerWinner *big.Int
	MaxWinners      uint32
	Distribution    Distribution
	Condition       Condition
	DurationSeconds uint64
	RewardPool      *big.Int
	Title           string
	Description     string
	Metadata        *Metadata
}

// Admission describes what MarkEligible did with a user.
type Admission uint8

const (
	// AdmissionWinner means the user was appended to the FCFS winner set.
	AdmissionWinner Admission = iota + 1
	// AdmissionAlreadyWinner means the user already held an FCFS slot.
	AdmissionAlreadyWinner
	// AdmissionCapacityReached means every FCFS slot was taken; the mark was dropped.
	AdmissionCapacityReached
	// AdmissionEntered means the user joined the raffle pool.
	AdmissionEntered
	// AdmissionAlreadyEntered means the user was already in the raffle pool.
	AdmissionAlreadyEntered
)

func (a Admission) String() string {
	switch a {
	case AdmissionWinner:
		return "winner"
	case AdmissionAlreadyWinner:
		return "already_winner"
	case AdmissionCapacityReached:
		return "capacity_reached"
	case AdmissionEntered:
		return "entered"
	case AdmissionAlreadyEntered:
		return "already_entered"
	default:
		return "unknown"
	}
}

// Payout records a completed reward distribution.
type Payout struct {
	QuestID       uint64
	DistributedAt uint64
	Winners       uint32
	Amount        *big.Int
}

// QuestStats is the per-quest reporting view.
type QuestStats struct {
	QuestID            uint64
	TotalRegistered    uint32
	TotalEligible      uint32
	TotalWinners       uint32
	IsResolved         bool
	TimeRemaining      uint64
	RewardsDistributed bool
	EscrowBalance      *big.Int
}

// UserStats is the per-user reporting view.
type UserStats struct {
	TotalParticipated uint32
	TotalWon          uint32
	TotalRewards      *big.Int
	// WinRateBps is won*10000/participated.
	WinRateBps uint64
}

// StatusFilter selects quests in List.
type StatusFilter uint8

const (
	FilterAll StatusFilter = iota
	FilterActive
	FilterInactive
)

// ParseStatusFilter accepts "", "all", "active" or "inactive".
func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return FilterAll, nil
	case "active":
		return FilterActive, nil
	case "inactive":
		return FilterInactive, nil
	default:
		return 0, fmt.Errorf("unknown status filter %q", raw)
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
