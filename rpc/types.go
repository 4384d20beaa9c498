package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"questchain/crypto"
	"questchain/native/quest"
)

// QuestCreatePayload is the signed body of quest_create. The signer becomes
// the quest admin.
type QuestCreatePayload struct {
	RewardToken     string        `json:"rewardToken" yaml:"rewardToken"`
	RewardPerWinner string        `json:"rewardPerWinner" yaml:"rewardPerWinner"`
	MaxWinners      uint32        `json:"maxWinners" yaml:"maxWinners"`
	Distribution    string        `json:"distribution" yaml:"distribution"`
	Condition       ConditionJSON `json:"condition" yaml:"condition"`
	DurationSeconds uint64        `json:"durationSeconds" yaml:"durationSeconds"`
	RewardPool      string        `json:"rewardPool" yaml:"rewardPool"`
	Title           string        `json:"title" yaml:"title"`
	Description     string        `json:"description" yaml:"description"`
	Metadata        *MetadataJSON `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ConditionJSON is the tagged wire form of a quest condition. Amount carries
// the target volume, minimum position or minimum holding depending on Kind.
type ConditionJSON struct {
	Kind         string `json:"kind" yaml:"kind"`
	Amount       string `json:"amount" yaml:"amount"`
	Target       string `json:"target,omitempty" yaml:"target,omitempty"`
	Token        string `json:"token,omitempty" yaml:"token,omitempty"`
	HoldDuration uint64 `json:"holdDuration,omitempty" yaml:"holdDuration,omitempty"`
}

type MetadataJSON struct {
	Category                string `json:"category,omitempty" yaml:"category,omitempty"`
	Difficulty              uint32 `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	EstimatedCompletionSecs uint64 `json:"estimatedCompletionSecs,omitempty" yaml:"estimatedCompletionSecs,omitempty"`
	ExternalURL             string `json:"externalUrl,omitempty" yaml:"externalUrl,omitempty"`
	ImageURL                string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
}

type QuestIDPayload struct {
	ID uint64 `json:"id"`
}

type QuestUserPayload struct {
	ID   uint64 `json:"id"`
	User string `json:"user"`
}

type UserPayload struct {
	User string `json:"user"`
}

type ListPayload struct {
	Status string `json:"status,omitempty"`
}

type BalancePayload struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type EventsPayload struct {
	QuestID       *uint64 `json:"questId,omitempty"`
	Type          string  `json:"type,omitempty"`
	AfterSequence uint64  `json:"afterSequence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
}

type QuestJSON struct {
	ID              uint64        `json:"id"`
	Admin           string        `json:"admin"`
	RewardToken     string        `json:"rewardToken"`
	RewardPerWinner string        `json:"rewardPerWinner"`
	MaxWinners      uint32        `json:"maxWinners"`
	Distribution    string        `json:"distribution"`
	Condition       ConditionJSON `json:"condition"`
	CreatedAt       uint64        `json:"createdAt"`
	EndTimestamp    uint64        `json:"endTimestamp"`
	Active          bool          `json:"active"`
	Status          string        `json:"status"`
	TotalRewardPool string        `json:"totalRewardPool"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Metadata        *MetadataJSON `json:"metadata,omitempty"`
	ResolvedAt      uint64        `json:"resolvedAt,omitempty"`
	CancelledAt     uint64        `json:"cancelledAt,omitempty"`
}

type PayoutJSON struct {
	QuestID       uint64 `json:"questId"`
	DistributedAt uint64 `json:"distributedAt"`
	Winners       uint32 `json:"winners"`
	Amount        string `json:"amount"`
}

type QuestStatsJSON struct {
	QuestID            uint64 `json:"questId"`
	TotalRegistered    uint32 `json:"totalRegistered"`
	TotalEligible      uint32 `json:"totalEligible"`
	TotalWinners       uint32 `json:"totalWinners"`
	IsResolved         bool   `json:"isResolved"`
	TimeRemaining      uint64 `json:"timeRemaining"`
	RewardsDistributed bool   `json:"rewardsDistributed"`
	EscrowBalance      string `json:"escrowBalance"`
}

type UserStatsJSON struct {
	TotalParticipated uint32 `json:"totalParticipated"`
	TotalWon          uint32 `json:"totalWon"`
	TotalRewards      string `json:"totalRewards"`
	WinRateBps        uint64 `json:"winRateBps"`
}

type EventJSON struct {
	Sequence   uint64            `json:"sequence"`
	QuestID    uint64            `json:"questId"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

// Params converts the wire payload into engine parameters for admin.
func (p QuestCreatePayload) Params(admin [20]byte) (quest.CreateParams, error) {
	reward, err := parseAmount("rewardPerWinner", p.RewardPerWinner)
	if err != nil {
		return quest.CreateParams{}, err
	}
	pool, err := parseAmount("rewardPool", p.RewardPool)
	if err != nil {
		return quest.CreateParams{}, err
	}
	distribution, err := quest.ParseDistribution(p.Distribution)
	if err != nil {
		return quest.CreateParams{}, err
	}
	condition, err := p.Condition.Condition()
	if err != nil {
		return quest.CreateParams{}, err
	}
	params := quest.CreateParams{
		Admin:           admin,
		RewardToken:     p.RewardToken,
		RewardPerWinner: reward,
		MaxWinners:      p.MaxWinners,
		Distribution:    distribution,
		Condition:       condition,
		DurationSeconds: p.DurationSeconds,
		RewardPool:      pool,
		Title:           p.Title,
		Description:     p.Description,
	}
	if p.Metadata != nil {
		params.Metadata = &quest.Metadata{
			Category:                p.Metadata.Category,
			Difficulty:              p.Metadata.Difficulty,
			EstimatedCompletionSecs: p.Metadata.EstimatedCompletionSecs,
			ExternalURL:             p.Metadata.ExternalURL,
			ImageURL:                p.Metadata.ImageURL,
		}
	}
	return params, nil
}

// Condition decodes the tagged condition.
func (c ConditionJSON) Condition() (quest.Condition, error) {
	amount, err := parseAmount("condition.amount", c.Amount)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case quest.ConditionTradeVolume.String():
		venue, err := parseOptionalTarget(c.Target)
		if err != nil {
			return nil, err
		}
		return quest.TradeVolume{TargetVolume: amount, Venue: venue}, nil
	case quest.ConditionPoolPosition.String():
		pool, err := parseOptionalTarget(c.Target)
		if err != nil {
			return nil, err
		}
		return quest.PoolPosition{MinPosition: amount, Pool: pool}, nil
	case quest.ConditionTokenHold.String():
		return quest.TokenHold{Token: c.Token, MinAmount: amount, HoldDuration: c.HoldDuration}, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition kind %q", quest.ErrInvalidQuest, c.Kind)
	}
}

func conditionJSON(c quest.Condition) ConditionJSON {
	switch cond := c.(type) {
	case quest.TradeVolume:
		return ConditionJSON{Kind: cond.Kind().String(), Amount: amountString(cond.TargetVolume), Target: targetString(cond.Venue)}
	case quest.PoolPosition:
		return ConditionJSON{Kind: cond.Kind().String(), Amount: amountString(cond.MinPosition), Target: targetString(cond.Pool)}
	case quest.TokenHold:
		return ConditionJSON{Kind: cond.Kind().String(), Amount: amountString(cond.MinAmount), Token: cond.Token, HoldDuration: cond.HoldDuration}
	default:
		return ConditionJSON{}
	}
}

func questJSON(q *quest.Quest) QuestJSON {
	out := QuestJSON{
		ID:              q.ID,
		Admin:           crypto.AddressFromRaw(q.Admin).String(),
		RewardToken:     q.RewardToken,
		RewardPerWinner: amountString(q.RewardPerWinner),
		MaxWinners:      q.MaxWinners,
		Distribution:    q.Distribution.String(),
		Condition:       conditionJSON(q.Condition),
		CreatedAt:       q.CreatedAt,
		EndTimestamp:    q.EndTimestamp,
		Active:          q.Active,
		Status:          q.Status().String(),
		TotalRewardPool: amountString(q.TotalRewardPool),
		Title:           q.Title,
		Description:     q.Description,
		ResolvedAt:      q.ResolvedAt,
		CancelledAt:     q.CancelledAt,
	}
	if m := q.Metadata; m != nil {
		out.Metadata = &MetadataJSON{
			Category:                m.Category,
			Difficulty:              m.Difficulty,
			EstimatedCompletionSecs: m.EstimatedCompletionSecs,
			ExternalURL:             m.ExternalURL,
			ImageURL:                m.ImageURL,
		}
	}
	return out
}

func addressList(addrs [][20]byte) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, crypto.AddressFromRaw(addr).String())
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func targetString(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer", field)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return v, nil
}

func parseOptionalTarget(raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	return crypto.ParseAddress(raw)
}
