package quest

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"questchain/core/types"
)

const (
	EventTypeQuestCreated            = "quest.created"
	EventTypeQuestRegistered         = "quest.registered"
	EventTypeQuestEligible           = "quest.eligible"
	EventTypeQuestResolved           = "quest.resolved"
	EventTypeQuestCancelled          = "quest.cancelled"
	EventTypeQuestRewardsDistributed = "quest.rewards_distributed"
	EventTypeQuestPoolRefunded       = "quest.pool_refunded"
)

type questEvent struct {
	evt *types.Event
}

func (e questEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e questEvent) Event() *types.Event { return e.evt }

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatAddr(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func createdEvent(q *Quest) *types.Event {
	return &types.Event{
		Type: EventTypeQuestCreated,
		Attributes: map[string]string{
			"questId":         formatID(q.ID),
			"admin":           formatAddr(q.Admin),
			"token":           q.RewardToken,
			"rewardPerWinner": formatAmount(q.RewardPerWinner),
			"maxWinners":      strconv.FormatUint(uint64(q.MaxWinners), 10),
			"distribution":    q.Distribution.String(),
			"condition":       q.Condition.Kind().String(),
			"pool":            formatAmount(q.TotalRewardPool),
			"endTimestamp":    strconv.FormatUint(q.EndTimestamp, 10),
		},
	}
}

func registeredEvent(id uint64, user [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeQuestRegistered,
		Attributes: map[string]string{
			"questId": formatID(id),
			"user":    formatAddr(user),
		},
	}
}

func eligibleEvent(id uint64, user [20]byte, outcome Admission) *types.Event {
	return &types.Event{
		Type: EventTypeQuestEligible,
		Attributes: map[string]string{
			"questId": formatID(id),
			"user":    formatAddr(user),
			"outcome": outcome.String(),
		},
	}
}

func resolvedEvent(id uint64, winners int, source string, seed uint64) *types.Event {
	attrs := map[string]string{
		"questId":      formatID(id),
		"winnersCount": strconv.Itoa(winners),
	}
	if source != "" {
		attrs["randomness"] = source
		attrs["seed"] = strconv.FormatUint(seed, 10)
	}
	return &types.Event{Type: EventTypeQuestResolved, Attributes: attrs}
}

func cancelledEvent(id uint64) *types.Event {
	return &types.Event{
		Type:       EventTypeQuestCancelled,
		Attributes: map[string]string{"questId": formatID(id)},
	}
}

func rewardsDistributedEvent(id uint64, winners int, total *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeQuestRewardsDistributed,
		Attributes: map[string]string{
			"questId": formatID(id),
			"winners": strconv.Itoa(winners),
			"amount":  formatAmount(total),
		},
	}
}

func poolRefundedEvent(id uint64, to [20]byte, token string, amount *big.Int, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeQuestPoolRefunded,
		Attributes: map[string]string{
			"questId": formatID(id),
			"to":      formatAddr(to),
			"token":   token,
			"amount":  formatAmount(amount),
			"reason":  reason,
		},
	}
}
