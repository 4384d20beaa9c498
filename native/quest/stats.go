package quest

import "math/big"

// Quest returns the quest record.
func (e *Engine) Quest(id uint64) (*Quest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.quest(id)
}

// Counter returns how many quests have been created.
func (e *Engine) Counter() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.state.counter()
}

// List returns quests in creation order matching filter. A quest is active
// while it is unresolved and now has not passed its end timestamp.
func (e *Engine) List(filter StatusFilter) ([]*Quest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ids, err := e.state.questIDs()
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]*Quest, 0, len(ids))
	for _, id := range ids {
		q, err := e.state.quest(id)
		if err != nil {
			return nil, err
		}
		switch filter {
		case FilterActive:
			if !q.live(now) {
				continue
			}
		case FilterInactive:
			if q.live(now) {
				continue
			}
		}
		out = append(out, q)
	}
	return out, nil
}

// ActiveQuests returns the ids of quests that are active and not past their
// end timestamp, in creation order.
func (e *Engine) ActiveQuests() ([]uint64, error) {
	quests, err := e.List(FilterActive)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(quests))
	for _, q := range quests {
		ids = append(ids, q.ID)
	}
	return ids, nil
}

// Participants returns the raffle pool in entry order. Unknown quests yield an
// empty list.
func (e *Engine) Participants(id uint64) ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.participants(id)
}

// Winners returns the winner set in admission or draw order.
func (e *Engine) Winners(id uint64) ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.winners(id)
}

// IsRegistered reports whether user registered for quest id.
func (e *Engine) IsRegistered(id uint64, user [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.isRegistered(id, user)
}

// UserQuests returns the quests user registered for, in registration order.
func (e *Engine) UserQuests(user [20]byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.userQuests(user)
}

// Payout returns the distribution record if rewards were paid.
func (e *Engine) Payout(id uint64) (*Payout, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.state.payout(id)
}

// QuestStats summarises a quest. TotalEligible is the size of the raffle
// pool, so it stays zero for FCFS quests whose admissions land in the winner
// set directly.
func (e *Engine) QuestStats(id uint64) (*QuestStats, error) {
	q, err := e.Quest(id)
	if err != nil {
		return nil, err
	}
	registered, err := e.state.registrationCount(id)
	if err != nil {
		return nil, err
	}
	winners, err := e.state.winners(id)
	if err != nil {
		return nil, err
	}
	participants, err := e.state.participants(id)
	if err != nil {
		return nil, err
	}
	_, paid, err := e.state.payout(id)
	if err != nil {
		return nil, err
	}
	escrowed, err := e.state.escrow(id)
	if err != nil {
		return nil, err
	}
	stats := &QuestStats{
		QuestID:            id,
		TotalRegistered:    registered,
		TotalEligible:      uint32(len(participants)),
		TotalWinners:       uint32(len(winners)),
		IsResolved:         !q.Active,
		RewardsDistributed: paid,
		EscrowBalance:      escrowed,
	}
	if now := e.now(); now < q.EndTimestamp {
		stats.TimeRemaining = q.EndTimestamp - now
	}
	return stats, nil
}

// UserStats summarises a user's participation. TotalRewards sums
// RewardPerWinner over every quest the user won, paid out or not.
func (e *Engine) UserStats(user [20]byte) (*UserStats, error) {
	ids, err := e.UserQuests(user)
	if err != nil {
		return nil, err
	}
	stats := &UserStats{
		TotalParticipated: uint32(len(ids)),
		TotalRewards:      big.NewInt(0),
	}
	for _, id := range ids {
		won, err := e.state.isWinner(id, user)
		if err != nil {
			return nil, err
		}
		if !won {
			continue
		}
		stats.TotalWon++
		q, err := e.state.quest(id)
		if err != nil {
			return nil, err
		}
		stats.TotalRewards.Add(stats.TotalRewards, q.RewardPerWinner)
	}
	if stats.TotalParticipated > 0 {
		stats.WinRateBps = uint64(stats.TotalWon) * 10000 / uint64(stats.TotalParticipated)
	}
	return stats, nil
}

func (q *Quest) live(now uint64) bool {
	return q.Active && now <= q.EndTimestamp
}
