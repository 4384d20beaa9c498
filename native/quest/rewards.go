package quest

import (
	"fmt"
	"math/big"
)

// DistributeRewards pays RewardPerWinner from the quest vault to every winner
// of a resolved quest. A quest pays out at most once.
func (e *Engine) DistributeRewards(auth Authorizer, id uint64) (*Payout, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	q, err := e.state.quest(id)
	if err != nil {
		return nil, err
	}
	if err := requireSigned(auth, q.Admin); err != nil {
		return nil, err
	}
	if q.Status() != StatusResolved {
		return nil, ErrQuestNotResolved
	}
	if _, paid, err := e.state.payout(id); err != nil {
		return nil, err
	} else if paid {
		return nil, ErrRewardsDistributed
	}
	winners, err := e.state.winners(id)
	if err != nil {
		return nil, err
	}
	if len(winners) == 0 {
		return nil, ErrNoWinners
	}

	total := new(big.Int).Mul(q.RewardPerWinner, big.NewInt(int64(len(winners))))
	escrowed, err := e.state.escrow(id)
	if err != nil {
		return nil, err
	}
	if escrowed.Cmp(total) < 0 {
		return nil, fmt.Errorf("quest: escrow %s below payout %s", escrowed, total)
	}
	vault := VaultAddress(q.RewardToken)
	for _, winner := range winners {
		if err := e.tokens.Transfer(vault, winner, q.RewardToken, q.RewardPerWinner); err != nil {
			return nil, fmt.Errorf("quest: pay winner %x: %w", winner, err)
		}
	}
	if err := e.state.setEscrow(id, new(big.Int).Sub(escrowed, total)); err != nil {
		return nil, err
	}
	payout := &Payout{
		QuestID:       id,
		DistributedAt: e.now(),
		Winners:       uint32(len(winners)),
		Amount:        total,
	}
	if err := e.state.putPayout(payout); err != nil {
		return nil, err
	}
	e.emit(questEvent{evt: rewardsDistributedEvent(id, len(winners), total)})
	return payout, nil
}

// WithdrawRemainder returns the unused part of the pool to the admin after a
// quest is resolved. Quests with winners must be paid out first.
func (e *Engine) WithdrawRemainder(auth Authorizer, id uint64) (*big.Int, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	q, err := e.state.quest(id)
	if err != nil {
		return nil, err
	}
	if err := requireSigned(auth, q.Admin); err != nil {
		return nil, err
	}
	if q.Status() != StatusResolved {
		return nil, ErrQuestNotResolved
	}
	withdrawn, err := e.state.withdrawn(id)
	if err != nil {
		return nil, err
	}
	if withdrawn {
		return nil, ErrNothingToWithdraw
	}
	winners, err := e.state.winners(id)
	if err != nil {
		return nil, err
	}
	if len(winners) > 0 {
		if _, paid, err := e.state.payout(id); err != nil {
			return nil, err
		} else if !paid {
			return nil, ErrRewardsPending
		}
	}
	amount, err := e.releaseEscrow(q)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.state.markWithdrawn(id); err != nil {
		return nil, err
	}
	e.emit(questEvent{evt: poolRefundedEvent(id, q.Admin, q.RewardToken, amount, "remainder")})
	return amount, nil
}
