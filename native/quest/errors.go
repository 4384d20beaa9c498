package quest

import "errors"

var (
	ErrQuestNotFound          = errors.New("quest: not found")
	ErrQuestNotActive         = errors.New("quest: not active")
	ErrQuestExpired           = errors.New("quest: expired")
	ErrQuestNotFinished       = errors.New("quest: not finished")
	ErrQuestAlreadyResolved   = errors.New("quest: already resolved")
	ErrQuestNotResolved       = errors.New("quest: not resolved")
	ErrAlreadyRegistered      = errors.New("quest: already registered")
	ErrUserNotRegistered      = errors.New("quest: user not registered")
	ErrInvalidMaxWinners      = errors.New("quest: invalid max winners")
	ErrInvalidRewardAmount    = errors.New("quest: invalid reward amount")
	ErrInsufficientRewardPool = errors.New("quest: insufficient reward pool")
	ErrInvalidDuration        = errors.New("quest: invalid duration")
	ErrNoWinners              = errors.New("quest: no winners")
	ErrUnauthorized           = errors.New("quest: unauthorized")
	ErrInsufficientBalance    = errors.New("quest: insufficient balance")
	ErrRewardsDistributed     = errors.New("quest: rewards already distributed")
	ErrNothingToWithdraw      = errors.New("quest: nothing to withdraw")
	ErrInvalidQuest           = errors.New("quest: invalid quest definition")
	ErrRewardsPending         = errors.New("quest: rewards not yet distributed")
)

var errorCodes = []struct {
	err  error
	code uint32
}{
	{ErrQuestNotFound, 1},
	{ErrQuestNotActive, 2},
	{ErrQuestExpired, 3},
	{ErrQuestNotFinished, 4},
	{ErrQuestAlreadyResolved, 5},
	{ErrQuestNotResolved, 6},
	{ErrAlreadyRegistered, 7},
	{ErrUserNotRegistered, 8},
	{ErrInvalidMaxWinners, 9},
	{ErrInvalidRewardAmount, 10},
	{ErrInsufficientRewardPool, 11},
	{ErrInvalidDuration, 12},
	{ErrNoWinners, 13},
	{ErrUnauthorized, 14},
	{ErrInsufficientBalance, 15},
	{ErrRewardsDistributed, 16},
	{ErrNothingToWithdraw, 17},
	{ErrInvalidQuest, 18},
	{ErrRewardsPending, 19},
}

// Code returns the stable numeric code for a quest error kind, or 0 when err
// is not one of the module's errors.
func Code(err error) uint32 {
	if err == nil {
		return 0
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return 0
}
