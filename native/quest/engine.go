package quest

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/holiman/uint256"

	"questchain/core/events"
	"questchain/native/bank"
	"questchain/native/common"
)

var errNilState = errors.New("quest engine: state not configured")

// tokenLedger moves reward tokens between accounts and the quest vault.
type tokenLedger interface {
	Balance(addr [20]byte, token string) (*big.Int, error)
	Transfer(from, to [20]byte, token string, amount *big.Int) error
}

// EligibilityPolicy lets operators gate registration, for example on KYC or
// account age. Returning an error rejects the registration.
type EligibilityPolicy interface {
	CanRegister(q *Quest, user [20]byte) error
}

// Limits bounds free text supplied at creation. Zero disables a limit.
type Limits struct {
	MaxTitleLength       int
	MaxDescriptionLength int
}

// Engine implements the quest lifecycle: creation with escrowed rewards,
// registration, eligibility marking, resolution and payout.
//
// The engine is not safe for concurrent use. Callers serialise operations and
// commit or discard the underlying state as one unit per call.
type Engine struct {
	state      ledger
	tokens     tokenLedger
	emitter    events.Emitter
	randomness Randomness
	policy     EligibilityPolicy
	pauses     common.PauseView
	limits     Limits
	nowFn      func() int64
}

// NewEngine creates an engine with timestamp randomness and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		randomness: TimestampRandomness{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the KV backend.
func (e *Engine) SetState(state kvStore) {
	if state == nil {
		e.state = ledger{}
		return
	}
	e.state = ledger{kv: state}
}

// SetLedger configures the token ledger used for escrow and payouts.
func (e *Engine) SetLedger(l tokenLedger) { e.tokens = l }

// SetEmitter configures the event emitter. Nil restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRandomness overrides the raffle seed source.
func (e *Engine) SetRandomness(r Randomness) {
	if r == nil {
		e.randomness = TimestampRandomness{}
		return
	}
	e.randomness = r
}

// SetEligibilityPolicy installs a registration policy. Nil allows everyone.
func (e *Engine) SetEligibilityPolicy(p EligibilityPolicy) { e.policy = p }

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetLimits configures free text bounds.
func (e *Engine) SetLimits(l Limits) { e.limits = l }

// SetNowFunc overrides the clock. Used by tests for deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt questEvent) {
	if e.emitter == nil || evt.evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state.kv == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errors.New("quest engine: token ledger not configured")
	}
	return nil
}

func (e *Engine) mutable() error {
	if err := e.ready(); err != nil {
		return err
	}
	return common.Guard(e.pauses, ModuleName)
}

// VaultAddress returns the account holding escrowed rewards for token.
func VaultAddress(token string) [20]byte {
	return bank.ModuleVault(ModuleName, token)
}

// maxAmount is the largest reward or pool value accepted, 2^128-1.
var maxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

func toAmount(v *big.Int) (*uint256.Int, bool) {
	if v == nil || v.Sign() < 0 {
		return nil, false
	}
	out, overflow := uint256.FromBig(v)
	if overflow || out.Gt(maxAmount) {
		return nil, false
	}
	return out, true
}

// Create opens a quest and moves RewardPool from the admin into the quest
// vault. Checks run in a fixed order: max winners, reward, pool coverage,
// duration, then the admin balance.
func (e *Engine) Create(auth Authorizer, params CreateParams) (*Quest, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	if err := requireSigned(auth, params.Admin); err != nil {
		return nil, err
	}
	if params.MaxWinners == 0 {
		return nil, ErrInvalidMaxWinners
	}
	reward, ok := toAmount(params.RewardPerWinner)
	if !ok || reward.IsZero() {
		return nil, ErrInvalidRewardAmount
	}
	pool, ok := toAmount(params.RewardPool)
	if !ok {
		return nil, ErrInsufficientRewardPool
	}
	required := new(uint256.Int).Mul(reward, uint256.NewInt(uint64(params.MaxWinners)))
	if pool.Lt(required) {
		return nil, ErrInsufficientRewardPool
	}
	if params.DurationSeconds == 0 {
		return nil, ErrInvalidDuration
	}
	now := e.now()
	if params.DurationSeconds > math.MaxUint64-now {
		return nil, ErrInvalidDuration
	}
	token, err := bank.NormalizeToken(params.RewardToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuest, err)
	}
	if !params.Distribution.Valid() {
		return nil, fmt.Errorf("%w: unknown distribution %d", ErrInvalidQuest, params.Distribution)
	}
	if params.Condition == nil {
		return nil, fmt.Errorf("%w: condition required", ErrInvalidQuest)
	}
	if err := params.Condition.validate(); err != nil {
		return nil, err
	}
	if err := params.Metadata.validate(); err != nil {
		return nil, err
	}
	if err := e.checkText(params.Title, params.Description); err != nil {
		return nil, err
	}

	balance, err := e.tokens.Balance(params.Admin, token)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(params.RewardPool) < 0 {
		return nil, ErrInsufficientBalance
	}

	id, err := e.state.counter()
	if err != nil {
		return nil, err
	}
	q := &Quest{
		ID:              id,
		Admin:           params.Admin,
		RewardToken:     token,
		RewardPerWinner: reward.ToBig(),
		MaxWinners:      params.MaxWinners,
		Distribution:    params.Distribution,
		Condition:       params.Condition,
		CreatedAt:       now,
		EndTimestamp:    now + params.DurationSeconds,
		Active:          true,
		TotalRewardPool: pool.ToBig(),
		Title:           params.Title,
		Description:     params.Description,
	}
	if params.Metadata != nil {
		meta := *params.Metadata
		q.Metadata = &meta
	}
	q = q.Clone()

	if err := e.tokens.Transfer(params.Admin, VaultAddress(token), token, q.TotalRewardPool); err != nil {
		if errors.Is(err, bank.ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	if err := e.state.setEscrow(id, q.TotalRewardPool); err != nil {
		return nil, err
	}
	if err := e.state.putQuest(q); err != nil {
		return nil, err
	}
	if err := e.state.appendQuestID(id); err != nil {
		return nil, err
	}
	if err := e.state.setCounter(id + 1); err != nil {
		return nil, err
	}
	e.emit(questEvent{evt: createdEvent(q)})
	return q.Clone(), nil
}

func (e *Engine) checkText(title, description string) error {
	if strings.ContainsRune(title, '\n') {
		return fmt.Errorf("%w: title must be a single line", ErrInvalidQuest)
	}
	if e.limits.MaxTitleLength > 0 && utf8.RuneCountInString(title) > e.limits.MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidQuest, e.limits.MaxTitleLength)
	}
	if e.limits.MaxDescriptionLength > 0 && utf8.RuneCountInString(description) > e.limits.MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidQuest, e.limits.MaxDescriptionLength)
	}
	return nil
}

// Register enrols user in an active, unexpired quest. Registration is allowed
// up to and including EndTimestamp.
func (e *Engine) Register(auth Authorizer, id uint64, user [20]byte) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if err := requireSigned(auth, user); err != nil {
		return err
	}
	q, err := e.state.quest(id)
	if err != nil {
		return err
	}
	if !q.Active {
		return ErrQuestNotActive
	}
	now := e.now()
	if now > q.EndTimestamp {
		return ErrQuestExpired
	}
	registered, err := e.state.isRegistered(id, user)
	if err != nil {
		return err
	}
	if registered {
		return ErrAlreadyRegistered
	}
	if e.policy != nil {
		if err := e.policy.CanRegister(q.Clone(), user); err != nil {
			return err
		}
	}
	if err := e.state.register(id, user, now); err != nil {
		return err
	}
	e.emit(questEvent{evt: registeredEvent(id, user)})
	return nil
}

// Cancel closes an active quest early and refunds the escrow to the admin.
func (e *Engine) Cancel(auth Authorizer, id uint64) error {
	if err := e.mutable(); err != nil {
		return err
	}
	q, err := e.state.quest(id)
	if err != nil {
		return err
	}
	if err := requireSigned(auth, q.Admin); err != nil {
		return err
	}
	if !q.Active {
		return ErrQuestNotActive
	}
	q.Active = false
	q.Cancelled = true
	q.CancelledAt = e.now()
	if err := e.state.putQuest(q); err != nil {
		return err
	}
	refunded, err := e.releaseEscrow(q)
	if err != nil {
		return err
	}
	e.emit(questEvent{evt: cancelledEvent(id)})
	if refunded.Sign() > 0 {
		e.emit(questEvent{evt: poolRefundedEvent(id, q.Admin, q.RewardToken, refunded, "cancelled")})
	}
	return nil
}

// Resolve finalises a quest once EndTimestamp has passed. Raffle quests draw
// their winners here; FCFS winners are already fixed.
func (e *Engine) Resolve(auth Authorizer, id uint64) ([][20]byte, error) {
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
	now := e.now()
	if now < q.EndTimestamp {
		return nil, ErrQuestNotFinished
	}
	if !q.Active {
		return nil, ErrQuestAlreadyResolved
	}

	var (
		winners [][20]byte
		source  string
		seed    uint64
	)
	switch q.Distribution {
	case DistributionRaffle:
		participants, err := e.state.participants(id)
		if err != nil {
			return nil, err
		}
		source = e.randomness.Name()
		seed, err = e.randomness.Seed(q.Clone(), now, participants)
		if err != nil {
			return nil, err
		}
		winners = Draw(participants, q.MaxWinners, seed)
		if err := e.state.setWinners(id, winners); err != nil {
			return nil, err
		}
	default:
		winners, err = e.state.winners(id)
		if err != nil {
			return nil, err
		}
	}

	q.Active = false
	q.ResolvedAt = now
	if err := e.state.putQuest(q); err != nil {
		return nil, err
	}
	e.emit(questEvent{evt: resolvedEvent(id, len(winners), source, seed)})
	return winners, nil
}

// releaseEscrow returns whatever remains in the quest vault to the admin.
func (e *Engine) releaseEscrow(q *Quest) (*big.Int, error) {
	remaining, err := e.state.escrow(q.ID)
	if err != nil {
		return nil, err
	}
	if remaining.Sign() == 0 {
		return remaining, nil
	}
	if err := e.tokens.Transfer(VaultAddress(q.RewardToken), q.Admin, q.RewardToken, remaining); err != nil {
		return nil, fmt.Errorf("quest: release escrow: %w", err)
	}
	if err := e.state.setEscrow(q.ID, big.NewInt(0)); err != nil {
		return nil, err
	}
	return remaining, nil
}
