package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"questchain/core/events"
	"questchain/core/state"
	"questchain/native/bank"
	"questchain/native/common"
	"questchain/native/quest"
	"questchain/storage"
)

// Options tunes the quest engine built for every unit of work.
type Options struct {
	Randomness quest.Randomness
	Policy     quest.EligibilityPolicy
	Pauses     common.PauseView
	Limits     quest.Limits
	Logger     *slog.Logger
	// Now overrides the wall clock. Used by tests.
	Now func() int64
}

// Node owns the state database and serialises every quest operation. Each
// mutating call stages its writes in a fresh state.Manager and either commits
// them as one batch or discards them, so an operation never partially applies.
// Events are buffered per call and only reach subscribers after commit.
type Node struct {
	db      storage.Database
	opts    Options
	logger  *slog.Logger
	stateMu sync.Mutex

	emitMu   sync.RWMutex
	emitters events.Multi
}

func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{db: db, opts: opts, logger: logger.With("component", "node")}, nil
}

// Subscribe attaches an emitter that receives committed events.
func (n *Node) Subscribe(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	n.emitMu.Lock()
	n.emitters = append(n.emitters, emitter)
	n.emitMu.Unlock()
}

func (n *Node) publish(buffer *events.Buffer) {
	n.emitMu.RLock()
	sinks := append(events.Multi(nil), n.emitters...)
	n.emitMu.RUnlock()
	buffer.Flush(sinks)
}

func (n *Node) newQuestEngine(manager *state.Manager, emitter events.Emitter) *quest.Engine {
	engine := quest.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(bank.NewLedger(manager))
	engine.SetEmitter(emitter)
	engine.SetRandomness(n.opts.Randomness)
	engine.SetEligibilityPolicy(n.opts.Policy)
	engine.SetPauses(n.opts.Pauses)
	engine.SetLimits(n.opts.Limits)
	if n.opts.Now != nil {
		engine.SetNowFunc(n.opts.Now)
	}
	return engine
}

// execute runs fn as one atomic unit of work.
func (n *Node) execute(op string, fn func(*quest.Engine) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	buffer := &events.Buffer{}
	engine := n.newQuestEngine(manager, buffer)
	if err := fn(engine); err != nil {
		manager.Discard()
		n.logger.Debug("operation rejected", "op", op, "error", err)
		return err
	}
	writes := manager.Dirty()
	if err := manager.Commit(); err != nil {
		n.logger.Error("commit failed", "op", op, "error", err)
		return fmt.Errorf("core: commit %s: %w", op, err)
	}
	n.logger.Info("operation committed", "op", op, "writes", writes, "events", len(buffer.Events()))
	n.publish(buffer)
	return nil
}

// view runs fn against committed state without writing.
func (n *Node) view(fn func(*quest.Engine, *bank.Ledger) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	defer manager.Discard()
	return fn(n.newQuestEngine(manager, events.NoopEmitter{}), bank.NewLedger(manager))
}

func (n *Node) QuestCreate(auth quest.Authorizer, params quest.CreateParams) (*quest.Quest, error) {
	var created *quest.Quest
	err := n.execute("quest_create", func(e *quest.Engine) error {
		q, err := e.Create(auth, params)
		created = q
		return err
	})
	return created, err
}

func (n *Node) QuestRegister(auth quest.Authorizer, id uint64, user [20]byte) error {
	return n.execute("quest_register", func(e *quest.Engine) error {
		return e.Register(auth, id, user)
	})
}

func (n *Node) QuestMarkEligible(auth quest.Authorizer, id uint64, user [20]byte) (quest.Admission, error) {
	var outcome quest.Admission
	err := n.execute("quest_mark_eligible", func(e *quest.Engine) error {
		res, err := e.MarkEligible(auth, id, user)
		outcome = res
		return err
	})
	return outcome, err
}

func (n *Node) QuestResolve(auth quest.Authorizer, id uint64) ([][20]byte, error) {
	var winners [][20]byte
	err := n.execute("quest_resolve", func(e *quest.Engine) error {
		res, err := e.Resolve(auth, id)
		winners = res
		return err
	})
	return winners, err
}

func (n *Node) QuestDistributeRewards(auth quest.Authorizer, id uint64) (*quest.Payout, error) {
	var payout *quest.Payout
	err := n.execute("quest_distribute_rewards", func(e *quest.Engine) error {
		res, err := e.DistributeRewards(auth, id)
		payout = res
		return err
	})
	return payout, err
}

func (n *Node) QuestCancel(auth quest.Authorizer, id uint64) error {
	return n.execute("quest_cancel", func(e *quest.Engine) error {
		return e.Cancel(auth, id)
	})
}

func (n *Node) QuestWithdrawRemainder(auth quest.Authorizer, id uint64) (*big.Int, error) {
	var amount *big.Int
	err := n.execute("quest_withdraw_remainder", func(e *quest.Engine) error {
		res, err := e.WithdrawRemainder(auth, id)
		amount = res
		return err
	})
	return amount, err
}

func (n *Node) QuestGet(id uint64) (q *quest.Quest, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		q, err = e.Quest(id)
		return err
	})
	return q, err
}

func (n *Node) QuestList(filter quest.StatusFilter) (out []*quest.Quest, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		out, err = e.List(filter)
		return err
	})
	return out, err
}

func (n *Node) QuestActive() (ids []uint64, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		ids, err = e.ActiveQuests()
		return err
	})
	return ids, err
}

func (n *Node) QuestParticipants(id uint64) (out [][20]byte, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		out, err = e.Participants(id)
		return err
	})
	return out, err
}

func (n *Node) QuestWinners(id uint64) (out [][20]byte, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		out, err = e.Winners(id)
		return err
	})
	return out, err
}

func (n *Node) QuestIsRegistered(id uint64, user [20]byte) (ok bool, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		ok, err = e.IsRegistered(id, user)
		return err
	})
	return ok, err
}

func (n *Node) QuestUserQuests(user [20]byte) (ids []uint64, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		ids, err = e.UserQuests(user)
		return err
	})
	return ids, err
}

func (n *Node) QuestCounter() (count uint64, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		count, err = e.Counter()
		return err
	})
	return count, err
}

func (n *Node) QuestStats(id uint64) (stats *quest.QuestStats, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		stats, err = e.QuestStats(id)
		return err
	})
	return stats, err
}

func (n *Node) QuestUserStats(user [20]byte) (stats *quest.UserStats, err error) {
	err = n.view(func(e *quest.Engine, _ *bank.Ledger) error {
		stats, err = e.UserStats(user)
		return err
	})
	return stats, err
}

// Balance returns the committed token balance of addr.
func (n *Node) Balance(addr [20]byte, token string) (bal *big.Int, err error) {
	err = n.view(func(_ *quest.Engine, l *bank.Ledger) error {
		bal, err = l.Balance(addr, token)
		return err
	})
	return bal, err
}
