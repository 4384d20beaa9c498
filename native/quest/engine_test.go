package quest

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"questchain/core/events"
	"questchain/core/state"
	"questchain/native/bank"
	"questchain/native/common"
	"questchain/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

func (c *capturingEmitter) last(eventType string) map[string]string {
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventType() == eventType {
			return c.events[i].(events.Payload).Event().Attributes
		}
	}
	return nil
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

type harness struct {
	t       *testing.T
	mgr     *state.Manager
	bank    *bank.Ledger
	engine  *Engine
	emitter *capturingEmitter
	now     int64
	admin   [20]byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken("QST", "Quest Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	h := &harness{
		t:       t,
		mgr:     mgr,
		bank:    bank.NewLedger(mgr),
		emitter: &capturingEmitter{},
		now:     1_000,
		admin:   newTestAddress(0xA0),
	}
	h.engine = NewEngine()
	h.engine.SetState(mgr)
	h.engine.SetLedger(h.bank)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.fund(h.admin, 10_000)
	return h
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (h *harness) fund(addr [20]byte, amount int64) {
	h.t.Helper()
	if err := h.bank.Credit(addr, "QST", big.NewInt(amount)); err != nil {
		h.t.Fatalf("credit: %v", err)
	}
}

func (h *harness) balance(addr [20]byte) int64 {
	h.t.Helper()
	bal, err := h.bank.Balance(addr, "QST")
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) params(dist Distribution, maxWinners uint32, reward, pool int64) CreateParams {
	return CreateParams{
		Admin:           h.admin,
		RewardToken:     "qst",
		RewardPerWinner: big.NewInt(reward),
		MaxWinners:      maxWinners,
		Distribution:    dist,
		Condition:       TradeVolume{TargetVolume: big.NewInt(5_000), Venue: newTestAddress(0xDE)},
		DurationSeconds: 3600,
		RewardPool:      big.NewInt(pool),
		Title:           "Trade week",
		Description:     "Trade at least 5000 on the venue",
	}
}

func (h *harness) create(dist Distribution, maxWinners uint32, reward, pool int64) *Quest {
	h.t.Helper()
	q, err := h.engine.Create(Caller(h.admin), h.params(dist, maxWinners, reward, pool))
	if err != nil {
		h.t.Fatalf("create: %v", err)
	}
	return q
}

func (h *harness) register(id uint64, users ...[20]byte) {
	h.t.Helper()
	for _, user := range users {
		if err := h.engine.Register(Caller(user), id, user); err != nil {
			h.t.Fatalf("register %x: %v", user[:1], err)
		}
	}
}

func (h *harness) mark(id uint64, user [20]byte) Admission {
	h.t.Helper()
	outcome, err := h.engine.MarkEligible(Caller(h.admin), id, user)
	if err != nil {
		h.t.Fatalf("mark eligible: %v", err)
	}
	return outcome
}

func users(n int) [][20]byte {
	out := make([][20]byte, n)
	for i := range out {
		out[i] = newTestAddress(byte(0x10 + i))
	}
	return out
}

func TestCreateEscrowsPoolAndAssignsSequentialIDs(t *testing.T) {
	h := newHarness(t)
	first := h.create(DistributionFCFS, 2, 100, 200)
	second := h.create(DistributionRaffle, 1, 50, 75)

	if first.ID != 0 || second.ID != 1 {
		t.Fatalf("unexpected ids %d %d", first.ID, second.ID)
	}
	if first.EndTimestamp != 1_000+3600 || !first.Active {
		t.Fatalf("unexpected quest %+v", first)
	}
	if got := h.balance(h.admin); got != 10_000-275 {
		t.Fatalf("admin balance %d", got)
	}
	if got := h.balance(VaultAddress("QST")); got != 275 {
		t.Fatalf("vault balance %d", got)
	}
	count, err := h.engine.Counter()
	if err != nil || count != 2 {
		t.Fatalf("counter %d err %v", count, err)
	}
	stored, err := h.engine.Quest(first.ID)
	if err != nil {
		t.Fatalf("get quest: %v", err)
	}
	if stored.RewardToken != "QST" || stored.TotalRewardPool.Int64() != 200 {
		t.Fatalf("unexpected stored quest %+v", stored)
	}
	cond, ok := stored.Condition.(TradeVolume)
	if !ok || cond.TargetVolume.Int64() != 5_000 || cond.Venue != newTestAddress(0xDE) {
		t.Fatalf("condition not round-tripped: %#v", stored.Condition)
	}
	attrs := h.emitter.last(EventTypeQuestCreated)
	if attrs["questId"] != "1" || attrs["distribution"] != "raffle" || attrs["token"] != "QST" {
		t.Fatalf("unexpected created event %v", attrs)
	}
}

func TestCreateValidationOrder(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name   string
		mutate func(*CreateParams)
		want   error
	}{
		{"zero winners wins over bad reward", func(p *CreateParams) { p.MaxWinners = 0; p.RewardPerWinner = big.NewInt(0) }, ErrInvalidMaxWinners},
		{"zero reward", func(p *CreateParams) { p.RewardPerWinner = big.NewInt(0) }, ErrInvalidRewardAmount},
		{"reward above 128 bits", func(p *CreateParams) { p.RewardPerWinner = new(big.Int).Lsh(big.NewInt(1), 128) }, ErrInvalidRewardAmount},
		{"pool short", func(p *CreateParams) { p.RewardPool = big.NewInt(199) }, ErrInsufficientRewardPool},
		{"pool short wins over duration", func(p *CreateParams) { p.RewardPool = big.NewInt(1); p.DurationSeconds = 0 }, ErrInsufficientRewardPool},
		{"zero duration", func(p *CreateParams) { p.DurationSeconds = 0 }, ErrInvalidDuration},
		{"balance short", func(p *CreateParams) { p.RewardPool = big.NewInt(20_000) }, ErrInsufficientBalance},
		{"missing condition", func(p *CreateParams) { p.Condition = nil }, ErrInvalidQuest},
		{"bad metadata", func(p *CreateParams) { p.Metadata = &Metadata{Difficulty: 9} }, ErrInvalidQuest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := h.params(DistributionFCFS, 2, 100, 200)
			tc.mutate(&params)
			if _, err := h.engine.Create(Caller(h.admin), params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if count, _ := h.engine.Counter(); count != 0 {
		t.Fatalf("failed creations must not consume ids, counter=%d", count)
	}
	if got := h.balance(h.admin); got != 10_000 {
		t.Fatalf("failed creations must not move funds, balance=%d", got)
	}
}

func TestCreateRequiresAdminSignature(t *testing.T) {
	h := newHarness(t)
	stranger := newTestAddress(0x99)
	if _, err := h.engine.Create(Caller(stranger), h.params(DistributionFCFS, 1, 1, 1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := h.engine.Create(nil, h.params(DistributionFCFS, 1, 1, 1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for nil authorizer, got %v", err)
	}
}

func TestRegisterLifecycle(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 1, 10, 10)
	alice := newTestAddress(0x01)

	if err := h.engine.Register(Caller(h.admin), q.ID, alice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.engine.Register(Caller(alice), 42, alice); !errors.Is(err, ErrQuestNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	h.register(q.ID, alice)
	if err := h.engine.Register(Caller(alice), q.ID, alice); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}

	ok, err := h.engine.IsRegistered(q.ID, alice)
	if err != nil || !ok {
		t.Fatalf("expected registration, ok=%v err=%v", ok, err)
	}
	ids, _ := h.engine.UserQuests(alice)
	if len(ids) != 1 || ids[0] != q.ID {
		t.Fatalf("unexpected user quests %v", ids)
	}
}

func TestRegisterAtAndAfterEnd(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 1, 10, 10)
	onTime := newTestAddress(0x01)
	late := newTestAddress(0x02)

	h.now = int64(q.EndTimestamp)
	h.register(q.ID, onTime)

	h.now = int64(q.EndTimestamp) + 1
	if err := h.engine.Register(Caller(late), q.ID, late); !errors.Is(err, ErrQuestExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

type denyPolicy struct{ blocked [20]byte }

func (d denyPolicy) CanRegister(_ *Quest, user [20]byte) error {
	if user == d.blocked {
		return errors.New("kyc required")
	}
	return nil
}

func TestRegisterConsultsEligibilityPolicy(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 1, 10, 10)
	blocked := newTestAddress(0x01)
	h.engine.SetEligibilityPolicy(denyPolicy{blocked: blocked})

	if err := h.engine.Register(Caller(blocked), q.ID, blocked); err == nil {
		t.Fatalf("expected policy rejection")
	}
	h.register(q.ID, newTestAddress(0x02))
}

func TestFCFSAdmitsFirstMaxWinners(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 2, 100, 200)
	u := users(3)
	h.register(q.ID, u...)

	want := []Admission{AdmissionWinner, AdmissionWinner, AdmissionCapacityReached}
	for i, user := range u {
		if got := h.mark(q.ID, user); got != want[i] {
			t.Fatalf("mark %d: expected %v, got %v", i, want[i], got)
		}
	}
	if got := h.mark(q.ID, u[0]); got != AdmissionAlreadyWinner {
		t.Fatalf("expected repeat mark to be idempotent, got %v", got)
	}
	winners, _ := h.engine.Winners(q.ID)
	if len(winners) != 2 || winners[0] != u[0] || winners[1] != u[1] {
		t.Fatalf("unexpected winners %x", winners)
	}
}

func TestMarkEligibleGuards(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 2, 100, 200)
	user := newTestAddress(0x01)

	if _, err := h.engine.MarkEligible(Caller(h.admin), q.ID, user); !errors.Is(err, ErrUserNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}
	h.register(q.ID, user)
	if _, err := h.engine.MarkEligible(Caller(user), q.ID, user); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.engine.Cancel(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.engine.MarkEligible(Caller(h.admin), q.ID, user); !errors.Is(err, ErrQuestNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
}

func TestRaffleDrawsOneOfFive(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 1, 100, 100)
	u := users(5)
	h.register(q.ID, u...)
	for _, user := range u {
		if got := h.mark(q.ID, user); got != AdmissionEntered {
			t.Fatalf("expected entered, got %v", got)
		}
	}
	if got := h.mark(q.ID, u[0]); got != AdmissionAlreadyEntered {
		t.Fatalf("expected already entered, got %v", got)
	}

	h.now = int64(q.EndTimestamp) + 1
	winners, err := h.engine.Resolve(Caller(h.admin), q.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// seed is the resolution timestamp: 4601 % 5 == 1
	if len(winners) != 1 || winners[0] != u[1] {
		t.Fatalf("unexpected winners %x", winners)
	}
	attrs := h.emitter.last(EventTypeQuestResolved)
	if attrs["winnersCount"] != "1" || attrs["randomness"] != "timestamp" || attrs["seed"] != "4601" {
		t.Fatalf("unexpected resolved event %v", attrs)
	}
	stored, _ := h.engine.Winners(q.ID)
	if len(stored) != 1 || stored[0] != u[1] {
		t.Fatalf("winners not persisted: %x", stored)
	}
}

func TestRaffleWithFewerParticipantsThanSlots(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 5, 10, 50)
	u := users(3)
	h.register(q.ID, u...)
	for _, user := range u {
		h.mark(q.ID, user)
	}
	h.now = int64(q.EndTimestamp)
	winners, err := h.engine.Resolve(Caller(h.admin), q.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(winners) != 3 {
		t.Fatalf("expected all participants to win, got %d", len(winners))
	}
	seen := map[[20]byte]bool{}
	for _, w := range winners {
		if seen[w] {
			t.Fatalf("duplicate winner %x", w)
		}
		seen[w] = true
	}
}

func TestResolveGuards(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 1, 10, 10)

	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); !errors.Is(err, ErrQuestNotFinished) {
		t.Fatalf("expected not finished, got %v", err)
	}
	h.now = int64(q.EndTimestamp)
	if _, err := h.engine.Resolve(Caller(newTestAddress(0x01)), q.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); !errors.Is(err, ErrQuestAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
	got, _ := h.engine.Quest(q.ID)
	if got.Active || got.Status() != StatusResolved || got.ResolvedAt != q.EndTimestamp {
		t.Fatalf("unexpected quest after resolve %+v", got)
	}
}

func TestDistributeRewardsPaysOnce(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 2, 100, 250)
	u := users(2)
	h.register(q.ID, u...)

	if _, err := h.engine.DistributeRewards(Caller(h.admin), q.ID); !errors.Is(err, ErrQuestNotResolved) {
		t.Fatalf("expected not resolved, got %v", err)
	}
	for _, user := range u {
		h.mark(q.ID, user)
	}
	h.now = int64(q.EndTimestamp)
	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := h.engine.WithdrawRemainder(Caller(h.admin), q.ID); !errors.Is(err, ErrRewardsPending) {
		t.Fatalf("expected rewards pending, got %v", err)
	}

	payout, err := h.engine.DistributeRewards(Caller(h.admin), q.ID)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if payout.Winners != 2 || payout.Amount.Int64() != 200 {
		t.Fatalf("unexpected payout %+v", payout)
	}
	for _, user := range u {
		if got := h.balance(user); got != 100 {
			t.Fatalf("winner balance %d", got)
		}
	}
	if _, err := h.engine.DistributeRewards(Caller(h.admin), q.ID); !errors.Is(err, ErrRewardsDistributed) {
		t.Fatalf("expected repeat payout to fail, got %v", err)
	}

	amount, err := h.engine.WithdrawRemainder(Caller(h.admin), q.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 50 {
		t.Fatalf("unexpected remainder %s", amount)
	}
	if _, err := h.engine.WithdrawRemainder(Caller(h.admin), q.ID); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected nothing to withdraw, got %v", err)
	}
	if got := h.balance(VaultAddress("QST")); got != 0 {
		t.Fatalf("vault should be empty, has %d", got)
	}
	if got := h.balance(h.admin); got != 10_000-250+50 {
		t.Fatalf("admin balance %d", got)
	}
}

func TestDistributeWithoutWinners(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 3, 10, 30)
	h.now = int64(q.EndTimestamp)
	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := h.engine.DistributeRewards(Caller(h.admin), q.ID); !errors.Is(err, ErrNoWinners) {
		t.Fatalf("expected no winners, got %v", err)
	}
	amount, err := h.engine.WithdrawRemainder(Caller(h.admin), q.ID)
	if err != nil || amount.Int64() != 30 {
		t.Fatalf("expected full refund, got %v err %v", amount, err)
	}
}

func TestCancelRefundsPool(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 2, 100, 200)
	if err := h.engine.Cancel(Caller(newTestAddress(0x01)), q.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.engine.Cancel(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(h.admin); got != 10_000 {
		t.Fatalf("pool not refunded, balance=%d", got)
	}
	if err := h.engine.Cancel(Caller(h.admin), q.ID); !errors.Is(err, ErrQuestNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
	stored, _ := h.engine.Quest(q.ID)
	if stored.Status() != StatusCancelled {
		t.Fatalf("expected cancelled status, got %v", stored.Status())
	}
	h.now = int64(q.EndTimestamp)
	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); !errors.Is(err, ErrQuestAlreadyResolved) {
		t.Fatalf("expected already resolved, got %v", err)
	}
	if _, err := h.engine.DistributeRewards(Caller(h.admin), q.ID); !errors.Is(err, ErrQuestNotResolved) {
		t.Fatalf("expected cancelled quest to refuse payout, got %v", err)
	}
	got := h.emitter.types()
	if got[len(got)-2] != EventTypeQuestCancelled || got[len(got)-1] != EventTypeQuestPoolRefunded {
		t.Fatalf("unexpected events %v", got)
	}
}

type flakyLedger struct {
	tokenLedger
	failAfter int
	calls     int
}

func (f *flakyLedger) Transfer(from, to [20]byte, token string, amount *big.Int) error {
	f.calls++
	if f.calls > f.failAfter {
		return errors.New("ledger unavailable")
	}
	return f.tokenLedger.Transfer(from, to, token, amount)
}

func TestFailedPayoutRollsBackWithDiscard(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 2, 100, 200)
	u := users(2)
	h.register(q.ID, u...)
	for _, user := range u {
		h.mark(q.ID, user)
	}
	h.now = int64(q.EndTimestamp)
	if _, err := h.engine.Resolve(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := h.mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	h.engine.SetLedger(&flakyLedger{tokenLedger: h.bank, failAfter: 1})
	if _, err := h.engine.DistributeRewards(Caller(h.admin), q.ID); err == nil {
		t.Fatalf("expected payout failure")
	}
	h.mgr.Discard()
	h.engine.SetLedger(h.bank)

	if got := h.balance(u[0]); got != 0 {
		t.Fatalf("partial payout survived discard: %d", got)
	}
	if _, paid, _ := h.engine.Payout(q.ID); paid {
		t.Fatalf("payout marker survived discard")
	}
	if _, err := h.engine.DistributeRewards(Caller(h.admin), q.ID); err != nil {
		t.Fatalf("retry distribute: %v", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	h := newHarness(t)
	h.engine.SetPauses(pauseSet{ModuleName: true})
	if _, err := h.engine.Create(Caller(h.admin), h.params(DistributionFCFS, 1, 1, 1)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestErrorCodes(t *testing.T) {
	if Code(ErrQuestNotFound) != 1 || Code(ErrInsufficientBalance) != 15 || Code(ErrRewardsDistributed) != 16 {
		t.Fatalf("unexpected codes")
	}
	if Code(errors.New("other")) != 0 {
		t.Fatalf("foreign errors must map to zero")
	}
}
