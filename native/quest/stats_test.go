package quest

import (
	"testing"
)

func TestUserWinRateBasisPoints(t *testing.T) {
	h := newHarness(t)
	player := newTestAddress(0x01)
	var ids []uint64
	for i := 0; i < 4; i++ {
		q := h.create(DistributionFCFS, 1, 10, 10)
		h.register(q.ID, player)
		ids = append(ids, q.ID)
	}
	h.mark(ids[2], player)

	stats, err := h.engine.UserStats(player)
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if stats.TotalParticipated != 4 || stats.TotalWon != 1 || stats.WinRateBps != 2500 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.TotalRewards.Int64() != 10 {
		t.Fatalf("unexpected rewards %s", stats.TotalRewards)
	}

	empty, _ := h.engine.UserStats(newTestAddress(0x77))
	if empty.WinRateBps != 0 || empty.TotalParticipated != 0 {
		t.Fatalf("unexpected empty stats %+v", empty)
	}
}

func TestQuestStatsTracksRegistrations(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionRaffle, 2, 10, 20)
	u := users(4)
	h.register(q.ID, u...)
	h.mark(q.ID, u[0])
	h.mark(q.ID, u[1])
	h.now += 600

	stats, err := h.engine.QuestStats(q.ID)
	if err != nil {
		t.Fatalf("quest stats: %v", err)
	}
	if stats.TotalRegistered != 4 || stats.TotalEligible != 2 || stats.TotalWinners != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.IsResolved || stats.TimeRemaining != 3000 || stats.EscrowBalance.Int64() != 20 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	h.now = int64(q.EndTimestamp) + 50
	stats, _ = h.engine.QuestStats(q.ID)
	if stats.TimeRemaining != 0 {
		t.Fatalf("time remaining should floor at zero, got %d", stats.TimeRemaining)
	}
	if _, err := h.engine.QuestStats(99); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestActiveQuestsAndListFilters(t *testing.T) {
	h := newHarness(t)
	first := h.create(DistributionFCFS, 1, 10, 10)
	h.now += 1000
	second := h.create(DistributionFCFS, 1, 10, 10)
	third := h.create(DistributionFCFS, 1, 10, 10)
	if err := h.engine.Cancel(Caller(h.admin), third.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	active, _ := h.engine.ActiveQuests()
	if len(active) != 2 || active[0] != first.ID || active[1] != second.ID {
		t.Fatalf("unexpected active quests %v", active)
	}
	h.now = int64(first.EndTimestamp) + 1
	active, _ = h.engine.ActiveQuests()
	if len(active) != 1 || active[0] != second.ID {
		t.Fatalf("expired quest should drop out, got %v", active)
	}

	live, _ := h.engine.List(FilterActive)
	if len(live) != 1 || live[0].ID != second.ID {
		t.Fatalf("expired quest listed as active: %v", live)
	}
	inactive, _ := h.engine.List(FilterInactive)
	if len(inactive) != 2 || inactive[0].ID != first.ID || inactive[1].ID != third.ID {
		t.Fatalf("expired and cancelled quests should be inactive, got %v", inactive)
	}
	all, _ := h.engine.List(FilterAll)
	if len(all) != 3 {
		t.Fatalf("expected 3 quests, got %d", len(all))
	}
	if parts, _ := h.engine.Participants(77); len(parts) != 0 {
		t.Fatalf("unknown quest should have no participants")
	}
}

func TestQuestStatsCountsParticipantPoolForFCFS(t *testing.T) {
	h := newHarness(t)
	q := h.create(DistributionFCFS, 2, 10, 20)
	u := users(2)
	h.register(q.ID, u...)
	h.mark(q.ID, u[0])

	stats, err := h.engine.QuestStats(q.ID)
	if err != nil {
		t.Fatalf("quest stats: %v", err)
	}
	parts, _ := h.engine.Participants(q.ID)
	if stats.TotalEligible != uint32(len(parts)) || stats.TotalEligible != 0 {
		t.Fatalf("eligible count should mirror the participant set, got %+v", stats)
	}
	if stats.TotalWinners != 1 {
		t.Fatalf("expected one admitted winner, got %+v", stats)
	}
}
