package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"questchain/core/types"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func TestQuestMetricsCountsEvents(t *testing.T) {
	m := Quests()
	before := testutil.ToFloat64(m.events.WithLabelValues("quest.created"))
	m.Emit(testEvent{evt: &types.Event{Type: "quest.created"}})
	require.Equal(t, before+1, testutil.ToFloat64(m.events.WithLabelValues("quest.created")))

	paidBefore := testutil.ToFloat64(m.payouts.WithLabelValues("winners"))
	m.Emit(testEvent{evt: &types.Event{Type: "quest.rewards_distributed", Attributes: map[string]string{"amount": "250"}}})
	require.Equal(t, paidBefore+250, testutil.ToFloat64(m.payouts.WithLabelValues("winners")))
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("quest", "quest_resolve", "-32104"))
	m.Observe("quest", "quest_resolve", -32104, 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("quest", "quest_resolve", "-32104")))

	var nilMetrics *moduleMetrics
	nilMetrics.Observe("quest", "x", 0, time.Millisecond)
}
