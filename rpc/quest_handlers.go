package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"questchain/crypto"
	"questchain/indexer"
	"questchain/native/common"
	"questchain/native/quest"
)

type signedHandler func(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure)

type readHandler func(s *Server, r *http.Request, params json.RawMessage) (interface{}, *failure)

var mutatingHandlers = map[string]signedHandler{
	"quest_create":            handleQuestCreate,
	"quest_register":          handleQuestRegister,
	"quest_markEligible":      handleQuestMarkEligible,
	"quest_resolve":           handleQuestResolve,
	"quest_distributeRewards": handleQuestDistribute,
	"quest_cancel":            handleQuestCancel,
	"quest_withdrawRemainder": handleQuestWithdraw,
}

var readHandlers = map[string]readHandler{
	"quest_get":          handleQuestGet,
	"quest_list":         handleQuestList,
	"quest_listActive":   handleQuestListActive,
	"quest_participants": handleQuestParticipants,
	"quest_winners":      handleQuestWinners,
	"quest_isRegistered": handleQuestIsRegistered,
	"quest_userQuests":   handleQuestUserQuests,
	"quest_counter":      handleQuestCounter,
	"quest_stats":        handleQuestStats,
	"quest_userStats":    handleQuestUserStats,
	"quest_events":       handleQuestEvents,
	"bank_balance":       handleBankBalance,
}

func (s *Server) handleSigned(method string, params json.RawMessage, handler signedHandler) (interface{}, *failure) {
	if len(params) == 0 {
		return nil, invalidParams("signed envelope required")
	}
	var env SignedEnvelope
	if err := json.Unmarshal(params, &env); err != nil {
		return nil, invalidParams("invalid envelope: %v", err)
	}
	caller, f := s.verify(method, &env)
	if f != nil {
		s.logger.Warn("rejected signed call",
			"method", method,
			"caller", env.Caller,
			"nonce", env.Nonce,
			"reason", f.err.Message)
		return nil, f
	}
	return handler(s, caller, env.Payload)
}

func decodeParams(raw json.RawMessage, dst interface{}) *failure {
	if len(raw) == 0 {
		return invalidParams("parameter object required")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

func parseUser(raw string) ([20]byte, *failure) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, invalidParams("invalid address: %v", err)
	}
	return addr, nil
}

// questFailure maps engine errors onto HTTP status and JSON-RPC codes.
func questFailure(err error) *failure {
	if errors.Is(err, common.ErrModulePaused) {
		return fail(http.StatusServiceUnavailable, codeUnavailable, err.Error(), nil)
	}
	code := quest.Code(err)
	if code == 0 {
		return fail(http.StatusInternalServerError, codeServerError, err.Error(), nil)
	}
	status := http.StatusConflict
	switch {
	case errors.Is(err, quest.ErrQuestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quest.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, quest.ErrInvalidMaxWinners),
		errors.Is(err, quest.ErrInvalidRewardAmount),
		errors.Is(err, quest.ErrInsufficientRewardPool),
		errors.Is(err, quest.ErrInvalidDuration),
		errors.Is(err, quest.ErrInvalidQuest):
		status = http.StatusBadRequest
	}
	return fail(status, codeQuestBase-int(code), err.Error(), map[string]uint32{"questCode": code})
}

func handleQuestCreate(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestCreatePayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	params, err := body.Params(caller)
	if err != nil {
		if errors.Is(err, quest.ErrInvalidQuest) {
			return nil, questFailure(err)
		}
		return nil, invalidParams("%v", err)
	}
	created, err := s.node.QuestCreate(caller, params)
	if err != nil {
		return nil, questFailure(err)
	}
	return questJSON(created), nil
}

func handleQuestRegister(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	if err := s.node.QuestRegister(caller, body.ID, caller); err != nil {
		return nil, questFailure(err)
	}
	return map[string]interface{}{"id": body.ID, "registered": true}, nil
}

func handleQuestMarkEligible(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestUserPayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	user, f := parseUser(body.User)
	if f != nil {
		return nil, f
	}
	outcome, err := s.node.QuestMarkEligible(caller, body.ID, user)
	if err != nil {
		return nil, questFailure(err)
	}
	return map[string]interface{}{"id": body.ID, "outcome": outcome.String()}, nil
}

func handleQuestResolve(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	winners, err := s.node.QuestResolve(caller, body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return map[string]interface{}{"id": body.ID, "winners": addressList(winners)}, nil
}

func handleQuestDistribute(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	payout, err := s.node.QuestDistributeRewards(caller, body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return PayoutJSON{
		QuestID:       payout.QuestID,
		DistributedAt: payout.DistributedAt,
		Winners:       payout.Winners,
		Amount:        amountString(payout.Amount),
	}, nil
}

func handleQuestCancel(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	if err := s.node.QuestCancel(caller, body.ID); err != nil {
		return nil, questFailure(err)
	}
	return map[string]interface{}{"id": body.ID, "cancelled": true}, nil
}

func handleQuestWithdraw(s *Server, caller quest.Caller, payload json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(payload, &body); f != nil {
		return nil, f
	}
	amount, err := s.node.QuestWithdrawRemainder(caller, body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return map[string]interface{}{"id": body.ID, "amount": amountString(amount)}, nil
}

func handleQuestGet(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	q, err := s.node.QuestGet(body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return questJSON(q), nil
}

func handleQuestList(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body ListPayload
	if len(params) > 0 {
		if f := decodeParams(params, &body); f != nil {
			return nil, f
		}
	}
	filter, err := quest.ParseStatusFilter(body.Status)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	quests, err := s.node.QuestList(filter)
	if err != nil {
		return nil, questFailure(err)
	}
	out := make([]QuestJSON, 0, len(quests))
	for _, q := range quests {
		out = append(out, questJSON(q))
	}
	return out, nil
}

func handleQuestListActive(s *Server, _ *http.Request, _ json.RawMessage) (interface{}, *failure) {
	ids, err := s.node.QuestActive()
	if err != nil {
		return nil, questFailure(err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func handleQuestParticipants(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	participants, err := s.node.QuestParticipants(body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return addressList(participants), nil
}

func handleQuestWinners(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	winners, err := s.node.QuestWinners(body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return addressList(winners), nil
}

func handleQuestIsRegistered(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body QuestUserPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	user, f := parseUser(body.User)
	if f != nil {
		return nil, f
	}
	ok, err := s.node.QuestIsRegistered(body.ID, user)
	if err != nil {
		return nil, questFailure(err)
	}
	return ok, nil
}

func handleQuestUserQuests(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body UserPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	user, f := parseUser(body.User)
	if f != nil {
		return nil, f
	}
	ids, err := s.node.QuestUserQuests(user)
	if err != nil {
		return nil, questFailure(err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func handleQuestCounter(s *Server, _ *http.Request, _ json.RawMessage) (interface{}, *failure) {
	count, err := s.node.QuestCounter()
	if err != nil {
		return nil, questFailure(err)
	}
	return count, nil
}

func handleQuestStats(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body QuestIDPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	stats, err := s.node.QuestStats(body.ID)
	if err != nil {
		return nil, questFailure(err)
	}
	return QuestStatsJSON{
		QuestID:            stats.QuestID,
		TotalRegistered:    stats.TotalRegistered,
		TotalEligible:      stats.TotalEligible,
		TotalWinners:       stats.TotalWinners,
		IsResolved:         stats.IsResolved,
		TimeRemaining:      stats.TimeRemaining,
		RewardsDistributed: stats.RewardsDistributed,
		EscrowBalance:      amountString(stats.EscrowBalance),
	}, nil
}

func handleQuestUserStats(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body UserPayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	user, f := parseUser(body.User)
	if f != nil {
		return nil, f
	}
	stats, err := s.node.QuestUserStats(user)
	if err != nil {
		return nil, questFailure(err)
	}
	return UserStatsJSON{
		TotalParticipated: stats.TotalParticipated,
		TotalWon:          stats.TotalWon,
		TotalRewards:      amountString(stats.TotalRewards),
		WinRateBps:        stats.WinRateBps,
	}, nil
}

func handleQuestEvents(s *Server, r *http.Request, params json.RawMessage) (interface{}, *failure) {
	if s.indexer == nil {
		return nil, fail(http.StatusServiceUnavailable, codeUnavailable, "event index disabled", nil)
	}
	var body EventsPayload
	if len(params) > 0 {
		if f := decodeParams(params, &body); f != nil {
			return nil, f
		}
	}
	rows, err := s.indexer.List(r.Context(), indexer.Filter{
		QuestID:       body.QuestID,
		Type:          body.Type,
		AfterSequence: body.AfterSequence,
		Limit:         body.Limit,
	})
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, err.Error(), nil)
	}
	out := make([]EventJSON, 0, len(rows))
	for _, row := range rows {
		attrs, err := row.DecodeAttributes()
		if err != nil {
			return nil, fail(http.StatusInternalServerError, codeServerError, err.Error(), nil)
		}
		out = append(out, EventJSON{
			Sequence:   row.Sequence,
			QuestID:    row.QuestID,
			Type:       row.Type,
			Attributes: attrs,
			CreatedAt:  row.CreatedAt.Unix(),
		})
	}
	return out, nil
}

func handleBankBalance(s *Server, _ *http.Request, params json.RawMessage) (interface{}, *failure) {
	var body BalancePayload
	if f := decodeParams(params, &body); f != nil {
		return nil, f
	}
	addr, f := parseUser(body.Address)
	if f != nil {
		return nil, f
	}
	balance, err := s.node.Balance(addr, body.Token)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return map[string]string{"address": crypto.AddressFromRaw(addr).String(), "token": strings.ToUpper(strings.TrimSpace(body.Token)), "balance": balance.String()}, nil
}
