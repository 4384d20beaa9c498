package quest

// MarkEligible records that user completed the quest task. The admin is the
// only caller allowed to vouch for completion.
//
// FCFS quests append the user to the winner set while slots remain; once full,
// further marks are accepted and dropped. Raffle quests add the user to the
// draw pool. Both paths are idempotent per user.
func (e *Engine) MarkEligible(auth Authorizer, id uint64, user [20]byte) (Admission, error) {
	if err := e.mutable(); err != nil {
		return 0, err
	}
	q, err := e.state.quest(id)
	if err != nil {
		return 0, err
	}
	if err := requireSigned(auth, q.Admin); err != nil {
		return 0, err
	}
	if !q.Active {
		return 0, ErrQuestNotActive
	}
	registered, err := e.state.isRegistered(id, user)
	if err != nil {
		return 0, err
	}
	if !registered {
		return 0, ErrUserNotRegistered
	}

	var outcome Admission
	switch q.Distribution {
	case DistributionFCFS:
		outcome, err = e.admitWinner(q, user)
	default:
		outcome, err = e.enterRaffle(q, user)
	}
	if err != nil {
		return 0, err
	}
	e.emit(questEvent{evt: eligibleEvent(id, user, outcome)})
	return outcome, nil
}

func (e *Engine) admitWinner(q *Quest, user [20]byte) (Admission, error) {
	already, err := e.state.isWinner(q.ID, user)
	if err != nil {
		return 0, err
	}
	if already {
		return AdmissionAlreadyWinner, nil
	}
	winners, err := e.state.winners(q.ID)
	if err != nil {
		return 0, err
	}
	if len(winners) >= int(q.MaxWinners) {
		return AdmissionCapacityReached, nil
	}
	if err := e.state.addWinner(q.ID, user); err != nil {
		return 0, err
	}
	return AdmissionWinner, nil
}

func (e *Engine) enterRaffle(q *Quest, user [20]byte) (Admission, error) {
	already, err := e.state.isParticipant(q.ID, user)
	if err != nil {
		return 0, err
	}
	if already {
		return AdmissionAlreadyEntered, nil
	}
	if err := e.state.addParticipant(q.ID, user); err != nil {
		return 0, err
	}
	return AdmissionEntered, nil
}
