package quest

import "fmt"

var (
	questRecordPrefix      = []byte("quest/record/")
	questCounterKey        = []byte("quest/counter")
	questIndexKey          = []byte("quest/ids")
	participantListPrefix  = []byte("quest/participants/")
	participantFlagPrefix  = []byte("quest/participant/")
	winnerListPrefix       = []byte("quest/winners/")
	winnerFlagPrefix       = []byte("quest/winner/")
	registrationPrefix     = []byte("quest/registration/")
	registrationCountPrefx = []byte("quest/registrations/")
	userQuestsPrefix       = []byte("quest/user/")
	escrowPrefix           = []byte("quest/escrow/")
	payoutPrefix           = []byte("quest/payout/")
	withdrawalPrefix       = []byte("quest/withdrawal/")
)

func questRecordKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", questRecordPrefix, id))
}

func participantListKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", participantListPrefix, id))
}

func participantFlagKey(id uint64, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", participantFlagPrefix, id, addr))
}

func winnerListKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", winnerListPrefix, id))
}

func winnerFlagKey(id uint64, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", winnerFlagPrefix, id, addr))
}

func registrationKey(id uint64, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", registrationPrefix, id, addr))
}

func registrationCountKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", registrationCountPrefx, id))
}

func userQuestsKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", userQuestsPrefix, addr))
}

func escrowKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", escrowPrefix, id))
}

func payoutKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", payoutPrefix, id))
}

func withdrawalKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", withdrawalPrefix, id))
}
