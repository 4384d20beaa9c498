package quest

import (
	"encoding/binary"
	"errors"

	"lukechampine.com/blake3"
)

// Randomness produces the seed for a raffle draw.
type Randomness interface {
	Name() string
	Seed(q *Quest, resolvedAt uint64, participants [][20]byte) (uint64, error)
}

// TimestampRandomness seeds the draw with the resolution timestamp. It is
// predictable by whoever chooses when to resolve and is kept for
// compatibility with existing deployments.
type TimestampRandomness struct{}

func (TimestampRandomness) Name() string { return "timestamp" }

func (TimestampRandomness) Seed(_ *Quest, resolvedAt uint64, _ [][20]byte) (uint64, error) {
	return resolvedAt, nil
}

// BeaconRandomness mixes an operator supplied beacon value with the quest id,
// the resolution time and the participant list.
type BeaconRandomness struct {
	Beacon []byte
}

func (BeaconRandomness) Name() string { return "beacon" }

func (b BeaconRandomness) Seed(q *Quest, resolvedAt uint64, participants [][20]byte) (uint64, error) {
	if len(b.Beacon) == 0 {
		return 0, errors.New("quest: randomness beacon not configured")
	}
	h := blake3.New(32, nil)
	h.Write(b.Beacon)
	var buf [8]byte
	if q != nil {
		binary.BigEndian.PutUint64(buf[:], q.ID)
		h.Write(buf[:])
	}
	binary.BigEndian.PutUint64(buf[:], resolvedAt)
	h.Write(buf[:])
	for _, p := range participants {
		h.Write(p[:])
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), nil
}

// Draw selects min(maxWinners, len(participants)) distinct participants.
// Each round picks index seed mod remaining, removes that entry keeping the
// order of the rest, then advances seed = (seed*1103515245 + 12345) / 65536
// with wrapping 64-bit arithmetic.
func Draw(participants [][20]byte, maxWinners uint32, seed uint64) [][20]byte {
	if len(participants) == 0 || maxWinners == 0 {
		return [][20]byte{}
	}
	k := int(maxWinners)
	if k > len(participants) {
		k = len(participants)
	}
	available := make([][20]byte, len(participants))
	copy(available, participants)
	winners := make([][20]byte, 0, k)
	for i := 0; i < k; i++ {
		idx := seed % uint64(len(available))
		winners = append(winners, available[idx])
		available = append(available[:idx], available[idx+1:]...)
		seed = (seed*1103515245 + 12345) / 65536
	}
	return winners
}
