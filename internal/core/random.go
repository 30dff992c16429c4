package core

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/zeebo/blake3"
)

// DeriveSeed mixes a run seed with a year and a task label into an
// independent 64-bit seed. Concurrent tasks each draw from their own
// generator seeded this way, so the outcome does not depend on scheduling.
func DeriveSeed(base uint64, year int, label string) uint64 {
	buf := make([]byte, 16, 16+len(label))
	binary.LittleEndian.PutUint64(buf[0:8], base)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(year)))
	buf = append(buf, label...)
	sum := blake3.Sum256(buf)
	return binary.LittleEndian.Uint64(sum[:8])
}

// NewRand returns a PCG generator for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(newPCG(seed))
}

func newPCG(seed uint64) *rand.PCG {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// RandState serializes the position of the sequential generator so a
// resumed run continues the same stream.
func (s *SimulationContext) RandState() ([]byte, error) {
	return s.source.MarshalBinary()
}

// RestoreRandState rewinds the sequential generator to a saved position.
func (s *SimulationContext) RestoreRandState(state []byte) error {
	if err := s.source.UnmarshalBinary(state); err != nil {
		return fmt.Errorf("restore generator state: %w", err)
	}
	return nil
}
