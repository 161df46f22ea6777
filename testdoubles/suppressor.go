package testdoubles

import (
	"context"
	"sync"

	"github.com/mabumusa1/ses-plugin/types"
)

// Suppressor records every instruction passed to RecordFailure.
type Suppressor struct {
	mu           sync.Mutex
	Instructions []types.SuppressionInstruction
	Errors       map[string]error
}

func NewSuppressor() *Suppressor {
	return &Suppressor{Errors: make(map[string]error, 10)}
}

func (s *Suppressor) RecordFailure(
	_ context.Context, inst types.SuppressionInstruction,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Errors[inst.Address]; err != nil {
		return err
	}
	s.Instructions = append(s.Instructions, inst)
	return nil
}

func (s *Suppressor) Recorded() []types.SuppressionInstruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.SuppressionInstruction{}, s.Instructions...)
}
