// Package memory is an in-process PaymentExporter used in development
// and tests, when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finansheet/internal/core"
)

type Store struct {
	mu    sync.Mutex
	items []core.Payment
}

func New() *Store {
	return &Store{}
}

// Append stores the payment and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, p core.Payment) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, p)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Exported returns a copy of everything appended so far.
func (s *Store) Exported() []core.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Payment(nil), s.items...)
}
