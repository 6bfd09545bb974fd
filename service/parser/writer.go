package parser

import (
	"context"
	"sync"

	"github.com/brojonat/mintledger/service/ledger"
)

// Writer serializes ledger mutations. Every write the parser or the mint
// resolver makes goes through Do, one atomic unit at a time, so a backfill
// and live webhook deliveries can run side by side without lost updates.
type Writer struct {
	mu    sync.Mutex
	store ledger.Store
}

// NewWriter wraps store.
func NewWriter(store ledger.Store) *Writer {
	return &Writer{store: store}
}

// Do runs fn inside one store transaction while holding the write lock.
func (w *Writer) Do(ctx context.Context, fn func(tx ledger.Store) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.Atomic(ctx, fn)
}

// Store returns the underlying store for reads.
func (w *Writer) Store() ledger.Store {
	return w.store
}
