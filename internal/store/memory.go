package store

import (
	"context"
	"sync"

	"github.com/finsense/feed-engine/internal/model"
)

// MemoryArchive implements Archive with in-memory slices. Used for testing
// and for deployments without a database.
type MemoryArchive struct {
	mu       sync.Mutex
	payments []model.PaymentEvent
	alerts   []ArchivedAlert
}

// ArchivedAlert is one recorded alert.
type ArchivedAlert struct {
	Channel model.Channel
	Kind    string
	Payload []byte
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (a *MemoryArchive) ArchivePayment(_ context.Context, ev *model.PaymentEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payments = append(a.payments, *ev)
	return nil
}

func (a *MemoryArchive) ArchiveAlert(_ context.Context, channel model.Channel, kind string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := make([]byte, len(payload))
	copy(p, payload)
	a.alerts = append(a.alerts, ArchivedAlert{Channel: channel, Kind: kind, Payload: p})
	return nil
}

// Payments returns a copy of the archived payment records.
func (a *MemoryArchive) Payments() []model.PaymentEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.PaymentEvent, len(a.payments))
	copy(out, a.payments)
	return out
}

// Alerts returns a copy of the archived alert records.
func (a *MemoryArchive) Alerts() []ArchivedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArchivedAlert, len(a.alerts))
	copy(out, a.alerts)
	return out
}
