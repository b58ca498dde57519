// Package store defines the outbound audit archive for evaluated payments
// and raised alerts. The engine's working state is purely in-memory; the
// archive is a write-only sink for compliance review and is never read back
// at runtime. PostgreSQL is the production implementation, with an
// in-memory one for testing and for deployments without a database.
package store

import (
	"context"

	"github.com/finsense/feed-engine/internal/model"
)

// Archive receives immutable audit records. Implementations must tolerate
// being called from producer loops: failures are returned, logged by the
// caller, and never interrupt the pipeline.
type Archive interface {
	// ArchivePayment appends an evaluated payment record.
	ArchivePayment(ctx context.Context, ev *model.PaymentEvent) error

	// ArchiveAlert appends a raised alert with its wire payload.
	ArchiveAlert(ctx context.Context, channel model.Channel, kind string, payload []byte) error
}
