package engine

import (
	"context"

	"github.com/roach88/tablehook/internal/store"
)

// Journal receives the audit trail of cycles and deliveries. Implemented by
// *store.Store. The engine never reads it back, and a failed write is
// logged without affecting the cycle.
type Journal interface {
	StartCycle(ctx context.Context, c store.Cycle) error
	FinishCycle(ctx context.Context, c store.Cycle) error
	RecordDelivery(ctx context.Context, d store.Delivery) error
}
