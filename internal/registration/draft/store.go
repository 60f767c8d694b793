// Package draft persists the in-progress registration profile. The draft is
// the only place unconfirmed profile data lives; the server is never the
// sole source of truth for it until provisioning succeeds, so it is stored
// durable per flow and survives reloads, tab closes and process restarts
// (Redis-backed in production).
package draft

import (
	"context"

	id "enroll/pkg/domain"
	"enroll/internal/registration/models"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound (wrapped) when no draft exists for the flow
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	// Save upserts the draft for a flow.
	Save(ctx context.Context, flowID id.FlowID, d models.Draft) error

	// Find returns the draft for a flow.
	Find(ctx context.Context, flowID id.FlowID) (models.Draft, error)

	// Clear removes the draft. Called exactly once, on successful
	// provisioning; clearing an absent draft is not an error.
	Clear(ctx context.Context, flowID id.FlowID) error
}
