// Package stage persists each flow's position in the registration state
// machine. Entry resolution overwrites it on every page load; actions read
// it to validate transitions.
package stage

import (
	"context"

	"enroll/internal/registration/models"
	id "enroll/pkg/domain"
)

// Error Contract:
// - Find returns ErrNotFound (wrapped) when the flow has no recorded stage
// - Save and Clear return nil on success, wrapped infrastructure errors otherwise
type Store interface {
	Save(ctx context.Context, flowID id.FlowID, s models.Stage) error
	Find(ctx context.Context, flowID id.FlowID) (models.Stage, error)
	Clear(ctx context.Context, flowID id.FlowID) error
}
