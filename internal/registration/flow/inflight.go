package flow

import (
	"sync"

	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
)

// inflightGate rejects a second concurrent attempt of the same action on the
// same flow. Duplicate clicks are turned away, not queued: the first request
// is still running and its outcome is the one that counts.
type inflightGate struct {
	mu     sync.Mutex
	active map[inflightKey]struct{}
}

type inflightKey struct {
	flowID id.FlowID
	action Action
}

func newInflightGate() *inflightGate {
	return &inflightGate{active: make(map[inflightKey]struct{})}
}

// acquire marks the action in flight. The caller must release on every path.
func (g *inflightGate) acquire(flowID id.FlowID, action Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := inflightKey{flowID: flowID, action: action}
	if _, busy := g.active[key]; busy {
		return dErrors.Newf(dErrors.CodeConflict, "%s already in flight for this flow", action)
	}
	g.active[key] = struct{}{}
	return nil
}

func (g *inflightGate) release(flowID id.FlowID, action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, inflightKey{flowID: flowID, action: action})
}
