// Package approval holds invocations that wait for a human decision.
package approval

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MEKXH/gatekeeper/internal/policy"
)

var (
	ErrNotFound        = errors.New("pending action not found")
	ErrAlreadyResolved = errors.New("pending action already resolved")
)

// Status is the lifecycle state of a pending action.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

// PendingAction is one queued invocation.
type PendingAction struct {
	ID         string           `json:"id"`
	Tool       string           `json:"tool"`
	Args       map[string]any   `json:"arguments"`
	Risk       policy.RiskLevel `json:"risk_level"`
	Effect     string           `json:"effect,omitempty"`
	Status     Status           `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt time.Time        `json:"resolved_at,omitzero"`
}

// Queue is the in-memory approval queue. Only PENDING actions are live;
// resolved ids are remembered so a second decision reports
// ErrAlreadyResolved instead of ErrNotFound.
type Queue struct {
	mu       sync.Mutex
	live     map[string]*PendingAction
	order    []string
	resolved map[string]Status

	now   func() time.Time
	newID func() string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		live:     make(map[string]*PendingAction),
		resolved: make(map[string]Status),
		now:      time.Now,
		newID:    shortID,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Enqueue stores a new PENDING action and returns it. Arguments are copied.
func (q *Queue) Enqueue(tool string, args map[string]any, risk policy.RiskLevel, effect string) PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.newID()
	for q.taken(id) {
		id = q.newID()
	}

	action := &PendingAction{
		ID:        id,
		Tool:      tool,
		Args:      maps.Clone(args),
		Risk:      risk,
		Effect:    effect,
		Status:    StatusPending,
		CreatedAt: q.now().UTC(),
	}
	if action.Args == nil {
		action.Args = map[string]any{}
	}
	q.live[id] = action
	q.order = append(q.order, id)
	return *action
}

func (q *Queue) taken(id string) bool {
	if _, ok := q.live[id]; ok {
		return true
	}
	_, ok := q.resolved[id]
	return ok
}

// List yields live actions oldest first. Each range over the sequence sees
// the queue as it is when the range starts.
func (q *Queue) List() iter.Seq[PendingAction] {
	return func(yield func(PendingAction) bool) {
		for _, action := range q.Pending() {
			if !yield(action) {
				return
			}
		}
	}
}

// Pending returns a copy of the live actions, oldest first.
func (q *Queue) Pending() []PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingAction, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.live[id])
	}
	return out
}

// Get returns the live action with the given id.
func (q *Queue) Get(id string) (PendingAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	action, ok := q.live[strings.TrimSpace(id)]
	if !ok {
		return PendingAction{}, false
	}
	return *action, true
}

// Len returns the number of live actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Approve moves a PENDING action to APPROVED and removes it from the live set.
func (q *Queue) Approve(id string) (PendingAction, error) {
	return q.resolve(id, StatusApproved)
}

// Deny moves a PENDING action to DENIED and removes it from the live set.
func (q *Queue) Deny(id string) (PendingAction, error) {
	return q.resolve(id, StatusDenied)
}

func (q *Queue) resolve(id string, status Status) (PendingAction, error) {
	actionID := strings.TrimSpace(id)

	q.mu.Lock()
	defer q.mu.Unlock()

	action, ok := q.live[actionID]
	if !ok {
		if prev, done := q.resolved[actionID]; done {
			return PendingAction{}, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, actionID, prev)
		}
		return PendingAction{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}

	action.Status = status
	action.ResolvedAt = q.now().UTC()
	q.resolved[actionID] = status
	delete(q.live, actionID)
	for i, queued := range q.order {
		if queued == actionID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return *action, nil
}
