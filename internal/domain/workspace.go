// Package domain holds coordination entities and aggregate state.
// It has no dependencies on other packages.
package domain

import "time"

// AgentRole describes what kind of work an agent takes on.
type AgentRole string

const (
	RolePlanner  AgentRole = "planner"
	RoleBackend  AgentRole = "backend"
	RoleFrontend AgentRole = "frontend"
	RoleCoder    AgentRole = "coder"
	RoleFixer    AgentRole = "fixer"
	RoleTester   AgentRole = "tester"
	RoleRefactor AgentRole = "refactor"
	RoleObserver AgentRole = "observer"
	RoleAny      AgentRole = "any"
)

// Agent statuses.
const (
	StatusIdle         = "idle"
	StatusWorking      = "working"
	StatusWaiting      = "waiting"
	StatusDisconnected = "disconnected"
)

// Agent is a participant (AI or human) in the shared workspace.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Client      string    `json:"client"` // open enum: "claude", "cursor", "terminal", "web", ...
	Role        AgentRole `json:"role"`
	Status      string    `json:"status"` // idle, working, waiting, disconnected
	CurrentTask string    `json:"currentTask,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastSeen    time.Time `json:"lastSeen"`
	Autonomous  bool      `json:"autonomous"`
}

// FileLock is an exclusive, time-bounded claim on a path.
// At most one lock exists per path.
type FileLock struct {
	Path      string    `json:"path"`
	AgentID   string    `json:"agentId"`
	AgentName string    `json:"agentName"`
	Client    string    `json:"client"`
	Role      AgentRole `json:"role"`
	Reason    string    `json:"reason,omitempty"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Intent actions.
const (
	IntentWorking   = "working"
	IntentBlocked   = "blocked"
	IntentCompleted = "completed"
	IntentTargetSet = "target_set"
	IntentHandoff   = "handoff"
)

// Intent is an append-only announcement by an agent. Never mutated after append.
type Intent struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agentId"`
	AgentName   string    `json:"agentName"`
	Client      string    `json:"client"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Handoff is a message attached to a released lock, consumed when the
// target role next polls work.
type Handoff struct {
	Path    string    `json:"path"`
	From    string    `json:"from"`
	To      AgentRole `json:"to"`
	Message string    `json:"message"`
}

// Work item statuses.
const (
	WorkPending   = "pending"
	WorkAssigned  = "assigned"
	WorkCompleted = "completed"
)

// WorkItem is a unit of queued work for a role.
type WorkItem struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	ForRole     AgentRole      `json:"forRole"`
	CreatedBy   string         `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	AssignedTo  string         `json:"assignedTo,omitempty"`
	Status      string         `json:"status"` // pending, assigned, completed
	Context     map[string]any `json:"context,omitempty"`
	Priority    int            `json:"priority,omitempty"`
}

// MaxIntents bounds the workspace intent ring.
const MaxIntents = 50

// WorkspaceState is the aggregate workspace: agents, locks, intents,
// handoffs, work queue, target, and the monotonic version counter.
type WorkspaceState struct {
	Agents    map[string]*Agent    `json:"agents"`
	Locks     map[string]*FileLock `json:"locks"` // keyed by path
	Intents   []Intent             `json:"intents"`
	Handoffs  map[string]*Handoff  `json:"handoffs"` // keyed by path + "\x00" + role
	WorkQueue []*WorkItem          `json:"workQueue"`
	Target    string               `json:"target"`
	Version   int64                `json:"version"`
}

// NewWorkspaceState returns an empty WorkspaceState with maps initialized.
func NewWorkspaceState() *WorkspaceState {
	return &WorkspaceState{
		Agents:   make(map[string]*Agent),
		Locks:    make(map[string]*FileLock),
		Intents:  []Intent{},
		Handoffs: make(map[string]*Handoff),
	}
}

// HandoffKey builds the map key for a handoff record.
func HandoffKey(path string, to AgentRole) string {
	return path + "\x00" + string(to)
}

// AppendIntent appends to the intent ring, discarding the oldest entry
// when the ring exceeds MaxIntents.
func (w *WorkspaceState) AppendIntent(in Intent) {
	w.Intents = append(w.Intents, in)
	if len(w.Intents) > MaxIntents {
		w.Intents = w.Intents[len(w.Intents)-MaxIntents:]
	}
}
