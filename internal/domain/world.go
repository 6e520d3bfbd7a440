package domain

import "time"

// Goal statuses.
const (
	GoalPending    = "pending"
	GoalInProgress = "in_progress"
	GoalConverging = "converging"
	GoalSatisfied  = "satisfied"
	GoalRegressed  = "regressed"
)

// Queued-work statuses used by the world-state queue. Distinct from the
// workspace queue statuses: assigned world work that stalls is requeued.
const (
	QueueQueued    = "queued"
	QueueAssigned  = "assigned"
	QueueCompleted = "completed"
)

// Bounds for the world-state rings.
const (
	MaxObservations = 500
	MaxConflicts    = 20
)

// FileEntity is a belief about a file in the shared codebase.
type FileEntity struct {
	Path        string    `json:"path"`
	Purpose     string    `json:"purpose,omitempty"`
	Exports     []string  `json:"exports,omitempty"`
	Imports     []string  `json:"imports,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Endpoint is a belief about an API endpoint, keyed "METHOD:route".
type Endpoint struct {
	Method      string    `json:"method"`
	Route       string    `json:"route"`
	Implemented bool      `json:"implemented"`
	Tested      bool      `json:"tested"`
	Failing     bool      `json:"failing"`
	Handler     string    `json:"handler,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// UIElement is a belief about a frontend component.
type UIElement struct {
	Name        string    `json:"name"`
	Kind        string    `json:"kind,omitempty"`
	Functional  bool      `json:"functional"`
	BoundTo     string    `json:"bound_to,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Flow is a belief about an end-to-end user flow.
type Flow struct {
	Name        string    `json:"name"`
	Steps       []string  `json:"steps,omitempty"`
	Working     bool      `json:"working"`
	LastUpdated time.Time `json:"last_updated"`
}

// TestEntity is a belief about a test.
type TestEntity struct {
	Name        string    `json:"name"`
	Covers      []string  `json:"covers,omitempty"`
	Passing     bool      `json:"passing"`
	LastUpdated time.Time `json:"last_updated"`
}

// Goal is an objective with success criteria evaluated against the entity tables.
type Goal struct {
	ID              string    `json:"id"`
	Description     string    `json:"description"`
	SuccessCriteria []string  `json:"success_criteria"`
	Status          string    `json:"status"`
	Progress        float64   `json:"progress"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Observation is an assertion by an agent about the world.
type Observation struct {
	ID         string    `json:"id"`
	Agent      string    `json:"agent"`
	Assertion  string    `json:"assertion"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorldConflict records two observations that lexically contradict.
type WorldConflict struct {
	ID          string    `json:"id"`
	Assertion   string    `json:"assertion"`
	Contradicts string    `json:"contradicts"`
	Agents      []string  `json:"agents"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}

// QueuedWork is a prioritized item on the world-state work queue.
// Higher priority drains first; FIFO within equal priority.
type QueuedWork struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Role        AgentRole `json:"role"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"` // queued, assigned, completed
	AssignedTo  string    `json:"assigned_to,omitempty"`
	GoalID      string    `json:"goal_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	AssignedAt  time.Time `json:"assigned_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// WorldState is the structured belief graph: five entity tables, goals,
// an observation ring, conflicts, and the prioritized work queue.
type WorldState struct {
	Files        map[string]*FileEntity `json:"files"`
	Endpoints    map[string]*Endpoint   `json:"endpoints"` // keyed "METHOD:route"
	UIElements   map[string]*UIElement  `json:"ui_elements"`
	Flows        map[string]*Flow       `json:"flows"`
	Tests        map[string]*TestEntity `json:"tests"`
	Goals        map[string]*Goal       `json:"goals"`
	Observations []Observation          `json:"observations"`
	Conflicts    []*WorldConflict       `json:"conflicts"`
	Queue        []*QueuedWork          `json:"work_queue"`
	Version      int64                  `json:"version"`
}

// NewWorldState returns an empty belief graph.
func NewWorldState() *WorldState {
	return &WorldState{
		Files:      make(map[string]*FileEntity),
		Endpoints:  make(map[string]*Endpoint),
		UIElements: make(map[string]*UIElement),
		Flows:      make(map[string]*Flow),
		Tests:      make(map[string]*TestEntity),
		Goals:      make(map[string]*Goal),
	}
}

// AppendObservation appends to the observation ring, discarding the
// oldest entry past MaxObservations.
func (w *WorldState) AppendObservation(o Observation) {
	w.Observations = append(w.Observations, o)
	if len(w.Observations) > MaxObservations {
		w.Observations = w.Observations[len(w.Observations)-MaxObservations:]
	}
}

// AppendConflict appends to the conflict ring, discarding the oldest
// entry past MaxConflicts.
func (w *WorldState) AppendConflict(c *WorldConflict) {
	w.Conflicts = append(w.Conflicts, c)
	if len(w.Conflicts) > MaxConflicts {
		w.Conflicts = w.Conflicts[len(w.Conflicts)-MaxConflicts:]
	}
}
