package domain

import "time"

// Cascade event types.
const (
	EventEndpointAdded    = "endpoint_added"
	EventContractChanged  = "contract_changed"
	EventFieldChanged     = "field_changed"
	EventFrontendAdapted  = "frontend_adapted"
	EventConflictResolved = "conflict_resolved"
)

// MaxCascadeEvents bounds the cascade log ring.
const MaxCascadeEvents = 100

// ContractField describes one request or response field of an API contract.
type ContractField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// APIContract is a declared API schema, keyed "METHOD:endpoint".
type APIContract struct {
	Method      string          `json:"method"`
	Endpoint    string          `json:"endpoint"`
	Request     []ContractField `json:"request,omitempty"`
	Response    []ContractField `json:"response,omitempty"`
	Version     int             `json:"version"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Key returns the registry key for the contract.
func (c *APIContract) Key() string {
	return c.Method + ":" + c.Endpoint
}

// FrontendBinding is a frontend component's declared dependency on a contract.
type FrontendBinding struct {
	ComponentID   string    `json:"componentId"`
	ComponentName string    `json:"componentName"`
	Endpoint      string    `json:"endpoint"` // contract key "METHOD:path"
	Fields        []string  `json:"fields,omitempty"`
	LastSynced    time.Time `json:"lastSynced"`
	NeedsUpdate   bool      `json:"needsUpdate"`
}

// CascadeEvent is one entry in the bounded cascade log.
type CascadeEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Target    string         `json:"target,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// FileChange is a proposed text change on a cascade file session, a
// half-open [Start,End) range replaced with NewText. This is the
// OT-lite merge demo, deliberately independent from the CRDT docs.
type FileChange struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	NewText   string    `json:"newText"`
	Timestamp time.Time `json:"timestamp"`
}

// Overlaps reports whether two half-open ranges intersect.
func (c FileChange) Overlaps(o FileChange) bool {
	return !(c.End <= o.Start || c.Start >= o.End)
}

// Contains reports whether c's range fully contains o's.
func (c FileChange) Contains(o FileChange) bool {
	return c.Start <= o.Start && c.End >= o.End
}
