// Package dashboard provides the read-only JSON API for monitoring the
// hub: workspace state, the world-state belief graph, live document
// sessions, change polling and health.
package dashboard

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
	"github.com/jaakkos/synapse/internal/docsession"
	"github.com/jaakkos/synapse/internal/domain"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// StateSnapshot is the JSON response from /state.
type StateSnapshot struct {
	Timestamp string             `json:"timestamp"`
	Target    string             `json:"target"`
	Version   int64              `json:"version"`
	Agents    []AgentSnapshot    `json:"agents"`
	Locks     []FileLockSnapshot `json:"locks"`
	Intents   []domain.Intent    `json:"intents"`
	WorkQueue []WorkSnapshot     `json:"workQueue"`
}

// AgentSnapshot is a per-agent summary.
type AgentSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Client      string `json:"client,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	CurrentTask string `json:"currentTask,omitempty"`
	LastSeen    string `json:"lastSeen"`
	Connected   bool   `json:"connected"`
	Autonomous  bool   `json:"autonomous,omitempty"`
}

// FileLockSnapshot is a per-lock summary.
type FileLockSnapshot struct {
	Path     string `json:"path"`
	LockedBy string `json:"lockedBy"`
	Reason   string `json:"reason,omitempty"`
	Age      string `json:"age"`
	Expires  string `json:"expires"`
}

// WorkSnapshot is a per-work-item summary.
type WorkSnapshot struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	ForRole     string `json:"forRole"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	Age         string `json:"age"`
}

// Handler holds dependencies for the JSON API handlers.
type Handler struct {
	svc      *app.HubService
	registry *app.SessionRegistry
	docs     *docsession.Manager
	world    *worldstate.Engine
	cascade  *cascade.Engine
	started  time.Time
}

// NewHandler creates an API handler.
func NewHandler(svc *app.HubService, registry *app.SessionRegistry, docs *docsession.Manager, world *worldstate.Engine, casc *cascade.Engine) *Handler {
	return &Handler{
		svc:      svc,
		registry: registry,
		docs:     docs,
		world:    world,
		cascade:  casc,
		started:  time.Now(),
	}
}

// RegisterRoutes adds the API routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/state", h.handleState)
	mux.HandleFunc("/graph", h.handleGraph)
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/changes", h.handleChanges)
	mux.HandleFunc("/health", h.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snap := StateSnapshot{
		Timestamp: now.Format(time.RFC3339),
		Agents:    []AgentSnapshot{},
		Locks:     []FileLockSnapshot{},
		WorkQueue: []WorkSnapshot{},
	}

	_ = h.svc.Query(func(state *domain.WorkspaceState) error {
		snap.Target = state.Target
		snap.Version = state.Version

		for _, a := range state.Agents {
			snap.Agents = append(snap.Agents, AgentSnapshot{
				ID:          a.ID,
				Name:        a.Name,
				Client:      a.Client,
				Role:        string(a.Role),
				Status:      a.Status,
				CurrentTask: a.CurrentTask,
				LastSeen:    relTime(a.LastSeen, now),
				Connected:   h.registry.SessionFor(a.ID) != "",
				Autonomous:  a.Autonomous,
			})
		}

		for _, l := range state.Locks {
			if l == nil {
				continue
			}
			expires := "expired"
			if l.ExpiresAt.After(now) {
				expires = "in " + l.ExpiresAt.Sub(now).Round(time.Second).String()
			}
			snap.Locks = append(snap.Locks, FileLockSnapshot{
				Path:     l.Path,
				LockedBy: l.AgentName,
				Reason:   l.Reason,
				Age:      relTime(l.LockedAt, now),
				Expires:  expires,
			})
		}

		snap.Intents = append(snap.Intents, state.Intents...)

		for _, wi := range state.WorkQueue {
			snap.WorkQueue = append(snap.WorkQueue, WorkSnapshot{
				ID:          wi.ID,
				Description: truncate(wi.Description, 120),
				ForRole:     string(wi.ForRole),
				Status:      wi.Status,
				AssignedTo:  wi.AssignedTo,
				Age:         relTime(wi.CreatedAt, now),
			})
		}
		return nil
	})

	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].Name < snap.Agents[j].Name })
	sort.Slice(snap.Locks, func(i, j int) bool { return snap.Locks[i].Path < snap.Locks[j].Path })

	writeJSON(w, http.StatusOK, snap)
}

// GraphNode is one entity in the belief graph view.
type GraphNode struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Label  string         `json:"label"`
	Status map[string]any `json:"status,omitempty"`
}

// GraphEdge links two graph nodes.
type GraphEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// handleGraph serves the belief graph as nodes and edges. ?format=widget
// returns the combined shape embedded dashboards poll.
func (h *Handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	world, err := h.world.Snapshot()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	nodes, edges := buildGraph(world)
	if r.URL.Query().Get("format") == "widget" {
		writeJSON(w, http.StatusOK, h.widgetPayload(edges))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":   nodes,
		"edges":   edges,
		"version": world.Version,
	})
}

// buildGraph flattens the entity tables into nodes and derives edges
// from the declared relationships (UI bindings and test coverage).
func buildGraph(world *domain.WorldState) ([]GraphNode, []GraphEdge) {
	nodes := []GraphNode{}
	edges := []GraphEdge{}

	for path, f := range world.Files {
		nodes = append(nodes, GraphNode{
			ID: "file:" + path, Kind: "file", Label: path,
			Status: map[string]any{"purpose": f.Purpose},
		})
	}
	for key, ep := range world.Endpoints {
		nodes = append(nodes, GraphNode{
			ID: "endpoint:" + key, Kind: "endpoint", Label: key,
			Status: map[string]any{
				"implemented": ep.Implemented,
				"tested":      ep.Tested,
				"failing":     ep.Failing,
			},
		})
	}
	for name, ui := range world.UIElements {
		nodes = append(nodes, GraphNode{
			ID: "ui:" + name, Kind: "ui_element", Label: name,
			Status: map[string]any{"functional": ui.Functional},
		})
		if ui.BoundTo != "" {
			edges = append(edges, GraphEdge{From: "ui:" + name, To: "endpoint:" + ui.BoundTo, Relation: "bound_to"})
		}
	}
	for name, fl := range world.Flows {
		nodes = append(nodes, GraphNode{
			ID: "flow:" + name, Kind: "flow", Label: name,
			Status: map[string]any{"working": fl.Working},
		})
	}
	for name, te := range world.Tests {
		nodes = append(nodes, GraphNode{
			ID: "test:" + name, Kind: "test", Label: name,
			Status: map[string]any{"passing": te.Passing},
		})
		for _, covered := range te.Covers {
			edges = append(edges, GraphEdge{From: "test:" + name, To: covered, Relation: "covers"})
		}
	}
	for id, g := range world.Goals {
		nodes = append(nodes, GraphNode{
			ID: "goal:" + id, Kind: "goal", Label: truncate(g.Description, 80),
			Status: map[string]any{"status": g.Status, "progress": g.Progress},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return nodes, edges
}

// widgetPayload combines workspace state, graph edges, recent cascade
// events and doc sessions into a single polling target.
func (h *Handler) widgetPayload(edges []GraphEdge) map[string]any {
	now := time.Now()
	payload := map[string]any{
		"edges":      edges,
		"lastUpdate": now.Format(time.RFC3339),
	}

	agents := []AgentSnapshot{}
	locks := []FileLockSnapshot{}
	queue := []WorkSnapshot{}
	intents := []domain.Intent{}
	_ = h.svc.Query(func(state *domain.WorkspaceState) error {
		payload["target"] = state.Target
		for _, a := range state.Agents {
			agents = append(agents, AgentSnapshot{
				ID: a.ID, Name: a.Name, Role: string(a.Role), Status: a.Status,
				CurrentTask: a.CurrentTask, LastSeen: relTime(a.LastSeen, now),
				Connected: h.registry.SessionFor(a.ID) != "",
			})
		}
		for _, l := range state.Locks {
			if l == nil {
				continue
			}
			locks = append(locks, FileLockSnapshot{
				Path: l.Path, LockedBy: l.AgentName, Reason: l.Reason,
				Age: relTime(l.LockedAt, now),
			})
		}
		intents = append(intents, state.Intents...)
		for _, wi := range state.WorkQueue {
			queue = append(queue, WorkSnapshot{
				ID: wi.ID, Description: truncate(wi.Description, 120),
				ForRole: string(wi.ForRole), Status: wi.Status,
				AssignedTo: wi.AssignedTo, Age: relTime(wi.CreatedAt, now),
			})
		}
		return nil
	})
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	payload["agents"] = agents
	payload["locks"] = locks
	payload["intents"] = intents
	payload["workQueue"] = queue
	payload["recentEvents"] = h.cascade.Events(10)
	payload["docSessions"] = h.docs.ListSessions()
	return payload
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	metas := h.docs.ListSessions()
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	type sessionView struct {
		docsession.SessionMeta
		Editors []docsession.Awareness `json:"editorRoster"`
	}
	views := make([]sessionView, 0, len(metas))
	for _, m := range metas {
		views = append(views, sessionView{
			SessionMeta: m,
			Editors:     h.docs.Editors(m.Path),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views, "count": len(views)})
}

// handleChanges implements version-delta polling: GET /changes?since=v.
func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request) {
	since := int64(-1)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be an integer"})
			return
		}
		since = v
	}
	var version int64
	var target string
	_ = h.svc.Query(func(state *domain.WorkspaceState) error {
		version = state.Version
		target = state.Target
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": version != since,
		"version": version,
		"target":  target,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	var agents int
	var version int64
	_ = h.svc.Query(func(state *domain.WorkspaceState) error {
		agents = len(state.Agents)
		version = state.Version
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"version":  version,
		"agents":   agents,
		"sessions": h.docs.Count(),
	})
}

func relTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s ago"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return t.Format("Jan 2 15:04")
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
