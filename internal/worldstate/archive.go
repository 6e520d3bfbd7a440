package worldstate

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/synapse/internal/domain"
)

// Archive mirrors observations into an in-memory FTS5 index so agents
// can search the full history even after the bounded ring has rotated
// old entries out. The database is :memory: on purpose — the hub keeps
// no state across restarts.
type Archive struct {
	db *sql.DB
	mu sync.RWMutex
}

const archiveSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS observations USING fts5(
	id,
	agent,
	assertion,
	source,
	tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS observation_meta (
	id TEXT PRIMARY KEY,
	confidence REAL,
	observed_at TEXT
);
`

// NewArchive opens the in-memory observation index.
func NewArchive() (*Archive, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open observation archive: %w", err)
	}
	// A :memory: database exists per connection; cap the pool at one
	// so every query sees the same database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init observation archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Record indexes one observation.
func (a *Archive) Record(o domain.Observation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO observations (id, agent, assertion, source) VALUES (?, ?, ?, ?)`,
		o.ID, o.Agent, o.Assertion, o.Source,
	); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO observation_meta (id, confidence, observed_at) VALUES (?, ?, ?)`,
		o.ID, o.Confidence, o.Timestamp.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert observation meta: %w", err)
	}
	return tx.Commit()
}

// SearchResult is one archive hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Agent      string  `json:"agent"`
	Assertion  string  `json:"assertion"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence"`
	ObservedAt string  `json:"observed_at"`
	Rank       float64 `json:"rank"`
}

// Search runs a full-text query over the archived observations.
func (a *Archive) Search(query string, limit int) ([]SearchResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := a.db.Query(`
		SELECT o.id, o.agent, o.assertion, o.source, m.confidence, m.observed_at, rank
		FROM observations o
		JOIN observation_meta m ON m.id = o.id
		WHERE observations MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Agent, &r.Assertion, &r.Source, &r.Confidence, &r.ObservedAt, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close releases the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
